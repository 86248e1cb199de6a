// Package profile lets an authenticated user read and edit their own account.
package profile

import (
	"context"

	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

type RepositoryAPI interface {
	FindByID(ctx context.Context, id string) (*userDatamodel.User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id, name, email string, remark *string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type PasswordHasherAPI interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type SnapshotBuilderAPI interface {
	Build(ctx context.Context, userID string, opts snapshot.Options) (*snapshot.Snapshot, error)
}

type ServiceAPI interface {
	Update(ctx context.Context, userID string, dto UpdateDTO) (*snapshot.Snapshot, error)
	ChangePassword(ctx context.Context, userID string, dto ChangePasswordDTO) error
}
