package auth

import (
	"context"
	"time"

	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/core/events"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

// RepositoryAPI is the credential store as seen by the auth flows. Finders
// return nil, nil when nothing matches; soft-deleted users never match.
type RepositoryAPI interface {
	FindUserByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	FindUserByID(ctx context.Context, id string) (*userDatamodel.User, error)

	CreateUserWithVerification(ctx context.Context, u *userDatamodel.User, v *userDatamodel.EmailVerification) error
	ReplaceEmailVerification(ctx context.Context, v *userDatamodel.EmailVerification) error
	FindEmailVerification(ctx context.Context, token string) (*userDatamodel.EmailVerification, error)
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	ReplacePasswordReset(ctx context.Context, t *userDatamodel.PasswordResetToken) error
	FindPasswordReset(ctx context.Context, token string) (*userDatamodel.PasswordResetToken, error)
	ResetPassword(ctx context.Context, userID, passwordHash string) error

	DeleteExpiredTokens(ctx context.Context, now time.Time) (verifications int64, resets int64, err error)
}

type TokenGeneratorAPI interface {
	GenerateToken(userID string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type PasswordHasherAPI interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type SnapshotBuilderAPI interface {
	Build(ctx context.Context, userID string, opts snapshot.Options) (*snapshot.Snapshot, error)
}

type PublisherAPI interface {
	Publish(ctx context.Context, event events.Event) error
}

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*LoginResult, error)
	Register(ctx context.Context, dto RegisterDTO) error
	ResendVerification(ctx context.Context, dto EmailDTO) error
	VerifyEmail(ctx context.Context, dto TokenDTO) error
	ForgotPassword(ctx context.Context, dto EmailDTO) error
	ResetPassword(ctx context.Context, dto ResetPasswordDTO) error
}

type LoginResult struct {
	User  *snapshot.Snapshot `json:"user"`
	Token string             `json:"token"`
}

type TokenTTLs struct {
	Verification time.Duration
	Reset        time.Duration
}
