package user

import (
	"context"
	"time"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/datatable"
)

// ListItem is a user row as shown in the admin list, with role names.
type ListItem struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Status    userDatamodel.Status `json:"status"`
	Roles     []string             `json:"roles"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Detail struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	Status          userDatamodel.Status `json:"status"`
	Remark          *string              `json:"remark"`
	EmailVerifiedAt *time.Time           `json:"email_verified_at"`
	Roles           []RoleRef            `json:"roles"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func NewListItem(u *userDatamodel.User, roles []string) ListItem {
	if roles == nil {
		roles = []string{}
	}
	return ListItem{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Status:    u.Status,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func NewDetail(u *userDatamodel.User, roles []rbacDatamodel.Role) *Detail {
	refs := make([]RoleRef, len(roles))
	for i, r := range roles {
		refs[i] = RoleRef{ID: r.ID, Name: r.Name}
	}
	return &Detail{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Status:          u.Status,
		Remark:          u.Remark,
		EmailVerifiedAt: u.EmailVerifiedAt,
		Roles:           refs,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// RepositoryAPI only sees users that are not soft deleted. Finders return
// nil, nil when nothing matches.
type RepositoryAPI interface {
	List(ctx context.Context, q datatable.Query) ([]userDatamodel.User, int64, error)
	// RoleNames maps each user id to its role names, ordered by name.
	RoleNames(ctx context.Context, userIDs []string) (map[string][]string, error)
	FindByID(ctx context.Context, id string) (*userDatamodel.User, error)
	Roles(ctx context.Context, userID string) ([]rbacDatamodel.Role, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	MissingRoles(ctx context.Context, ids []string) ([]string, error)
	// Create and Update replace the user's role assignments wholesale.
	Create(ctx context.Context, u *userDatamodel.User, roleIDs []string) error
	Update(ctx context.Context, u *userDatamodel.User, roleIDs []string) error
	SoftDelete(ctx context.Context, id string) error
}

type PasswordHasherAPI interface {
	Hash(password string) (string, error)
}

type ServiceAPI interface {
	List(ctx context.Context, q datatable.Query) (*datatable.Page[ListItem], error)
	Create(ctx context.Context, dto CreateDTO) error
	Detail(ctx context.Context, id string) (*Detail, error)
	Update(ctx context.Context, id string, dto UpdateDTO) error
	Delete(ctx context.Context, id string) error
}
