package permission

import (
	"context"
	"time"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
)

type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromDataModel(p *rbacDatamodel.Permission) Permission {
	return Permission{
		ID:        p.ID,
		Name:      p.Name,
		Group:     p.Group,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// RepositoryAPI finders return nil, nil when nothing matches.
type RepositoryAPI interface {
	List(ctx context.Context, q datatable.Query) ([]rbacDatamodel.Permission, int64, error)
	FindByID(ctx context.Context, id string) (*rbacDatamodel.Permission, error)
	// ExistingNames returns the stored names matching any of names, ignoring case.
	ExistingNames(ctx context.Context, names []string) ([]string, error)
	NameTakenByOther(ctx context.Context, name, excludeID string) (bool, error)
	CreateBatch(ctx context.Context, permissions []*rbacDatamodel.Permission) error
	Update(ctx context.Context, p *rbacDatamodel.Permission) error
	// Delete removes the role grants first, then the permission row.
	Delete(ctx context.Context, id string) error
	// HolderIDs lists users holding any role that carries the permission.
	HolderIDs(ctx context.Context, permissionID string) ([]string, error)
}

type ServiceAPI interface {
	List(ctx context.Context, q datatable.Query) (*datatable.Page[Permission], error)
	Create(ctx context.Context, dto CreateDTO) error
	Detail(ctx context.Context, id string) (*Permission, error)
	Update(ctx context.Context, id string, dto UpdateDTO) error
	Delete(ctx context.Context, id string) error
}
