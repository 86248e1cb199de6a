package role

import (
	"context"
	"time"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
)

type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AssignablePermission struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsAssigned bool   `json:"is_assigned"`
}

type PermissionGroup struct {
	Group string                 `json:"group"`
	Names []AssignablePermission `json:"names"`
}

// Detail lists every known permission, flagging the ones granted to the role.
type Detail struct {
	Role
	Permissions []PermissionGroup `json:"permissions"`
}

func FromDataModel(r *rbacDatamodel.Role) Role {
	return Role{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// GroupPermissions keeps groups in first-seen order of all. Permissions
// without a group land under rbac.DefaultPermissionGroup.
func GroupPermissions(all []rbacDatamodel.Permission, assigned map[string]struct{}) []PermissionGroup {
	groups := make([]PermissionGroup, 0)
	index := make(map[string]int)
	for _, p := range all {
		group := p.Group
		if group == "" {
			group = rbacDatamodel.DefaultPermissionGroup
		}
		i, ok := index[group]
		if !ok {
			i = len(groups)
			index[group] = i
			groups = append(groups, PermissionGroup{Group: group, Names: []AssignablePermission{}})
		}
		_, isAssigned := assigned[p.ID]
		groups[i].Names = append(groups[i].Names, AssignablePermission{ID: p.ID, Name: p.Name, IsAssigned: isAssigned})
	}
	return groups
}

// RepositoryAPI finders return nil, nil when nothing matches.
type RepositoryAPI interface {
	List(ctx context.Context, q datatable.Query) ([]rbacDatamodel.Role, int64, error)
	FindByID(ctx context.Context, id string) (*rbacDatamodel.Role, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	// MissingPermissions returns the ids in ids that match no permission row.
	MissingPermissions(ctx context.Context, ids []string) ([]string, error)
	// Create and Update replace the role's permission set wholesale.
	Create(ctx context.Context, r *rbacDatamodel.Role, permissionIDs []string) error
	Update(ctx context.Context, r *rbacDatamodel.Role, permissionIDs []string) error
	// Delete removes role_permissions and user_roles rows, then the role.
	Delete(ctx context.Context, id string) error
	AssignedPermissionIDs(ctx context.Context, roleID string) ([]string, error)
	AllPermissions(ctx context.Context) ([]rbacDatamodel.Permission, error)
	HolderIDs(ctx context.Context, roleID string) ([]string, error)
}

type ServiceAPI interface {
	List(ctx context.Context, q datatable.Query) (*datatable.Page[Role], error)
	Create(ctx context.Context, dto SaveDTO) error
	Detail(ctx context.Context, id string) (*Detail, error)
	Update(ctx context.Context, id string, dto SaveDTO) error
	Delete(ctx context.Context, id string) error
}
