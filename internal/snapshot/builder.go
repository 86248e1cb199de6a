package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// ErrUserNotFound means no row satisfied the lookup predicate. A user with no
// roles is not an error.
var ErrUserNotFound = errors.New("snapshot: user not found")

type Options struct {
	// ActiveOnly additionally requires status = active.
	ActiveOnly bool
}

// Builder always reads from the source tables; caching belongs to the caller.
type Builder struct {
	db *gorm.DB
}

func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{db: db}
}

type roleRow struct {
	ID   string
	Name string
}

type grantRow struct {
	RoleID string
	Name   string
}

func (b *Builder) Build(ctx context.Context, userID string, opts Options) (*Snapshot, error) {
	db := b.db.WithContext(ctx)

	query := db.Model(&userDatamodel.User{}).Where("id = ?", userID)
	if opts.ActiveOnly {
		query = query.Where("status = ?", userDatamodel.StatusActive)
	}

	var u userDatamodel.User
	if err := query.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var roles []roleRow
	err := db.Table("roles").
		Select("roles.id, roles.name").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", u.ID).
		Order("roles.name ASC").
		Scan(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	s := &Snapshot{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Roles:       make([]string, 0, len(roles)),
		Permissions: make([]RolePermissions, 0, len(roles)),
	}
	if len(roles) == 0 {
		return s, nil
	}

	roleIDs := make([]string, len(roles))
	for i, r := range roles {
		roleIDs[i] = r.ID
	}

	var grants []grantRow
	err = db.Model(&rbac.RolePermission{}).
		Select("role_permissions.role_id, permissions.name").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("role_permissions.role_id IN ?", roleIDs).
		Order("permissions.name ASC").
		Scan(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	byRole := make(map[string][]string, len(roles))
	for _, g := range grants {
		byRole[g.RoleID] = append(byRole[g.RoleID], g.Name)
	}

	for _, r := range roles {
		perms := byRole[r.ID]
		if perms == nil {
			perms = []string{}
		}
		s.Roles = append(s.Roles, r.Name)
		s.Permissions = append(s.Permissions, RolePermissions{Name: r.Name, Permissions: perms})
	}

	return s, nil
}
