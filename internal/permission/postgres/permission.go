package postgres

import (
	"context"
	"errors"
	"strings"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/permission"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var permissionColumns = datatable.Columns{
	Allowed: map[string]string{
		"id":         "permissions.id",
		"name":       "permissions.name",
		"group":      `permissions."group"`,
		"created_at": "permissions.created_at",
		"createdAt":  "permissions.created_at",
		"updated_at": "permissions.updated_at",
		"updatedAt":  "permissions.updated_at",
	},
	Default:    "permissions.id",
	TieBreaker: "permissions.id",
}

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) List(ctx context.Context, q datatable.Query) ([]rbacDatamodel.Permission, int64, error) {
	query := r.db.WithContext(ctx).Model(&rbacDatamodel.Permission{})
	query = datatable.SearchAny(query, q.Search, "permissions.name", `permissions."group"`)

	if name, ok := q.Filter("name"); ok {
		query = query.Where("LOWER(permissions.name) LIKE ?", datatable.Like(name))
	}
	if group, ok := q.Filter("group"); ok {
		query = query.Where(`LOWER(permissions."group") LIKE ?`, datatable.Like(group))
	}

	var rows []rbacDatamodel.Permission
	total, err := datatable.Paginate(query, q, permissionColumns, &rows)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*rbacDatamodel.Permission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var p rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PermissionRepository) ExistingNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(n)
	}

	var existing []string
	err := r.db.WithContext(ctx).
		Model(&rbacDatamodel.Permission{}).
		Where("LOWER(name) IN ?", lowered).
		Order("name").
		Pluck("name", &existing).Error
	return existing, err
}

func (r *PermissionRepository) NameTakenByOther(ctx context.Context, name, excludeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&rbacDatamodel.Permission{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *PermissionRepository) CreateBatch(ctx context.Context, permissions []*rbacDatamodel.Permission) error {
	if len(permissions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&permissions).Error
}

func (r *PermissionRepository) Update(ctx context.Context, p *rbacDatamodel.Permission) error {
	return r.db.WithContext(ctx).
		Model(&rbacDatamodel.Permission{ID: p.ID}).
		Updates(map[string]interface{}{"name": p.Name, "group": p.Group}).Error
}

func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&rbacDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&rbacDatamodel.Permission{}).Error
	})
}

func (r *PermissionRepository) HolderIDs(ctx context.Context, permissionID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&rbacDatamodel.UserRole{}).
		Joins("JOIN role_permissions ON role_permissions.role_id = user_roles.role_id").
		Where("role_permissions.permission_id = ?", permissionID).
		Distinct().
		Pluck("user_roles.user_id", &ids).Error
	return ids, err
}
