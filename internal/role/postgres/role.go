package postgres

import (
	"context"
	"errors"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/role"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var roleColumns = datatable.Columns{
	Allowed: map[string]string{
		"id":         "roles.id",
		"name":       "roles.name",
		"created_at": "roles.created_at",
		"createdAt":  "roles.created_at",
		"updated_at": "roles.updated_at",
		"updatedAt":  "roles.updated_at",
	},
	Default:    "roles.id",
	TieBreaker: "roles.id",
}

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) List(ctx context.Context, q datatable.Query) ([]rbacDatamodel.Role, int64, error) {
	query := r.db.WithContext(ctx).Model(&rbacDatamodel.Role{})
	query = datatable.SearchAny(query, q.Search, "roles.name")
	if name, ok := q.Filter("name"); ok {
		query = query.Where("LOWER(roles.name) LIKE ?", datatable.Like(name))
	}

	var rows []rbacDatamodel.Role
	total, err := datatable.Paginate(query, q, roleColumns, &rows)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *RoleRepository) FindByID(ctx context.Context, id string) (*rbacDatamodel.Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var row rbacDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// NameTaken matches names exactly; excludeID may be empty.
func (r *RoleRepository) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&rbacDatamodel.Role{}).Where("name = ?", name)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *RoleRepository) MissingPermissions(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []string
	if err := r.db.WithContext(ctx).Model(&rbacDatamodel.Permission{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *RoleRepository) Create(ctx context.Context, row *rbacDatamodel.Role, permissionIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return insertGrants(tx, row.ID, permissionIDs)
	})
}

func (r *RoleRepository) Update(ctx context.Context, row *rbacDatamodel.Role, permissionIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&rbacDatamodel.Role{ID: row.ID}).Update("name", row.Name).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", row.ID).Delete(&rbacDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		return insertGrants(tx, row.ID, permissionIDs)
	})
}

func insertGrants(tx *gorm.DB, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	grants := make([]rbacDatamodel.RolePermission, len(permissionIDs))
	for i, pid := range permissionIDs {
		grants[i] = rbacDatamodel.RolePermission{RoleID: roleID, PermissionID: pid}
	}
	return tx.Create(&grants).Error
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&rbacDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&rbacDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&rbacDatamodel.Role{}).Error
	})
}

func (r *RoleRepository) AssignedPermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&rbacDatamodel.RolePermission{}).
		Where("role_id = ?", roleID).
		Pluck("permission_id", &ids).Error
	return ids, err
}

func (r *RoleRepository) AllPermissions(ctx context.Context) ([]rbacDatamodel.Permission, error) {
	var rows []rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Order(`"group"`).Order("name").Find(&rows).Error
	return rows, err
}

func (r *RoleRepository) HolderIDs(ctx context.Context, roleID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&rbacDatamodel.UserRole{}).
		Where("role_id = ?", roleID).
		Pluck("user_id", &ids).Error
	return ids, err
}
