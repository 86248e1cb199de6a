package postgres

import (
	"context"
	"errors"
	"strings"

	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/user"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var userColumns = datatable.Columns{
	Allowed: map[string]string{
		"id":         "users.id",
		"name":       "users.name",
		"email":      "users.email",
		"status":     "users.status",
		"created_at": "users.created_at",
		"createdAt":  "users.created_at",
		"updated_at": "users.updated_at",
		"updatedAt":  "users.updated_at",
	},
	Default:    "users.id",
	TieBreaker: "users.id",
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context, q datatable.Query) ([]userDatamodel.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&userDatamodel.User{})
	query = datatable.SearchAny(query, q.Search, "users.name", "users.email")

	if status, ok := q.Filter("status"); ok {
		query = query.Where("users.status = ?", strings.ToLower(status))
	}
	if name, ok := q.Filter("name"); ok {
		query = query.Where("LOWER(users.name) LIKE ?", datatable.Like(name))
	}
	if email, ok := q.Filter("email"); ok {
		query = query.Where("LOWER(users.email) LIKE ?", datatable.Like(email))
	}
	if roleID, ok := q.Filter("role_id"); ok {
		query = query.Where("EXISTS (SELECT 1 FROM user_roles WHERE user_roles.user_id = users.id AND user_roles.role_id = ?)", roleID)
	}

	var rows []userDatamodel.User
	total, err := datatable.Paginate(query, q, userColumns, &rows)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

type userRoleName struct {
	UserID string
	Name   string
}

func (r *UserRepository) RoleNames(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []userRoleName
	err := r.db.WithContext(ctx).
		Table("user_roles").
		Select("user_roles.user_id AS user_id, roles.name AS name").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id IN ?", userIDs).
		Order("roles.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Name)
	}
	return out, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*userDatamodel.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Roles(ctx context.Context, userID string) ([]rbacDatamodel.Role, error) {
	var roles []rbacDatamodel.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Find(&roles).Error
	return roles, err
}

// EmailTaken ignores case and soft-deleted users; excludeID may be empty.
func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) MissingRoles(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []string
	if err := r.db.WithContext(ctx).Model(&rbacDatamodel.Role{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
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

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User, roleIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return assignRoles(tx, u.ID, roleIDs)
	})
}

func (r *UserRepository) Update(ctx context.Context, u *userDatamodel.User, roleIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&userDatamodel.User{ID: u.ID}).Updates(map[string]interface{}{
			"name":   u.Name,
			"email":  u.Email,
			"status": u.Status,
			"remark": u.Remark,
		}).Error
		if err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", u.ID).Delete(&rbacDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		return assignRoles(tx, u.ID, roleIDs)
	})
}

func assignRoles(tx *gorm.DB, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]rbacDatamodel.UserRole, len(roleIDs))
	for i, roleID := range roleIDs {
		rows[i] = rbacDatamodel.UserRole{UserID: userID, RoleID: roleID}
	}
	return tx.Create(&rows).Error
}

func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&userDatamodel.User{}).Error
}
