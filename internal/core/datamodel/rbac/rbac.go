package rbac

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SuperuserRole bypasses every role and permission guard.
const SuperuserRole = "superuser"

// DefaultPermissionGroup labels permissions stored without a group.
const DefaultPermissionGroup = "Ungrouped"

type Role struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Role) TableName() string {
	return "roles"
}

func (r *Role) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type Permission struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	Group     string    `gorm:"column:group;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Permission) TableName() string {
	return "permissions"
}

func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type RolePermission struct {
	RoleID       string `gorm:"column:role_id;type:uuid;primaryKey"`
	PermissionID string `gorm:"column:permission_id;type:uuid;primaryKey"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

type UserRole struct {
	UserID string `gorm:"column:user_id;type:uuid;primaryKey"`
	RoleID string `gorm:"column:role_id;type:uuid;primaryKey"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// Models lists every rbac table in dependency order.
func Models() []interface{} {
	return []interface{}{&Role{}, &Permission{}, &RolePermission{}, &UserRole{}}
}
