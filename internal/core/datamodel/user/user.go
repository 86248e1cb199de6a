package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusBlocked   Status = "blocked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusBlocked:
		return true
	}
	return false
}

// User rows are soft deleted; gorm scopes every query to deleted_at IS NULL
// unless Unscoped is used.
type User struct {
	ID              string         `gorm:"column:id;type:uuid;primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	Email           string         `gorm:"column:email;not null;index"`
	Password        string         `gorm:"column:password;not null"`
	Status          Status         `gorm:"column:status;type:varchar(20);not null"`
	EmailVerifiedAt *time.Time     `gorm:"column:email_verified_at"`
	Remark          *string        `gorm:"column:remark"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

type EmailVerification struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id;type:uuid;not null;index"`
	Token     string    `gorm:"column:token;not null;uniqueIndex"`
	ExpiredAt time.Time `gorm:"column:expired_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (EmailVerification) TableName() string {
	return "email_verifications"
}

func (v *EmailVerification) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

func (v *EmailVerification) Expired(now time.Time) bool {
	return !now.Before(v.ExpiredAt)
}

type PasswordResetToken struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id;type:uuid;not null;index"`
	Token     string    `gorm:"column:token;not null;uniqueIndex"`
	ExpiredAt time.Time `gorm:"column:expired_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiredAt)
}

// Models lists every user-owned table.
func Models() []interface{} {
	return []interface{}{&User{}, &EmailVerification{}, &PasswordResetToken{}}
}
