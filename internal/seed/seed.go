// Package seed loads the permission catalog, the built-in roles and the two
// bootstrap accounts. Running it twice leaves the database unchanged.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultPassword = "password"

type Account struct {
	Name  string
	Email string
	Role  string
}

var Accounts = []Account{
	{Name: "Super User", Email: "superuser@example.com", Role: rbac.SuperuserRole},
	{Name: "Admin", Email: "admin@example.com", Role: rbac.AdminRole},
}

type Hasher interface {
	Hash(password string) (string, error)
}

type Seeder struct {
	db     *gorm.DB
	hasher Hasher
	logger *slog.Logger
}

func New(db *gorm.DB, hasher Hasher, logger *slog.Logger) *Seeder {
	return &Seeder{db: db, hasher: hasher, logger: logger}
}

// Run seeds inside one transaction. With clear set every account, role,
// permission and token row is removed first.
func (s *Seeder) Run(ctx context.Context, clear bool) error {
	hash, err := s.hasher.Hash(DefaultPassword)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clear {
			if err := clearAll(tx); err != nil {
				return err
			}
			s.logger.Info("existing data cleared")
		}

		permissionIDs := make([]string, 0, len(rbac.Catalog()))
		for _, p := range rbac.Catalog() {
			row := p
			if err := tx.Where("name = ?", row.Name).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed permission %q: %w", p.Name, err)
			}
			permissionIDs = append(permissionIDs, row.ID)
		}

		roles := map[string]string{}
		for _, name := range []string{rbac.SuperuserRole, rbac.AdminRole} {
			r := rbac.Role{Name: name}
			if err := tx.Where("name = ?", name).FirstOrCreate(&r).Error; err != nil {
				return fmt.Errorf("seed role %q: %w", name, err)
			}
			roles[name] = r.ID
		}

		grants := make([]rbac.RolePermission, len(permissionIDs))
		for i, id := range permissionIDs {
			grants[i] = rbac.RolePermission{RoleID: roles[rbac.AdminRole], PermissionID: id}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grants).Error; err != nil {
			return fmt.Errorf("grant admin permissions: %w", err)
		}

		now := time.Now()
		for _, a := range Accounts {
			u := userDatamodel.User{
				Name:            a.Name,
				Email:           a.Email,
				Password:        hash,
				Status:          userDatamodel.StatusActive,
				EmailVerifiedAt: &now,
			}
			if err := tx.Where("email = ?", a.Email).Attrs(u).FirstOrCreate(&u).Error; err != nil {
				return fmt.Errorf("seed user %q: %w", a.Email, err)
			}
			link := rbac.UserRole{UserID: u.ID, RoleID: roles[a.Role]}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return fmt.Errorf("assign %q to %q: %w", a.Role, a.Email, err)
			}
			s.logger.Info("seeded account", "email", a.Email, "role", a.Role)
		}

		s.logger.Info("seed complete", "permissions", len(permissionIDs), "roles", len(roles), "users", len(Accounts))
		return nil
	})
}

func clearAll(tx *gorm.DB) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []interface{}{
		&rbac.UserRole{},
		&rbac.RolePermission{},
		&userDatamodel.EmailVerification{},
		&userDatamodel.PasswordResetToken{},
		&rbac.Role{},
		&rbac.Permission{},
	} {
		if err := all.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	if err := all.Unscoped().Delete(&userDatamodel.User{}).Error; err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}
