// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"fmt"

	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an in-memory sqlite database with every table migrated.
// The pool is pinned to one connection so all statements see the same memory database.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := append(user.Models(), rbac.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}
