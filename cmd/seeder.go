package cmd

import (
	"context"
	"fmt"

	"github.com/aolus-software/rbac-api/internal/auth"
	"github.com/aolus-software/rbac-api/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the permission catalog and bootstrap accounts",
	Long:  `Seed the permission catalog, the superuser and admin roles, and the superuser@example.com and admin@example.com accounts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		lg := setupLogger(cfg)

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			return fmt.Errorf("failed to init gorm: %w", err)
		}

		hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost)
		return seed.New(gdb, hasher, lg).Run(context.Background(), clearData)
	},
}
