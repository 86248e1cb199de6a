package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	clearData  bool
)

var rootCmd = &cobra.Command{
	Use:   "rbac-api",
	Short: "RBAC API",
	Long:  `Authentication, profile and role-based access control administration API.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads .env when present, then either the environment alone
// (production, or CONFIG_SOURCE=env) or config.yml under path with
// environment overrides.
func loadConfig(path string) (*internal.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	var cfg *internal.Config
	if os.Getenv("APP_ENV") == "production" || os.Getenv("CONFIG_SOURCE") == "env" {
		envCfg, err := internal.LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg = envCfg
	} else {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*internal.Config, error) {
	// env defaults first so the file only needs the values it changes
	cfg, err := internal.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("RBAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the process logger for cfg and returns it.
func setupLogger(cfg *internal.Config) *slog.Logger {
	logger.Init(cfg.App.Env, cfg.Observability.Logging.Level)
	return logger.LoggerWrapper().With("app", cfg.App.Name)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory holding config.yml")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(mailCmd)
}
