package internal

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	App           AppConfig           `mapstructure:"app" envPrefix:"APP_"`
	Server        ServerConfig        `mapstructure:"http_server" envPrefix:"HTTP_SERVER_"`
	Database      DatabaseConfig      `mapstructure:"database" envPrefix:"DATABASE_"`
	Redis         RedisConfig         `mapstructure:"redis" envPrefix:"REDIS_"`
	Security      SecurityConfig      `mapstructure:"security" envPrefix:"SECURITY_"`
	Cache         CacheConfig         `mapstructure:"cache" envPrefix:"CACHE_"`
	CORS          CORSConfig          `mapstructure:"cors" envPrefix:"CORS_"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Mail          MailConfig          `mapstructure:"mail" envPrefix:"MAIL_"`
	Observability ObservabilityConfig `mapstructure:"observability" envPrefix:"OBSERVABILITY_"`
	Jobs          JobsConfig          `mapstructure:"jobs" envPrefix:"JOBS_"`
}

type AppConfig struct {
	Name      string `mapstructure:"name" env:"NAME" envDefault:"rbac-api"`
	Env       string `mapstructure:"env" env:"ENV" envDefault:"development"`
	ClientURL string `mapstructure:"client_url" env:"CLIENT_URL" envDefault:"http://localhost:3000"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
	BodyLimitBytes    int64         `mapstructure:"body_limit_bytes" env:"BODY_LIMIT_BYTES" envDefault:"1048576"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
	TrustedProxies []string `mapstructure:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

type DatabaseConfig struct {
	Source          string        `mapstructure:"source" env:"SOURCE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled" env:"ENABLED" envDefault:"true"`
	URL     string `mapstructure:"url" env:"URL" envDefault:"redis://localhost:6379/0"`
}

type SecurityConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiresIn         time.Duration `mapstructure:"jwt_expires_in" env:"JWT_EXPIRES_IN" envDefault:"1h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"10"`
	VerificationTokenTTL time.Duration `mapstructure:"verification_token_ttl" env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	ResetTokenTTL        time.Duration `mapstructure:"reset_token_ttl" env:"RESET_TOKEN_TTL" envDefault:"1h"`
}

type CacheConfig struct {
	// Driver is "redis" or "memory".
	Driver      string        `mapstructure:"driver" env:"DRIVER" envDefault:"redis"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" env:"SNAPSHOT_TTL" envDefault:"1h"`
	MemorySize  int           `mapstructure:"memory_size" env:"MEMORY_SIZE" envDefault:"10000"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `mapstructure:"allowed_methods" env:"ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" env:"ALLOWED_HEADERS" envSeparator:"," envDefault:"Accept,Authorization,Content-Type,X-Trace-ID"`
	AllowCredentials bool     `mapstructure:"allow_credentials" env:"ALLOW_CREDENTIALS" envDefault:"false"`
	MaxAge           int      `mapstructure:"max_age" env:"MAX_AGE" envDefault:"300"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" env:"ENABLED" envDefault:"true"`
	Requests int           `mapstructure:"requests" env:"REQUESTS" envDefault:"100"`
	Window   time.Duration `mapstructure:"window" env:"WINDOW" envDefault:"15m"`
}

type MailConfig struct {
	// Driver is "smtp" or "log".
	Driver    string `mapstructure:"driver" env:"DRIVER" envDefault:"log"`
	Host      string `mapstructure:"host" env:"HOST"`
	Port      int    `mapstructure:"port" env:"PORT" envDefault:"587"`
	Username  string `mapstructure:"username" env:"USERNAME"`
	Password  string `mapstructure:"password" env:"PASSWORD"`
	From      string `mapstructure:"from" env:"FROM" envDefault:"no-reply@example.com"`
	Workers   int    `mapstructure:"workers" env:"WORKERS" envDefault:"4"`
	QueueSize int    `mapstructure:"queue_size" env:"QUEUE_SIZE" envDefault:"100"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics" envPrefix:"METRICS_"`
	Logging LoggingConfig `mapstructure:"logging" envPrefix:"LOGGING_"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" env:"ENABLED" envDefault:"true"`
	Path    string `mapstructure:"path" env:"PATH" envDefault:"/metrics"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" env:"LEVEL" envDefault:"info"`
}

type JobsConfig struct {
	TokenCleanupSchedule string `mapstructure:"token_cleanup_schedule" env:"TOKEN_CLEANUP_SCHEDULE" envDefault:"@hourly"`
}

// LoadConfigFromEnv reads the whole configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Cache.Validate(c.Redis); err != nil {
		errs = append(errs, fmt.Sprintf("cache config: %v", err))
	}

	if err := c.CORS.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("cors config: %v", err))
	}

	if err := c.Mail.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("mail config: %v", err))
	}

	if _, err := url.Parse(c.App.ClientURL); err != nil || c.App.ClientURL == "" {
		errs = append(errs, "app config: client_url must be a valid url")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", entry)
			}
		}
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.JWTExpiresIn <= 0 {
		return errors.New("jwt_expires_in must be positive")
	}
	if c.BCryptCost < 4 || c.BCryptCost > 31 {
		return errors.New("bcrypt_cost must be between 4 and 31")
	}
	return nil
}

func (c *CacheConfig) Validate(redis RedisConfig) error {
	switch c.Driver {
	case "memory":
	case "redis":
		if !redis.Enabled {
			return errors.New("redis driver selected but redis is disabled")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.SnapshotTTL <= 0 {
		return errors.New("snapshot_ttl must be positive")
	}
	return nil
}

func (c *CORSConfig) Validate() error {
	for _, origin := range c.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
		}
	}
	return nil
}

func (c *MailConfig) Validate() error {
	switch c.Driver {
	case "log":
	case "smtp":
		if c.Host == "" {
			return errors.New("host is required for the smtp driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}
