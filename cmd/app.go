package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aolus-software/rbac-api/api"
	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/auth"
	authPostgres "github.com/aolus-software/rbac-api/internal/auth/postgres"
	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/core/events"
	"github.com/aolus-software/rbac-api/internal/mailer"
	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/internal/permission"
	permissionPostgres "github.com/aolus-software/rbac-api/internal/permission/postgres"
	"github.com/aolus-software/rbac-api/internal/profile"
	profilePostgres "github.com/aolus-software/rbac-api/internal/profile/postgres"
	"github.com/aolus-software/rbac-api/internal/role"
	rolePostgres "github.com/aolus-software/rbac-api/internal/role/postgres"
	"github.com/aolus-software/rbac-api/internal/selectoption"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/internal/transport/middleware"
	"github.com/aolus-software/rbac-api/internal/transport/rest"
	"github.com/aolus-software/rbac-api/internal/transport/swagger"
	"github.com/aolus-software/rbac-api/internal/user"
	userPostgres "github.com/aolus-software/rbac-api/internal/user/postgres"
	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dependencies holds every long-lived component of the server process.
type Dependencies struct {
	Config  *internal.Config
	Logger  *slog.Logger
	DB      *sqlx.DB
	Gorm    *gorm.DB
	Redis   *redis.Client
	Metrics *metrics.Metrics
	Bus     *events.EventBus
	Mailer  *mailer.Dispatcher
	Janitor *auth.TokenJanitor
	Router  *chi.Mux
}

func initializeDependencies(ctx context.Context, cfg *internal.Config, lg *slog.Logger) (*Dependencies, error) {
	if _, err := swagger.Load(ctx, api.OpenAPI); err != nil {
		return nil, err
	}

	deps := &Dependencies{Config: cfg, Logger: lg}

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db

	gdb, err := initGorm(db)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	deps.Gorm = gdb

	if cfg.Redis.Enabled {
		client, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		deps.Redis = client
	}

	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	var store cache.Store
	if cfg.Cache.Driver == cache.DriverRedis {
		store = cache.NewRedisStore(deps.Redis)
	} else {
		store = cache.NewMemoryStore(cfg.Cache.MemorySize, cfg.Cache.SnapshotTTL)
	}
	snapshots := cache.NewSnapshotCache(store, cfg.Cache.SnapshotTTL, lg, deps.Metrics)

	proxies, err := transport.NewProxyTrust(cfg.Server.TrustedProxies)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		if deps.Redis != nil {
			limiter = middleware.NewRedisLimiter(deps.Redis, cfg.RateLimit.Window)
		} else {
			limiter = middleware.NewMemoryLimiter(cfg.RateLimit.Window)
		}
	}

	bus := events.NewEventBus(lg)
	deps.Bus = bus
	deps.Mailer = mailer.NewDispatcher(newMailSender(cfg.Mail, lg), mailer.DispatcherConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
	}, lg, deps.Metrics)
	mailer.Register(bus, deps.Mailer, cfg.App.ClientURL)

	base := transport.NewBaseHandler(lg)
	base.ExposeStack = !cfg.App.IsProduction()

	builder := snapshot.NewBuilder(gdb)
	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTExpiresIn)
	hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost)

	authService := auth.NewService(
		authPostgres.NewAuthRepository(gdb),
		tokens,
		hasher,
		builder,
		snapshots,
		bus,
		auth.TokenTTLs{Verification: cfg.Security.VerificationTokenTTL, Reset: cfg.Security.ResetTokenTTL},
		lg,
	)

	janitor, err := auth.NewTokenJanitor(authService, cfg.Jobs.TokenCleanupSchedule, lg, deps.Metrics)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("invalid token cleanup schedule: %w", err)
	}
	deps.Janitor = janitor

	deps.Router = rest.NewRouter(rest.Routes{
		Config:        cfg,
		Base:          base,
		Logger:        lg,
		Metrics:       deps.Metrics,
		Limiter:       limiter,
		Proxies:       proxies,
		OpenAPI:       api.OpenAPI,
		Authenticator: auth.NewAuthenticator(base, tokens, builder, snapshots),
		Guard:         auth.NewRBACAuthorization(base),
		Health:        rest.NewHealthHandler(base, db, store),
		Auth:          auth.NewHandler(base, authService),
		Profile: profile.NewHandler(base,
			profile.NewService(profilePostgres.NewProfileRepository(gdb), hasher, builder, snapshots, lg)),
		SelectOptions: selectoption.NewHandler(base,
			selectoption.NewService(selectoption.NewRepository(gdb), lg)),
		Permissions: permission.NewHandler(base,
			permission.NewService(permissionPostgres.NewPermissionRepository(gdb), snapshots, lg)),
		Roles: role.NewHandler(base,
			role.NewService(rolePostgres.NewRoleRepository(gdb), snapshots, lg)),
		Users: user.NewHandler(base,
			user.NewService(userPostgres.NewUserRepository(gdb), hasher, snapshots, lg)),
	})

	return deps, nil
}

// Start launches the background workers.
func (d *Dependencies) Start() {
	d.Mailer.Start()
	d.Janitor.Start()
}

// Close stops background work and releases connections, in reverse start order.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Janitor != nil {
		d.Janitor.Stop(ctx)
	}
	// drain event handlers first so their mails reach the queue
	if d.Bus != nil {
		if err := d.Bus.Close(ctx); err != nil {
			d.Logger.Error("event bus drain incomplete", "error", err)
		}
	}
	if d.Mailer != nil {
		d.Mailer.Shutdown(ctx)
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

func newMailSender(cfg internal.MailConfig, lg *slog.Logger) mailer.Sender {
	if cfg.Driver == "smtp" {
		return mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
		})
	}
	return mailer.NewLogSender(lg)
}

// initDB opens the pgx pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func initRedis(ctx context.Context, cfg internal.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
