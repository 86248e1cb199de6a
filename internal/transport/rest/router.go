package rest

import (
	"log/slog"
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/auth"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/internal/permission"
	"github.com/aolus-software/rbac-api/internal/profile"
	"github.com/aolus-software/rbac-api/internal/role"
	"github.com/aolus-software/rbac-api/internal/selectoption"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/internal/transport/middleware"
	"github.com/aolus-software/rbac-api/internal/transport/swagger"
	"github.com/aolus-software/rbac-api/internal/user"
	"github.com/go-chi/chi"
)

// Routes carries everything the router mounts. A nil Limiter disables rate
// limiting and a nil Metrics hides /metrics.
type Routes struct {
	Config  *internal.Config
	Base    *transport.BaseHandler
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Limiter middleware.Limiter
	Proxies *transport.ProxyTrust
	OpenAPI []byte

	Authenticator *auth.Authenticator
	Guard         *auth.RBACAuthorization

	Health        *HealthHandler
	Auth          *auth.Handler
	Profile       *profile.Handler
	SelectOptions *selectoption.Handler
	Permissions   *permission.Handler
	Roles         *role.Handler
	Users         *user.Handler
}

func NewRouter(rt Routes) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(rt.Metrics.Middleware)
	router.Use(middleware.Logging(rt.Logger))
	router.Use(middleware.Recovery(rt.Base))
	router.Use(middleware.CORS(rt.Config.CORS))
	router.Use(middleware.SecureHeaders)
	router.Use(middleware.BodyLimit(rt.Config.Server.BodyLimitBytes))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.Base.WriteError(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.Base.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if len(rt.OpenAPI) > 0 {
		router.Get(swagger.SpecPath, swagger.SpecHandler(rt.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}
	if rt.Metrics != nil && rt.Config.Observability.Metrics.Enabled {
		router.Handle(rt.Config.Observability.Metrics.Path, rt.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if rt.Limiter != nil {
			r.Use(middleware.RateLimit(rt.Limiter, rt.Config.RateLimit.Requests, rt.Proxies, rt.Base, rt.Metrics, rt.Logger))
		}

		r.Get("/ping", rt.Health.Ping)
		r.Get("/health", rt.Health.Health)

		r.Route("/auth", func(ar chi.Router) {
			ar.Post("/login", rt.Auth.Login)
			ar.Post("/register", rt.Auth.Register)
			ar.Post("/resend-verification", rt.Auth.ResendVerification)
			ar.Post("/verify-email", rt.Auth.VerifyEmail)
			ar.Post("/forgot-password", rt.Auth.ForgotPassword)
			ar.Post("/reset-password", rt.Auth.ResetPassword)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(rt.Authenticator.Middleware)

			pr.Route("/profile", func(p chi.Router) {
				p.Get("/", rt.Profile.Get)
				p.Put("/", rt.Profile.Update)
				p.Put("/password", rt.Profile.ChangePassword)
			})

			pr.Route("/settings", func(s chi.Router) {
				s.Group(func(su chi.Router) {
					su.Use(rt.Guard.RequireSuperuser())

					su.Get("/select-options/permissions", rt.SelectOptions.Permissions)
					su.Get("/select-options/roles", rt.SelectOptions.Roles)

					su.Get("/permissions", rt.Permissions.List)
					su.Post("/permissions", rt.Permissions.Create)
					su.Get("/permissions/{id}", rt.Permissions.Detail)
					su.Put("/permissions/{id}", rt.Permissions.Update)
					su.Delete("/permissions/{id}", rt.Permissions.Delete)
				})

				s.Route("/roles", func(rr chi.Router) {
					rr.With(rt.Guard.RequirePermissions(rbac.PermRoleList)).Get("/", rt.Roles.List)
					rr.With(rt.Guard.RequirePermissions(rbac.PermRoleCreate)).Post("/", rt.Roles.Create)
					rr.With(rt.Guard.RequirePermissions(rbac.PermRoleDetail)).Get("/{id}", rt.Roles.Detail)
					rr.With(rt.Guard.RequirePermissions(rbac.PermRoleEdit)).Put("/{id}", rt.Roles.Update)
					rr.With(rt.Guard.RequirePermissions(rbac.PermRoleDelete)).Delete("/{id}", rt.Roles.Delete)
				})

				s.Route("/users", func(ur chi.Router) {
					ur.With(rt.Guard.RequirePermissions(rbac.PermUserList)).Get("/", rt.Users.List)
					ur.With(rt.Guard.RequirePermissions(rbac.PermUserCreate)).Post("/", rt.Users.Create)
					ur.With(rt.Guard.RequirePermissions(rbac.PermUserDetail)).Get("/{id}", rt.Users.Detail)
					ur.With(rt.Guard.RequirePermissions(rbac.PermUserEdit)).Put("/{id}", rt.Users.Update)
					ur.With(rt.Guard.RequirePermissions(rbac.PermUserDelete)).Delete("/{id}", rt.Users.Delete)
				})
			})
		})
	})

	return router
}
