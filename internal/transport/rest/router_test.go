package rest_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/aolus-software/rbac-api/api"
	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/auth"
	authPostgres "github.com/aolus-software/rbac-api/internal/auth/postgres"
	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/dbtest"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/core/events"
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
	"github.com/aolus-software/rbac-api/internal/user"
	userPostgres "github.com/aolus-software/rbac-api/internal/user/postgres"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const routerSecret = "router-test-secret-with-32-characters!"

type stack struct {
	router  http.Handler
	db      *gorm.DB
	hasher  *auth.BcryptHasher
	metrics *metrics.Metrics
}

func newStack(limiter middleware.Limiter, requests int) *stack {
	db, err := dbtest.Open()
	Expect(err).NotTo(HaveOccurred())
	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())

	lg := logger.Discard()
	base := transport.NewBaseHandler(lg)
	m := metrics.New()
	store := cache.NewMemoryStore(64, time.Minute)
	snapshots := cache.NewSnapshotCache(store, time.Minute, lg, m)
	builder := snapshot.NewBuilder(db)
	tokens := auth.NewJWTTokenGenerator(routerSecret, time.Hour)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	cfg := &internal.Config{}
	cfg.Server.BodyLimitBytes = 1 << 20
	cfg.RateLimit.Requests = requests
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"

	authSvc := auth.NewService(authPostgres.NewAuthRepository(db), tokens, hasher, builder, snapshots,
		events.NewEventBus(lg), auth.TokenTTLs{}, lg)

	router := rest.NewRouter(rest.Routes{
		Config:        cfg,
		Base:          base,
		Logger:        lg,
		Metrics:       m,
		Limiter:       limiter,
		OpenAPI:       api.OpenAPI,
		Authenticator: auth.NewAuthenticator(base, tokens, builder, snapshots),
		Guard:         auth.NewRBACAuthorization(base),
		Health:        rest.NewHealthHandler(base, sqlx.NewDb(sqlDB, "sqlite3"), store),
		Auth:          auth.NewHandler(base, authSvc),
		Profile: profile.NewHandler(base, profile.NewService(profilePostgres.NewProfileRepository(db),
			hasher, builder, snapshots, lg)),
		SelectOptions: selectoption.NewHandler(base, selectoption.NewService(selectoption.NewRepository(db), lg)),
		Permissions:   permission.NewHandler(base, permission.NewService(permissionPostgres.NewPermissionRepository(db), snapshots, lg)),
		Roles:         role.NewHandler(base, role.NewService(rolePostgres.NewRoleRepository(db), snapshots, lg)),
		Users:         user.NewHandler(base, user.NewService(userPostgres.NewUserRepository(db), hasher, snapshots, lg)),
	})

	return &stack{router: router, db: db, hasher: hasher, metrics: m}
}

// member creates a verified active user holding roleName with the given permissions.
func (s *stack) member(email, roleName string, perms ...string) {
	hash, err := s.hasher.Hash("Secret1!")
	Expect(err).NotTo(HaveOccurred())
	now := time.Now()
	u := &userDatamodel.User{Name: "Member", Email: email, Password: hash, Status: userDatamodel.StatusActive, EmailVerifiedAt: &now}
	Expect(s.db.Create(u).Error).To(Succeed())

	r := &rbac.Role{Name: roleName}
	Expect(s.db.Create(r).Error).To(Succeed())
	Expect(s.db.Create(&rbac.UserRole{UserID: u.ID, RoleID: r.ID}).Error).To(Succeed())

	for _, name := range perms {
		p := &rbac.Permission{Name: name, Group: strings.Fields(name)[0]}
		Expect(s.db.Create(p).Error).To(Succeed())
		Expect(s.db.Create(&rbac.RolePermission{RoleID: r.ID, PermissionID: p.ID}).Error).To(Succeed())
	}
}

func (s *stack) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *stack) login(email string) string {
	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"Secret1!"}`)
	ExpectWithOffset(1, rec.Code).To(Equal(http.StatusOK), rec.Body.String())

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Data.Token
}

func envelopeOf(rec *httptest.ResponseRecorder) transport.Envelope {
	var env transport.Envelope
	ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
	return env
}

var _ = Describe("Router", func() {
	var s *stack

	BeforeEach(func() {
		s = newStack(nil, 0)
	})

	It("serves ping with a trace id and security headers", func() {
		rec := s.do(http.MethodGet, "/api/v1/ping", "", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
		Expect(rec.Header().Get("X-Content-Type-Options")).To(Equal("nosniff"))
	})

	It("reports health from the real database and cache", func() {
		rec := s.do(http.MethodGet, "/api/v1/health", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("answers unknown routes with a 404 envelope", func() {
		rec := s.do(http.MethodGet, "/api/v1/nope", "", "")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(envelopeOf(rec).Success).To(BeFalse())
	})

	It("requires a bearer token for the profile", func() {
		rec := s.do(http.MethodGet, "/api/v1/profile", "", "")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(envelopeOf(rec).Message).To(Equal("Authentication token is missing"))
	})

	It("returns the caller's snapshot from the profile", func() {
		s.member("editor@example.com", "editor", rbac.PermRoleList)
		token := s.login("editor@example.com")

		rec := s.do(http.MethodGet, "/api/v1/profile", token, "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			Data snapshot.Snapshot `json:"data"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Data.Email).To(Equal("editor@example.com"))
		Expect(body.Data.Roles).To(ConsistOf("editor"))
	})

	It("lets permission holders through and forbids the rest", func() {
		s.member("editor@example.com", "editor", rbac.PermRoleList)
		token := s.login("editor@example.com")

		Expect(s.do(http.MethodGet, "/api/v1/settings/roles", token, "").Code).To(Equal(http.StatusOK))
		Expect(s.do(http.MethodGet, "/api/v1/settings/users", token, "").Code).To(Equal(http.StatusForbidden))
		Expect(s.do(http.MethodGet, "/api/v1/settings/permissions", token, "").Code).To(Equal(http.StatusForbidden))
		Expect(s.do(http.MethodGet, "/api/v1/settings/select-options/roles", token, "").Code).To(Equal(http.StatusForbidden))
	})

	It("lets the superuser reach every settings route", func() {
		s.member("root@example.com", rbac.SuperuserRole)
		token := s.login("root@example.com")

		Expect(s.do(http.MethodGet, "/api/v1/settings/permissions", token, "").Code).To(Equal(http.StatusOK))
		Expect(s.do(http.MethodGet, "/api/v1/settings/select-options/permissions", token, "").Code).To(Equal(http.StatusOK))
		Expect(s.do(http.MethodGet, "/api/v1/settings/users", token, "").Code).To(Equal(http.StatusOK))

		rec := s.do(http.MethodPost, "/api/v1/settings/roles", token, `{"name":"support","permission_ids":[]}`)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())
	})

	It("serves the docs and metrics outside the api prefix", func() {
		s.do(http.MethodGet, "/api/v1/ping", "", "")

		spec := s.do(http.MethodGet, "/openapi.yml", "", "")
		Expect(spec.Code).To(Equal(http.StatusOK))
		Expect(spec.Body.String()).To(ContainSubstring("openapi: 3.0.3"))

		rec := s.do(http.MethodGet, "/metrics", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`rbac_api_http_requests_total{method="GET",route="/api/v1/ping",status="200"}`))
	})

	It("rate limits the api per client", func() {
		s = newStack(middleware.NewMemoryLimiter(time.Minute), 2)

		Expect(s.do(http.MethodGet, "/api/v1/ping", "", "").Code).To(Equal(http.StatusOK))
		Expect(s.do(http.MethodGet, "/api/v1/ping", "", "").Code).To(Equal(http.StatusOK))
		rec := s.do(http.MethodGet, "/api/v1/ping", "", "")
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(envelopeOf(rec).Message).To(Equal("Too Many Requests"))

		Expect(s.do(http.MethodGet, "/openapi.yml", "", "").Code).To(Equal(http.StatusOK))
	})
})
