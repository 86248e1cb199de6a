package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/aolus-software/rbac-api/internal/auth"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

// gatedBuilder holds every build until release is closed.
type gatedBuilder struct {
	inner   auth.SnapshotBuilderAPI
	started chan struct{}
	release chan struct{}
	builds  atomic.Int32
}

func (b *gatedBuilder) Build(ctx context.Context, userID string, opts snapshot.Options) (*snapshot.Snapshot, error) {
	if b.builds.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.inner.Build(ctx, userID, opts)
}

func decodeEnvelope(rec *httptest.ResponseRecorder) envelope {
	var body envelope
	ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body
}

var _ = Describe("Authenticator and RBACAuthorization", func() {
	var (
		f      *fixture
		router chi.Router
		user   *userDatamodel.User
		role   *rbac.Role
	)

	BeforeEach(func() {
		f = newFixture()
		base := &transport.BaseHandler{Logger: logger.Discard()}
		authenticator := auth.NewAuthenticator(base, f.tokens, snapshot.NewBuilder(f.db), f.cache)
		guard := auth.NewRBACAuthorization(base)

		ok := func(w http.ResponseWriter, r *http.Request) {
			snap, _ := snapshot.FromContext(r.Context())
			w.Header().Set("X-User", snap.ID)
			w.WriteHeader(http.StatusOK)
		}

		router = chi.NewRouter()
		router.With(authenticator.Middleware).Get("/me", ok)
		router.With(authenticator.Middleware, guard.RequireRoles("admin")).Get("/admin", ok)
		router.With(authenticator.Middleware, guard.RequirePermissions("user edit", "user create")).Get("/edit", ok)
		router.With(authenticator.Middleware, guard.RequireSuperuser()).Get("/root", ok)
		router.With(guard.RequireRoles("admin")).Get("/unguarded", ok)

		user = f.createUser("member@x.com", true, userDatamodel.StatusActive)
		role = &rbac.Role{Name: "editor"}
		Expect(f.db.Create(role).Error).NotTo(HaveOccurred())
		perm := &rbac.Permission{Name: "user edit", Group: "user"}
		Expect(f.db.Create(perm).Error).NotTo(HaveOccurred())
		Expect(f.db.Create(&rbac.RolePermission{RoleID: role.ID, PermissionID: perm.ID}).Error).NotTo(HaveOccurred())
		Expect(f.db.Create(&rbac.UserRole{UserID: user.ID, RoleID: role.ID}).Error).NotTo(HaveOccurred())
	})

	call := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	tokenFor := func(id string) string {
		token, err := f.tokens.GenerateToken(id)
		Expect(err).NotTo(HaveOccurred())
		return token
	}

	Context("identity resolution", func() {
		It("rejects requests without a bearer token", func() {
			rec := call("/me", "")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			body := decodeEnvelope(rec)
			Expect(body.Success).To(BeFalse())
			Expect(string(body.Data)).To(Equal("null"))
		})

		It("treats a malformed authorization header like a missing token", func() {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Token abc")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects tokens with a bad signature", func() {
			other := auth.NewJWTTokenGenerator("ffffffffffffffffffffffffffffffff", time.Hour)
			token, err := other.GenerateToken(user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(call("/me", token).Code).To(Equal(http.StatusUnauthorized))
		})

		It("binds the snapshot and populates the cache on a miss", func() {
			rec := call("/me", tokenFor(user.ID))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-User")).To(Equal(user.ID))

			cached, err := f.cache.Get(context.Background(), user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached.Roles).To(Equal([]string{"editor"}))
		})

		It("rejects users that are no longer active", func() {
			Expect(f.db.Model(user).Update("status", userDatamodel.StatusBlocked).Error).NotTo(HaveOccurred())
			Expect(call("/me", tokenFor(user.ID)).Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects soft-deleted users", func() {
			Expect(f.db.Delete(user).Error).NotTo(HaveOccurred())
			Expect(call("/me", tokenFor(user.ID)).Code).To(Equal(http.StatusUnauthorized))
		})

		It("keeps a shared rebuild alive when the first caller goes away", func() {
			gate := &gatedBuilder{inner: snapshot.NewBuilder(f.db), started: make(chan struct{}), release: make(chan struct{})}
			authenticator := auth.NewAuthenticator(&transport.BaseHandler{Logger: logger.Discard()}, f.tokens, gate, f.cache)
			h := authenticator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			token := tokenFor(user.ID)

			serve := func(ctx context.Context) *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodGet, "/me", nil).WithContext(ctx)
				req.Header.Set("Authorization", "Bearer "+token)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				return rec
			}

			firstCtx, cancel := context.WithCancel(context.Background())
			first := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				defer GinkgoRecover()
				first <- serve(firstCtx)
			}()
			Eventually(gate.started).Should(BeClosed())

			second := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				defer GinkgoRecover()
				second <- serve(context.Background())
			}()

			cancel()
			Eventually(first).Should(Receive())
			close(gate.release)

			var rec *httptest.ResponseRecorder
			Eventually(second).Should(Receive(&rec))
			Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
			Expect(gate.builds.Load()).To(Equal(int32(1)))

			cached, err := f.cache.Get(context.Background(), user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).NotTo(BeNil())
		})

		It("serves from the cache until the entry is invalidated", func() {
			token := tokenFor(user.ID)
			Expect(call("/edit", token).Code).To(Equal(http.StatusOK))

			Expect(f.db.Where("role_id = ?", role.ID).Delete(&rbac.RolePermission{}).Error).NotTo(HaveOccurred())
			Expect(call("/edit", token).Code).To(Equal(http.StatusOK))

			Expect(f.cache.Invalidate(context.Background(), user.ID)).To(Succeed())
			Expect(call("/edit", token).Code).To(Equal(http.StatusForbidden))
		})
	})

	Context("guards", func() {
		It("denies a missing role with the required roles in the message", func() {
			rec := call("/admin", tokenFor(user.ID))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decodeEnvelope(rec).Message).To(Equal("Access denied. Required roles: admin"))
		})

		It("passes a permission guard on any intersection", func() {
			Expect(call("/edit", tokenFor(user.ID)).Code).To(Equal(http.StatusOK))
		})

		It("lets superusers through every guard", func() {
			root := f.createUser("root@x.com", true, userDatamodel.StatusActive)
			su := &rbac.Role{Name: rbac.SuperuserRole}
			Expect(f.db.Create(su).Error).NotTo(HaveOccurred())
			Expect(f.db.Create(&rbac.UserRole{UserID: root.ID, RoleID: su.ID}).Error).NotTo(HaveOccurred())

			token := tokenFor(root.ID)
			Expect(call("/admin", token).Code).To(Equal(http.StatusOK))
			Expect(call("/edit", token).Code).To(Equal(http.StatusOK))
			Expect(call("/root", token).Code).To(Equal(http.StatusOK))
		})

		It("restricts the superuser guard to superusers", func() {
			Expect(call("/root", tokenFor(user.ID)).Code).To(Equal(http.StatusForbidden))
		})

		It("fails closed when no identity was resolved", func() {
			rec := call("/unguarded", "")
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decodeEnvelope(rec).Message).To(ContainSubstring("User information not found"))
		})
	})
})

var _ = Describe("Permission guard predicate", func() {
	It("passes on a non-empty intersection and fails otherwise", func() {
		s := &snapshot.Snapshot{
			Roles:       []string{"A"},
			Permissions: []snapshot.RolePermissions{{Name: "A", Permissions: []string{"p1", "p2"}}},
		}
		Expect(s.HasAnyPermission([]string{"p2", "p3"})).To(BeTrue())
		Expect(s.HasAnyPermission([]string{"p4"})).To(BeFalse())
	})
})

var _ = Describe("TokenJanitor", func() {
	It("purges on demand and rejects bad schedules", func() {
		f := newFixture()
		_, err := auth.NewTokenJanitor(f.service, "not a schedule", logger.Discard(), nil)
		Expect(err).To(HaveOccurred())

		janitor, err := auth.NewTokenJanitor(f.service, "@hourly", logger.Discard(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(janitor.RunOnce(context.Background())).To(Succeed())

		janitor.Start()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		janitor.Stop(ctx)
	})
})
