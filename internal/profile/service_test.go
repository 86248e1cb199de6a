package profile_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/auth"
	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/dbtest"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/profile"
	profilePostgres "github.com/aolus-software/rbac-api/internal/profile/postgres"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestProfile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Profile Module Suite")
}

func expectAppError(err error, code internal.ErrorCode, field string) {
	appErr, ok := internal.IsAppError(err)
	ExpectWithOffset(1, ok).To(BeTrue(), "expected *AppError, got %v", err)
	ExpectWithOffset(1, appErr.Code).To(Equal(code))
	if field != "" {
		ExpectWithOffset(1, appErr.Errors).To(HaveKey(field))
	}
}

var _ = Describe("Profile", func() {
	var (
		ctx    context.Context
		db     *gorm.DB
		c      *cache.SnapshotCache
		hasher *auth.BcryptHasher
		svc    *profile.Service
		me     *userDatamodel.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		c = cache.NewSnapshotCache(cache.NewMemoryStore(64, time.Minute), time.Minute, logger.Discard(), nil)
		hasher = auth.NewBcryptHasher(bcrypt.MinCost)
		svc = profile.NewService(profilePostgres.NewProfileRepository(db), hasher, snapshot.NewBuilder(db), c, logger.Discard())

		hash, err := hasher.Hash("Current1!")
		Expect(err).NotTo(HaveOccurred())
		now := time.Now()
		me = &userDatamodel.User{Name: "Jane", Email: "jane@x.com", Password: hash, EmailVerifiedAt: &now}
		Expect(db.Create(me).Error).NotTo(HaveOccurred())

		role := &rbac.Role{Name: "editor"}
		Expect(db.Create(role).Error).NotTo(HaveOccurred())
		Expect(db.Create(&rbac.UserRole{UserID: me.ID, RoleID: role.ID}).Error).NotTo(HaveOccurred())

		Expect(c.Set(ctx, &snapshot.Snapshot{ID: me.ID, Name: "Jane", Email: "jane@x.com", Roles: []string{"editor"}})).To(Succeed())
	})

	Describe("Update", func() {
		It("returns and caches the rebuilt snapshot", func() {
			remarks := "night shift"
			snap, err := svc.Update(ctx, me.ID, profile.UpdateDTO{Name: "Jane Q", Email: "Jane.Q@x.com", Remarks: &remarks})
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Name).To(Equal("Jane Q"))
			Expect(snap.Email).To(Equal("jane.q@x.com"))
			Expect(snap.Roles).To(Equal([]string{"editor"}))

			cached, err := c.Get(ctx, me.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).To(Equal(snap))

			var stored userDatamodel.User
			Expect(db.First(&stored, "id = ?", me.ID).Error).NotTo(HaveOccurred())
			Expect(stored.Remark).To(HaveValue(Equal("night shift")))
		})

		It("rejects an email used by another account", func() {
			Expect(db.Create(&userDatamodel.User{Name: "John", Email: "john@x.com", Password: "x"}).Error).NotTo(HaveOccurred())

			_, err := svc.Update(ctx, me.ID, profile.UpdateDTO{Name: "Jane", Email: "JOHN@x.com"})
			expectAppError(err, internal.ErrCodeEmailTaken, "email")
		})
	})

	Describe("ChangePassword", func() {
		It("requires the current password", func() {
			err := svc.ChangePassword(ctx, me.ID, profile.ChangePasswordDTO{CurrentPassword: "Wrong123!", NewPassword: "Another1!"})
			expectAppError(err, internal.ErrCodeWrongPassword, "current_password")
		})

		It("rejects reusing the current password", func() {
			err := svc.ChangePassword(ctx, me.ID, profile.ChangePasswordDTO{CurrentPassword: "Current1!", NewPassword: "Current1!"})
			expectAppError(err, internal.ErrCodeValidationFailed, "new_password")
		})

		It("stores the new hash and drops the cache entry", func() {
			Expect(svc.ChangePassword(ctx, me.ID, profile.ChangePasswordDTO{CurrentPassword: "Current1!", NewPassword: "Another1!"})).To(Succeed())

			var stored userDatamodel.User
			Expect(db.First(&stored, "id = ?", me.ID).Error).NotTo(HaveOccurred())
			ok, err := hasher.Compare(stored.Password, "Another1!")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			cached, err := c.Get(ctx, me.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).To(BeNil())
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			h := profile.NewHandler(transport.NewBaseHandler(logger.Discard()), svc)
			withIdentity := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					snap, err := c.Get(r.Context(), me.ID)
					Expect(err).NotTo(HaveOccurred())
					next.ServeHTTP(w, r.WithContext(snapshot.WithContext(r.Context(), snap)))
				})
			}
			router = chi.NewRouter()
			router.With(withIdentity).Get("/profile", h.Get)
			router.With(withIdentity).Put("/profile", h.Update)
			router.Get("/anonymous", h.Get)
		})

		It("returns the bound snapshot", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body struct {
				Data snapshot.Snapshot `json:"data"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Data.ID).To(Equal(me.ID))
		})

		It("updates through PUT and validates input", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(`{"name":"","email":"bad"}`)))
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(`{"name":"Jane R","email":"jane@x.com"}`)))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("fails closed without an identity", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anonymous", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
