package role_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aolus-software/rbac-api/internal/role"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

var _ = Describe("Role Handler", func() {
	var (
		f      *fixture
		router chi.Router
	)

	BeforeEach(func() {
		f = newFixture()
		h := role.NewHandler(transport.NewBaseHandler(logger.Discard()), f.service)
		router = chi.NewRouter()
		router.Get("/roles", h.List)
		router.Post("/roles", h.Create)
		router.Get("/roles/{id}", h.Detail)
		router.Put("/roles/{id}", h.Update)
		router.Delete("/roles/{id}", h.Delete)
	})

	do := func(method, path, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var env envelope
		ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
		return rec, env
	}

	It("creates with 201 and lists with pagination meta", func() {
		rec, env := do(http.MethodPost, "/roles", `{"name":"editor","permission_ids":["`+f.p1.ID+`"]}`)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(env.Success).To(BeTrue())

		rec, env = do(http.MethodGet, "/roles?limit=5", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var page struct {
			Data []role.Role `json:"data"`
			Meta struct {
				Page       int   `json:"page"`
				Limit      int   `json:"limit"`
				TotalCount int64 `json:"totalCount"`
			} `json:"meta"`
		}
		Expect(json.Unmarshal(env.Data, &page)).To(Succeed())
		Expect(page.Data).To(HaveLen(1))
		Expect(page.Meta.Limit).To(Equal(5))
		Expect(page.Meta.TotalCount).To(Equal(int64(1)))
	})

	It("returns 404 in the envelope for unknown roles", func() {
		rec, env := do(http.MethodGet, "/roles/"+uuid.NewString(), "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(env.Success).To(BeFalse())
		Expect(env.Message).To(Equal("Role not found"))
	})

	It("returns field errors for invalid bodies and queries", func() {
		rec, env := do(http.MethodPost, "/roles", `{"name":"ab","permission_ids":["x"]}`)
		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(env.Errors).To(HaveKey("name"))
		Expect(env.Errors).To(HaveKey("permission_ids"))

		rec, env = do(http.MethodGet, "/roles?limit=500", "")
		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(env.Errors).To(HaveKey("limit"))
	})
})
