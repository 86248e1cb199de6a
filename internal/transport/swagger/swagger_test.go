package swagger_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aolus-software/rbac-api/api"
	"github.com/aolus-software/rbac-api/internal/transport/swagger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSwagger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Swagger Suite")
}

var _ = Describe("OpenAPI document", func() {
	It("loads and validates the embedded document", func() {
		doc, err := swagger.Load(context.Background(), api.OpenAPI)
		Expect(err).NotTo(HaveOccurred())

		Expect(doc.Paths.Find("/auth/login")).NotTo(BeNil())
		Expect(doc.Paths.Find("/settings/roles/{id}")).NotTo(BeNil())
		Expect(doc.Components.SecuritySchemes).To(HaveKey("bearerAuth"))
	})

	It("rejects a broken document", func() {
		_, err := swagger.Load(context.Background(), []byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
		Expect(err).To(HaveOccurred())
	})

	It("serves the raw document as yaml", func() {
		rec := httptest.NewRecorder()
		swagger.SpecHandler(api.OpenAPI)(rec, httptest.NewRequest(http.MethodGet, swagger.SpecPath, nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/yaml"))
		Expect(rec.Body.Bytes()).To(Equal(api.OpenAPI))
	})
})
