package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

var _ = Describe("Metrics", func() {
	It("labels requests by route pattern", func() {
		m := metrics.New()
		r := chi.NewRouter()
		r.Use(m.Middleware)
		r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/43", nil))

		Expect(testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/users/{id}", "204"))).To(Equal(2.0))
	})

	It("exposes collected series on the handler", func() {
		m := metrics.New()
		m.ObserveCacheLookup("memory", "hit")
		m.ObserveTokensPurged("email_verification", 3)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		body := rec.Body.String()
		Expect(strings.Contains(body, `rbac_api_snapshot_cache_lookups_total{driver="memory",result="hit"} 1`)).To(BeTrue())
		Expect(strings.Contains(body, `rbac_api_expired_tokens_purged_total{kind="email_verification"} 3`)).To(BeTrue())
	})

	It("tolerates a nil receiver", func() {
		var m *metrics.Metrics
		Expect(func() {
			m.ObserveCacheLookup("redis", "miss")
			m.ObserveRateLimited()
			m.ObserveMailDelivery("password_reset", "sent")
		}).NotTo(Panic())

		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		Expect(m.Middleware(next)).NotTo(BeNil())
	})
})
