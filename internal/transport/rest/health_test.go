package rest_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/internal/transport/rest"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rest Suite")
}

var _ = Describe("HealthHandler", func() {
	var (
		db     *sqlx.DB
		mock   sqlmock.Sqlmock
		mr     *miniredis.Miniredis
		client *redis.Client
		h      *rest.HealthHandler
	)

	BeforeEach(func() {
		raw, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).NotTo(HaveOccurred())
		db, mock = sqlx.NewDb(raw, "sqlmock"), m

		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

		h = rest.NewHealthHandler(transport.NewBaseHandler(logger.Discard()), db, cache.NewRedisStore(client))
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
		_ = db.Close()
	})

	check := func() (int, rest.HealthResponse) {
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		var resp rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return rec.Code, resp
	}

	It("reports healthy when both dependencies answer", func() {
		mock.ExpectPing()

		code, resp := check()
		Expect(code).To(Equal(http.StatusOK))
		Expect(resp.Status).To(Equal(rest.HealthHealthy))
		Expect(resp.Components).To(HaveKey("database"))
		Expect(resp.Components["cache"].Details).To(HaveKeyWithValue("driver", cache.DriverRedis))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("answers 503 and names the database when its ping fails", func() {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		code, resp := check()
		Expect(code).To(Equal(http.StatusServiceUnavailable))
		Expect(resp.Status).To(Equal(rest.HealthUnhealthy))
		Expect(resp.Components["database"].Status).To(Equal(rest.HealthUnhealthy))
		Expect(resp.Components["database"].Message).To(ContainSubstring("connection refused"))
		Expect(resp.Components["cache"].Status).To(Equal(rest.HealthHealthy))
	})

	It("answers 503 when redis is gone", func() {
		mock.ExpectPing()
		mr.Close()

		code, resp := check()
		Expect(code).To(Equal(http.StatusServiceUnavailable))
		Expect(resp.Components["cache"].Status).To(Equal(rest.HealthUnhealthy))
		Expect(resp.Components["database"].Status).To(Equal(rest.HealthHealthy))
	})

	It("answers ping without touching dependencies", func() {
		rec := httptest.NewRecorder()
		h.Ping(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"status":"OK"}`))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})
