package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-redis/redis/v8"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache Suite")
}

var _ = Describe("SnapshotCache", func() {
	var (
		ctx context.Context
		s   *snapshot.Snapshot
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = &snapshot.Snapshot{
			ID:          "3f1c2a8e-0000-4000-8000-000000000001",
			Name:        "Jane",
			Email:       "jane@example.com",
			Roles:       []string{"admin"},
			Permissions: []snapshot.RolePermissions{{Name: "admin", Permissions: []string{"user list"}}},
		}
	})

	Context("backed by redis", func() {
		var (
			mr     *miniredis.Miniredis
			client *redis.Client
			c      *cache.SnapshotCache
			m      *metrics.Metrics
		)

		BeforeEach(func() {
			var err error
			mr, err = miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
			m = metrics.New()
			c = cache.NewSnapshotCache(cache.NewRedisStore(client), time.Minute, logger.Discard(), m)
		})

		AfterEach(func() {
			_ = client.Close()
			mr.Close()
		})

		It("stores the snapshot under user:snapshot:<id> with the configured ttl", func() {
			Expect(c.Set(ctx, s)).To(Succeed())

			Expect(mr.Exists("user:snapshot:" + s.ID)).To(BeTrue())
			Expect(mr.TTL("user:snapshot:" + s.ID)).To(Equal(time.Minute))

			got, err := c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(s))
			Expect(testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("redis", "hit"))).To(Equal(1.0))
		})

		It("reports a miss as nil without error", func() {
			got, err := c.Get(ctx, "unknown")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("drops entries that cannot be decoded", func() {
			Expect(mr.Set("user:snapshot:"+s.ID, "{not json")).To(Succeed())

			got, err := c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
			Expect(mr.Exists("user:snapshot:" + s.ID)).To(BeFalse())
		})

		It("invalidates several users at once", func() {
			other := *s
			other.ID = "3f1c2a8e-0000-4000-8000-000000000002"
			Expect(c.Set(ctx, s)).To(Succeed())
			Expect(c.Set(ctx, &other)).To(Succeed())

			Expect(c.Invalidate(ctx, s.ID, other.ID)).To(Succeed())
			Expect(mr.Keys()).To(BeEmpty())
		})

		It("surfaces backend failures on Get", func() {
			mr.SetError("boom")
			_, err := c.Get(ctx, s.ID)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("backed by memory", func() {
		It("round-trips and invalidates", func() {
			c := cache.NewSnapshotCache(cache.NewMemoryStore(16, time.Minute), time.Minute, logger.Discard(), nil)

			Expect(c.Set(ctx, s)).To(Succeed())
			got, err := c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Roles).To(Equal([]string{"admin"}))

			Expect(c.Invalidate(ctx, s.ID)).To(Succeed())
			got, err = c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("expires entries after the ttl", func() {
			store := cache.NewMemoryStore(16, 20*time.Millisecond)
			Expect(store.Set(ctx, "k", []byte("v"), 0)).To(Succeed())

			Eventually(func() error {
				_, err := store.Get(ctx, "k")
				return err
			}).WithTimeout(time.Second).Should(MatchError(cache.ErrMiss))
		})

		It("drops a fill that started before an invalidation", func() {
			c := cache.NewSnapshotCache(cache.NewMemoryStore(16, time.Minute), time.Minute, logger.Discard(), nil)

			gen := c.Generation(s.ID)
			Expect(c.Invalidate(ctx, s.ID)).To(Succeed())

			stored, err := c.Fill(ctx, s, gen)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeFalse())
			got, err := c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())

			stored, err = c.Fill(ctx, s, c.Generation(s.ID))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(BeTrue())
			got, err = c.Get(ctx, s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
		})

		It("rejects snapshots without an id", func() {
			c := cache.NewSnapshotCache(cache.NewMemoryStore(4, time.Minute), time.Minute, logger.Discard(), nil)
			Expect(c.Set(ctx, &snapshot.Snapshot{})).NotTo(Succeed())
		})
	})
})
