package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const snapshotKeyPrefix = "user:snapshot:"

func SnapshotKey(userID string) string {
	return snapshotKeyPrefix + userID
}

// SnapshotCache stores JSON-encoded snapshots under user:snapshot:<id>.
// A corrupt entry is dropped and reported as a miss.
//
// Generations are tracked in process only. Another instance's rebuild can
// still write back an entry this instance invalidated; that entry lives at
// most one TTL.
type SnapshotCache struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	gens    sync.Map // user id -> *atomic.Uint64
}

func NewSnapshotCache(store Store, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SnapshotCache{store: store, ttl: ttl, logger: logger, metrics: m}
}

func (c *SnapshotCache) Get(ctx context.Context, userID string) (*snapshot.Snapshot, error) {
	key := SnapshotKey(userID)

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		c.metrics.ObserveCacheLookup(c.store.Driver(), "miss")
		return nil, nil
	}
	if err != nil {
		c.metrics.ObserveCacheLookup(c.store.Driver(), "error")
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	var s snapshot.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable snapshot", "key", key, "error", err)
		_ = c.store.Delete(ctx, key)
		c.metrics.ObserveCacheLookup(c.store.Driver(), "miss")
		return nil, nil
	}

	c.metrics.ObserveCacheLookup(c.store.Driver(), "hit")
	return &s, nil
}

func (c *SnapshotCache) Set(ctx context.Context, s *snapshot.Snapshot) error {
	if s == nil || s.ID == "" {
		return errors.New("cache: snapshot without id")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, SnapshotKey(s.ID), raw, c.ttl)
}

func (c *SnapshotCache) generation(userID string) *atomic.Uint64 {
	v, _ := c.gens.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (c *SnapshotCache) Generation(userID string) uint64 {
	return c.generation(userID).Load()
}

// Fill stores s unless the user was invalidated after generation was read.
func (c *SnapshotCache) Fill(ctx context.Context, s *snapshot.Snapshot, generation uint64) (bool, error) {
	if s == nil || s.ID == "" {
		return false, errors.New("cache: snapshot without id")
	}
	if c.Generation(s.ID) != generation {
		c.logger.DebugContext(ctx, "skipping stale snapshot fill", "user_id", s.ID)
		return false, nil
	}
	if err := c.Set(ctx, s); err != nil {
		return false, err
	}
	// an invalidation that raced the write removes what was just stored
	if c.Generation(s.ID) != generation {
		return false, c.store.Delete(ctx, SnapshotKey(s.ID))
	}
	return true, nil
}

func (c *SnapshotCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		c.generation(id).Add(1)
		keys[i] = SnapshotKey(id)
	}
	return c.store.Delete(ctx, keys...)
}

var _ snapshot.Cache = (*SnapshotCache)(nil)
