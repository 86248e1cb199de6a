package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/aolus-software/rbac-api/internal/cache"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

const probeTimeout = 2 * time.Second

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

type HealthHandler struct {
	*transport.BaseHandler
	db    *sqlx.DB
	store cache.Store
}

func NewHealthHandler(base *transport.BaseHandler, db *sqlx.DB, store cache.Store) *HealthHandler {
	return &HealthHandler{BaseHandler: base, db: db, store: store}
}

// Ping only says the process is serving.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Health probes the database and the cache in parallel and answers 503 when
// either is down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	var database, store CheckEntry
	var g errgroup.Group
	g.Go(func() error {
		database = probe(ctx, h.db.PingContext, map[string]any{
			"open_connections": h.db.Stats().OpenConnections,
			"in_use":           h.db.Stats().InUse,
		})
		return nil
	})
	g.Go(func() error {
		store = probe(ctx, h.store.Ping, map[string]any{"driver": h.store.Driver()})
		return nil
	})
	_ = g.Wait()

	resp := HealthResponse{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		Components: map[string]CheckEntry{"database": database, "cache": store},
	}

	statusCode := http.StatusOK
	for _, entry := range resp.Components {
		if entry.Status == HealthUnhealthy {
			resp.Status = HealthUnhealthy
			statusCode = http.StatusServiceUnavailable
		}
	}

	h.WriteJSON(w, statusCode, resp)
}

func probe(ctx context.Context, ping func(context.Context) error, details map[string]any) CheckEntry {
	start := time.Now()
	err := ping(ctx)

	entry := CheckEntry{
		Status:     HealthHealthy,
		Details:    details,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = HealthUnhealthy
		entry.Message = err.Error()
	}
	return entry
}
