package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// Limiter counts hits for key inside the current fixed window.
type Limiter interface {
	Hit(ctx context.Context, key string) (count int64, reset time.Duration, err error)
}

// windowKey buckets now into a window so each window starts from zero.
func windowKey(key string, window time.Duration, now time.Time) (string, time.Duration) {
	bucket := now.UnixNano() / int64(window)
	reset := time.Unix(0, (bucket+1)*int64(window)).Sub(now)
	return fmt.Sprintf("ratelimit:%s:%d", key, bucket), reset
}

type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, window: window, now: time.Now}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) (int64, time.Duration, error) {
	k, reset := windowKey(key, l.window, l.now())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), reset, nil
}

// MemoryLimiter keeps counters in process, for single-instance deployments
// running without redis.
type MemoryLimiter struct {
	counters *gocache.Cache
	window   time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counters: gocache.New(window, 2*window),
		window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Hit(_ context.Context, key string) (int64, time.Duration, error) {
	k, reset := windowKey(key, l.window, l.now())

	if err := l.counters.Add(k, int64(1), l.window); err == nil {
		return 1, reset, nil
	}
	n, err := l.counters.IncrementInt64(k, 1)
	if err != nil {
		// expired between Add and Increment
		l.counters.Set(k, int64(1), l.window)
		return 1, reset, nil
	}
	return n, reset, nil
}

// RateLimit allows limit requests per client ip per window. The ip comes
// from proxies; X-Forwarded-For is only read behind a trusted proxy. Limiter
// errors are logged and the request goes through.
func RateLimit(limiter Limiter, limit int, proxies *transport.ProxyTrust, base *transport.BaseHandler, m *metrics.Metrics, lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, reset, err := limiter.Hit(r.Context(), proxies.ClientIP(r))
			if err != nil {
				logger.FromOr(r.Context(), lg).Warn("rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				m.ObserveRateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Seconds())+1))
				base.WriteAppError(w, r, internal.NewTooManyRequestsError("Too Many Requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
