package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/aolus-software/rbac-api/internal/metrics"
	"github.com/robfig/cron/v3"
)

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (verifications int64, resets int64, err error)
}

// TokenJanitor periodically deletes verification and reset tokens past expiry.
type TokenJanitor struct {
	purger  TokenPurger
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewTokenJanitor(purger TokenPurger, schedule string, logger *slog.Logger, m *metrics.Metrics) (*TokenJanitor, error) {
	j := &TokenJanitor{
		purger:  purger,
		cron:    cron.New(),
		logger:  logger,
		metrics: m,
		timeout: time.Minute,
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		_ = j.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *TokenJanitor) RunOnce(ctx context.Context) error {
	verifications, resets, err := j.purger.PurgeExpiredTokens(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "expired token cleanup failed", "error", err)
		return err
	}

	j.metrics.ObserveTokensPurged("email_verification", verifications)
	j.metrics.ObserveTokensPurged("password_reset", resets)
	if verifications+resets > 0 {
		j.logger.InfoContext(ctx, "expired tokens purged",
			"email_verifications", verifications,
			"password_resets", resets)
	}
	return nil
}

func (j *TokenJanitor) Start() {
	j.cron.Start()
}

// Stop waits for a running cleanup to finish or ctx to expire.
func (j *TokenJanitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
