package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/campaign-engine/internal/repository"
)

var (
	lifecycleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_lifecycle_runs_total",
			Help: "Total number of campaign lifecycle scheduler passes.",
		},
		[]string{"result"},
	)

	lifecycleTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_lifecycle_transitions_total",
			Help: "Total number of campaign status transitions by direction.",
		},
		[]string{"direction"},
	)
)

// Lifecycle periodically reconciles campaign status flags with their date
// windows: activating campaigns whose window has opened and deactivating
// those whose window has closed. The status flags are an optimization for
// listing queries; reads never trust them alone, so a late pass is harmless.
type Lifecycle struct {
	repo     repository.CampaignRepository
	cache    repository.ActiveCampaignCache
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Lifecycle scheduler.
type Option func(*Lifecycle)

// WithClock injects a time source. Tests use this to drive transitions
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = now
	}
}

// New creates a lifecycle scheduler. cache may be nil.
func New(repo repository.CampaignRepository, cache repository.ActiveCampaignCache, interval time.Duration, logger *slog.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		repo:     repo,
		cache:    cache,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one pass immediately and then one per interval until the
// context is cancelled.
func (l *Lifecycle) Run(ctx context.Context) {
	l.logger.Info("campaign lifecycle scheduler started",
		slog.Duration("interval", l.interval),
	)

	l.runOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("campaign lifecycle scheduler stopped")
			return
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}

// runOnce performs a single reconciliation pass. The two transitions run as
// independent statements: a failure in one does not block the other, and the
// next pass retries whatever was missed.
func (l *Lifecycle) runOnce(ctx context.Context) {
	now := l.now()
	failed := false

	activated, err := l.repo.ActivatePending(ctx, now)
	if err != nil {
		failed = true
		l.logger.Error("campaign activation pass failed", slog.String("error", err.Error()))
	} else {
		lifecycleTransitionsTotal.WithLabelValues("activated").Add(float64(activated))
	}

	deactivated, err := l.repo.DeactivateExpired(ctx, now)
	if err != nil {
		failed = true
		l.logger.Error("campaign deactivation pass failed", slog.String("error", err.Error()))
	} else {
		lifecycleTransitionsTotal.WithLabelValues("deactivated").Add(float64(deactivated))
	}

	if failed {
		lifecycleRunsTotal.WithLabelValues("error").Inc()
		return
	}
	lifecycleRunsTotal.WithLabelValues("ok").Inc()

	if activated > 0 || deactivated > 0 {
		if l.cache != nil {
			l.cache.Invalidate(ctx)
		}
		l.logger.Info("campaign lifecycle pass completed",
			slog.Int64("activated", activated),
			slog.Int64("deactivated", deactivated),
		)
	}
}
