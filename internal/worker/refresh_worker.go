package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-client/internal/config"
	"github.com/spec-kit/ticket-client/internal/session"
)

// RefreshWorker renews the access token ahead of its expiry so
// interactive calls rarely pay the 401-refresh-retry round trip.
// Refreshes share the session store's single-flight guard, so the
// worker never races a pipeline-triggered refresh.
type RefreshWorker struct {
	session  *session.Store
	logger   *zap.Logger
	interval time.Duration
	lead     time.Duration
}

// NewRefreshWorker builds the worker.
func NewRefreshWorker(sess *session.Store, cfg config.RefreshConfig, logger *zap.Logger) *RefreshWorker {
	return &RefreshWorker{
		session:  sess,
		logger:   logger,
		interval: cfg.Interval(),
		lead:     cfg.Lead(),
	}
}

// Run polls until the context is canceled. It blocks; start it on its
// own goroutine.
func (w *RefreshWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RefreshWorker) tick(ctx context.Context) {
	if !w.session.Authenticated() {
		return
	}
	expiry, ok := w.session.AccessTokenExpiry()
	if !ok {
		return
	}
	if time.Until(expiry) > w.lead {
		return
	}

	if err := w.session.Refresh(ctx); err != nil {
		// The pipeline's own refresh path handles escalation; the
		// worker only logs and tries again next tick.
		w.logger.Warn("proactive refresh failed", zap.Error(err))
		return
	}
	w.logger.Debug("proactively refreshed access token")
}
