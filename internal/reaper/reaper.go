package reaper

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically stops sessions whose container died and destroys
// sessions that sat idle for too long.
type Reaper struct {
	sessions SessionSweeper
	interval time.Duration
	maxIdle  time.Duration
	logger   *slog.Logger
}

func New(sessions SessionSweeper, interval, maxIdle time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		sessions: sessions,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "max_idle", r.maxIdle)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	stopped := r.sessions.Reconcile(ctx)
	swept := r.sessions.Sweep(ctx, r.maxIdle)
	if stopped > 0 || swept > 0 {
		r.logger.Info("reaper: pass complete", "stopped", stopped, "swept", swept)
	}
}
