package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poller runs sync cycles on a fixed interval. Cancellation stops before the
// next cycle starts; a running cycle always completes.
type Poller struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller around an engine
func NewPoller(engine *Engine, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		engine:   engine,
		interval: interval,
		logger:   logger.With("component", "sync_poller"),
	}
}

// Run executes one cycle immediately, then one per interval until the context
// is cancelled. Cycle failures are logged and the poller keeps going; the
// next scheduled cycle is the retry.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval)

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	report, err := p.engine.Run(ctx)
	if errors.Is(err, ErrSyncDisabled) {
		p.logger.Info("sync disabled, skipping cycle")
		return
	}
	if err != nil {
		p.logger.Error("sync cycle failed", "error", err)
		return
	}
	p.logger.Info("sync cycle report",
		"total", report.Total, "new", report.New,
		"duplicate", report.Duplicate, "enriched", report.Enriched)
}
