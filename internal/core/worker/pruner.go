package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/rpcgate/internal/infra/storage"
)

// Pruner deletes old fallback events based on retention policy.
type Pruner struct {
	retention time.Duration
	events    storage.FallbackEventRepository
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, events storage.FallbackEventRepository) *Pruner {
	return &Pruner{
		retention: retention,
		events:    events,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (p *Pruner) SetClock(now func() time.Time) {
	p.now = now
}

// Interval is 10% of the retention period, clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes every event older than the retention period.
func (p *Pruner) Prune(ctx context.Context) {
	threshold := p.now().Add(-p.retention)

	n, err := p.events.DeleteOlderThan(ctx, threshold)
	if err != nil {
		slog.Error("[Pruner] failed to prune fallback events", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("[Pruner] pruned fallback events", "deleted", n, "before", threshold)
	}
}
