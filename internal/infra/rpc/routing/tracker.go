// Package routing handles endpoint health, ordering, and retry decisions.
//
// This package contains:
//   - Tracker: per-endpoint health records with cooldown-based exclusion
//   - Rotator: weighted pseudo-random ordering of candidate endpoints
//   - Retry: error classification and round backoff
package routing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
)

// ProviderSource resolves an endpoint URL to its provider.
type ProviderSource func(url string) provider.Provider

// TrackerConfig holds cooldown and probe settings.
type TrackerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HealthTimeout    time.Duration
}

// DefaultTrackerConfig provides the production defaults.
var DefaultTrackerConfig = TrackerConfig{
	FailureThreshold: 3,
	Cooldown:         10 * time.Minute,
	HealthTimeout:    2 * time.Second,
}

// HealthResult is the outcome of a liveness probe.
type HealthResult struct {
	Healthy      bool
	ResponseTime time.Duration
	Skipped      bool // no verdict on the endpoint; callers must not record it
}

// HealthView exposes read access to health records.
type HealthView interface {
	Health(url string) (domain.NodeHealth, bool)
}

// Tracker keeps advisory health records for every endpoint it has seen.
// Records live for the lifetime of the process.
type Tracker struct {
	mu    sync.RWMutex
	nodes map[string]*domain.NodeHealth

	providers ProviderSource
	cfg       TrackerConfig
	now       func() time.Time
	log       *slog.Logger
}

// NewTracker creates a tracker probing endpoints through providers.
func NewTracker(providers ProviderSource, cfg TrackerConfig) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultTrackerConfig.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultTrackerConfig.Cooldown
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultTrackerConfig.HealthTimeout
	}
	return &Tracker{
		nodes:     make(map[string]*domain.NodeHealth),
		providers: providers,
		cfg:       cfg,
		now:       time.Now,
		log:       slog.Default().With("component", "tracker"),
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// CheckRPCHealth probes url with a getHealth call bounded by maxResponseTime
// (the configured health timeout when zero). Endpoints in cooldown are
// reported unhealthy without a network call. A probe cut short by the
// caller's context or by local pacing is Skipped too. The record is not updated.
func (t *Tracker) CheckRPCHealth(
	ctx context.Context,
	url string,
	maxResponseTime time.Duration,
) HealthResult {
	if t.InCooldown(url) {
		return HealthResult{Skipped: true}
	}
	if maxResponseTime <= 0 {
		maxResponseTime = t.cfg.HealthTimeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, maxResponseTime)
	defer cancel()

	latency, err := t.providers(url).CheckHealth(probeCtx)
	if err != nil {
		if !IsEndpointFailure(ctx, err) {
			t.log.Debug("Health probe abandoned", "url", url, "error", err)
			return HealthResult{ResponseTime: latency, Skipped: true}
		}
		t.log.Debug("Health probe failed", "url", url, "latency", latency, "error", err)
		return HealthResult{ResponseTime: latency}
	}
	return HealthResult{Healthy: true, ResponseTime: latency}
}

// UpdateNodeHealth records the outcome of a probe or fetch against url.
// A success resets the failure streak but never clears an active cooldown.
func (t *Tracker) UpdateNodeHealth(url string, healthy bool, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	node, ok := t.nodes[url]
	if !ok {
		node = &domain.NodeHealth{URL: url}
		t.nodes[url] = node
	}

	node.Healthy = healthy
	node.LastChecked = now
	node.ResponseTime = responseTime

	if healthy {
		node.ConsecutiveSuccesses++
		node.ConsecutiveFailures = 0
		return
	}

	node.ConsecutiveFailures++
	node.ConsecutiveSuccesses = 0

	if node.ConsecutiveFailures >= t.cfg.FailureThreshold && !node.InCooldown(now) {
		node.CooldownUntil = now.Add(t.cfg.Cooldown)
		metrics.CooldownsTotal.Inc()
		t.log.Warn("Endpoint entering cooldown",
			"url", url,
			"failures", node.ConsecutiveFailures,
			"until", node.CooldownUntil.Format(time.RFC3339),
		)
	}
}

// InCooldown reports whether url must currently be skipped.
func (t *Tracker) InCooldown(url string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[url]
	return ok && node.InCooldown(t.now())
}

// Health returns a copy of the record for url.
func (t *Tracker) Health(url string) (domain.NodeHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[url]
	if !ok {
		return domain.NodeHealth{}, false
	}
	return *node, true
}

// Snapshot returns copies of all records ordered by URL.
func (t *Tracker) Snapshot() []domain.NodeHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.NodeHealth, 0, len(t.nodes))
	for _, node := range t.nodes {
		out = append(out, *node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
