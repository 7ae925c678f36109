// Package selector picks a usable RPC endpoint URL for a network.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
	"github.com/vietddude/rpcgate/internal/infra/rpc/routing"
	"github.com/vietddude/rpcgate/internal/infra/storage"
)

// Selection sources, used as metric labels.
const (
	SourceCache    = "cache"
	SourceOverride = "override"
	SourceProbe    = "probe"
	SourceRandom   = "random"
)

// Config holds selection timings.
type Config struct {
	SelectionTTL  time.Duration
	HealthTimeout time.Duration
}

// DefaultConfig caches a selection for 10 minutes and probes with a 2s budget.
var DefaultConfig = Config{
	SelectionTTL:  10 * time.Minute,
	HealthTimeout: 2 * time.Second,
}

// Selector implements endpoint selection with caching, an environment
// override, a weighted probe scan, and a random fallback.
type Selector struct {
	candidates map[domain.Network][]string
	tracker    *routing.Tracker
	rotator    *routing.Rotator
	cache      storage.CacheStore
	events     storage.FallbackEventRepository

	lookupEnv func(key string) (string, bool)
	cfg       Config
	now       func() time.Time
	log       *slog.Logger
}

// New creates a selector. events may be nil.
func New(
	candidates map[domain.Network][]string,
	tracker *routing.Tracker,
	rotator *routing.Rotator,
	cache storage.CacheStore,
	events storage.FallbackEventRepository,
	cfg Config,
) *Selector {
	if cfg.SelectionTTL <= 0 {
		cfg.SelectionTTL = DefaultConfig.SelectionTTL
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultConfig.HealthTimeout
	}
	return &Selector{
		candidates: candidates,
		tracker:    tracker,
		rotator:    rotator,
		cache:      cache,
		events:     events,
		lookupEnv:  os.LookupEnv,
		cfg:        cfg,
		now:        time.Now,
		log:        slog.Default().With("component", "selector"),
	}
}

// SetClock replaces the time source.
func (s *Selector) SetClock(now func() time.Time) {
	s.now = now
}

// SetEnvLookup replaces the environment reader used for override URLs.
func (s *Selector) SetEnvLookup(lookup func(key string) (string, bool)) {
	s.lookupEnv = lookup
}

// Candidates returns the static candidate list for a network.
func (s *Selector) Candidates(network domain.Network) []string {
	return s.candidates[network]
}

// GetBestRPCURL returns an endpoint URL for network. It never fails: when
// no candidate is healthy a random, unverified candidate is returned.
func (s *Selector) GetBestRPCURL(ctx context.Context, network string) string {
	n := domain.NormalizeNetwork(network)

	if sel := s.cachedSelection(ctx, n); sel != nil {
		metrics.SelectionTotal.WithLabelValues(n.String(), SourceCache).Inc()
		return sel.URL
	}

	if override := s.override(n); override != "" {
		if s.probe(ctx, override) {
			s.store(ctx, n, override)
			metrics.SelectionTotal.WithLabelValues(n.String(), SourceOverride).Inc()
			return override
		}
		s.log.Warn("Override endpoint unhealthy, scanning candidates",
			"network", n, "url", override)
	}

	candidates := s.candidates[n]
	for _, url := range s.rotator.Order(candidates, s.tracker) {
		if s.tracker.InCooldown(url) {
			continue
		}
		if s.probe(ctx, url) {
			s.store(ctx, n, url)
			metrics.SelectionTotal.WithLabelValues(n.String(), SourceProbe).Inc()
			return url
		}
	}

	url := s.rotator.Pick(candidates)
	if url == "" {
		url = domain.FallbackRPCURL
	}
	metrics.SelectionTotal.WithLabelValues(n.String(), SourceRandom).Inc()
	s.log.Warn("No healthy endpoint, returning unverified candidate", "network", n, "url", url)
	s.recordFallback(ctx, &domain.FallbackEvent{
		Network: n,
		Kind:    domain.FallbackRandomSelection,
		URL:     url,
		Detail:  fmt.Sprintf("%d candidates unhealthy or cooling down", len(candidates)),
	})
	return url
}

// PreferredURL returns the endpoint to try first without probing: the
// fresh cached selection, else the override, else the first candidate.
func (s *Selector) PreferredURL(ctx context.Context, network domain.Network) string {
	if sel := s.cachedSelection(ctx, network); sel != nil {
		return sel.URL
	}
	if override := s.override(network); override != "" {
		return override
	}
	if c := s.candidates[network]; len(c) > 0 {
		return c[0]
	}
	return domain.FallbackRPCURL
}

func (s *Selector) override(n domain.Network) string {
	if s.lookupEnv == nil {
		return ""
	}
	v, ok := s.lookupEnv(n.EnvKey())
	if !ok {
		return ""
	}
	return v
}

// probe runs a health check and records the outcome.
func (s *Selector) probe(ctx context.Context, url string) bool {
	res := s.tracker.CheckRPCHealth(ctx, url, s.cfg.HealthTimeout)
	if res.Skipped {
		return false
	}
	s.tracker.UpdateNodeHealth(url, res.Healthy, res.ResponseTime)
	return res.Healthy
}

func (s *Selector) cachedSelection(ctx context.Context, n domain.Network) *domain.Selection {
	sel, err := s.cache.GetSelection(ctx, n)
	if err != nil {
		s.log.Warn("Selection cache read failed", "network", n, "error", err)
		return nil
	}
	if sel == nil || s.now().Sub(sel.SelectedAt) >= s.cfg.SelectionTTL {
		return nil
	}
	return sel
}

func (s *Selector) store(ctx context.Context, n domain.Network, url string) {
	sel := &domain.Selection{URL: url, SelectedAt: s.now()}
	if h, ok := s.tracker.Health(url); ok {
		sel.ConsecutiveSuccesses = h.ConsecutiveSuccesses
		sel.ConsecutiveFailures = h.ConsecutiveFailures
		sel.Latency = h.ResponseTime
	}
	if err := s.cache.SetSelection(ctx, n, sel); err != nil {
		s.log.Warn("Selection cache write failed", "network", n, "error", err)
	}
}

func (s *Selector) recordFallback(ctx context.Context, ev *domain.FallbackEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = s.now()
	if err := s.events.Record(ctx, ev); err != nil {
		s.log.Warn("Failed to journal fallback", "kind", ev.Kind, "error", err)
	}
}
