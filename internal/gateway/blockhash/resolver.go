// Package blockhash resolves a recent blockhash with layered fallbacks.
//
// Resolution order: fresh cache, live fetch across a pool of endpoints with
// backoff between rounds, then the per-network emergency blockhash, the
// stale cache, and finally a synthetic value that is not valid on chain.
package blockhash

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
	"github.com/vietddude/rpcgate/internal/infra/rpc/routing"
	"github.com/vietddude/rpcgate/internal/infra/storage"
)

// Config holds resolver timings and retry policy.
type Config struct {
	CacheTTL         time.Duration
	EmergencyRefresh time.Duration
	FetchTimeout     time.Duration
	MaxRetries       int
	Backoff          routing.BackoffConfig
}

// DefaultConfig matches production defaults.
var DefaultConfig = Config{
	CacheTTL:         5 * time.Minute,
	EmergencyRefresh: 5 * time.Minute,
	FetchTimeout:     5 * time.Second,
	MaxRetries:       8,
	Backoff:          routing.DefaultBackoffConfig,
}

// Resolver implements GetFreshBlockhash.
type Resolver struct {
	candidates map[domain.Network][]string
	providers  routing.ProviderSource
	tracker    *routing.Tracker
	cache      storage.CacheStore
	events     storage.FallbackEventRepository
	shuffle    func([]string) []string

	cfg Config
	now func() time.Time
	log *slog.Logger

	// background refreshes outlive the request that triggered them
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	emergency  map[domain.Network]domain.Blockhash
	refreshing map[domain.Network]bool
}

// New creates a resolver. events may be nil; shuffle defaults to an
// unseeded uniform shuffle.
func New(
	candidates map[domain.Network][]string,
	providers routing.ProviderSource,
	tracker *routing.Tracker,
	cache storage.CacheStore,
	events storage.FallbackEventRepository,
	shuffle func([]string) []string,
	cfg Config,
) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig.CacheTTL
	}
	if cfg.EmergencyRefresh <= 0 {
		cfg.EmergencyRefresh = DefaultConfig.EmergencyRefresh
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig.FetchTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.Backoff.Multiplier <= 0 {
		cfg.Backoff = DefaultConfig.Backoff
	}
	if shuffle == nil {
		shuffle = routing.NewRotator(nil, routing.DefaultWeights).Shuffle
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		candidates: candidates,
		providers:  providers,
		tracker:    tracker,
		cache:      cache,
		events:     events,
		shuffle:    shuffle,
		cfg:        cfg,
		now:        time.Now,
		log:        slog.Default().With("component", "blockhash"),
		baseCtx:    ctx,
		cancel:     cancel,
		emergency:  make(map[domain.Network]domain.Blockhash),
		refreshing: make(map[domain.Network]bool),
	}
}

// SetClock replaces the time source.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Wait blocks until in-flight emergency refreshes finish.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight emergency refreshes and waits for them.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}

// GetFreshBlockhash returns a blockhash for network, trying url first.
// maxRetries <= 0 uses the configured number of rounds. The returned
// resolution always carries a hash; its Tier says how it was obtained.
func (r *Resolver) GetFreshBlockhash(
	ctx context.Context,
	url string,
	network domain.Network,
	commitment domain.Commitment,
	maxRetries int,
) domain.Resolution {
	if maxRetries <= 0 {
		maxRetries = r.cfg.MaxRetries
	}

	r.maybeRefreshEmergency(network, commitment)

	if cached := r.cached(ctx, network); cached != nil && cached.Age(r.now()) < r.cfg.CacheTTL {
		return r.resolved(*cached, network, domain.TierCached)
	}

	pool := r.buildPool(url, network)
	bo := routing.NewRoundBackoff(r.cfg.Backoff)
	dropped := make(map[string]bool)

	for round := 0; round < maxRetries; round++ {
		attempted := 0
		for _, u := range pool {
			if ctx.Err() != nil {
				return r.fallback(ctx, network, url)
			}
			if dropped[u] || r.tracker.InCooldown(u) {
				continue
			}
			attempted++

			bh, latency, err := r.fetch(ctx, u, commitment)
			if err != nil {
				// The caller gave up; the endpoint never got its full deadline.
				if ctx.Err() != nil {
					return r.fallback(ctx, network, url)
				}
				if routing.IsEndpointFailure(ctx, err) {
					r.tracker.UpdateNodeHealth(u, false, latency)
				}
				action := routing.ClassifyError(err)
				if action == routing.ActionFatal {
					dropped[u] = true
				}
				r.log.Debug("Blockhash fetch failed",
					"network", network,
					"url", u,
					"round", round+1,
					"action", action,
					"error", err,
				)
				continue
			}

			r.tracker.UpdateNodeHealth(u, true, latency)
			if err := r.cache.SetBlockhash(ctx, network, bh); err != nil {
				r.log.Warn("Blockhash cache write failed", "network", network, "error", err)
			}
			return r.resolved(*bh, network, domain.TierFresh)
		}

		// Cooldowns and dropped endpoints outlast any backoff, so a fully
		// skipped pool stays skipped.
		if attempted == 0 {
			r.log.Warn("No endpoint left to try", "network", network, "pool", len(pool))
			break
		}
		if round == maxRetries-1 {
			break
		}
		if err := routing.Sleep(ctx, bo.NextBackOff()); err != nil {
			break
		}
	}

	return r.fallback(ctx, network, url)
}

// Emergency returns the emergency blockhash held for network.
func (r *Resolver) Emergency(network domain.Network) (domain.Blockhash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bh, ok := r.emergency[network]
	return bh, ok
}

// buildPool puts url first followed by the shuffled remaining candidates.
func (r *Resolver) buildPool(url string, network domain.Network) []string {
	rest := make([]string, 0, len(r.candidates[network]))
	for _, c := range r.candidates[network] {
		if c != url {
			rest = append(rest, c)
		}
	}
	rest = r.shuffle(rest)

	if url == "" {
		return rest
	}
	return append([]string{url}, rest...)
}

func (r *Resolver) fetch(
	ctx context.Context,
	url string,
	commitment domain.Commitment,
) (*domain.Blockhash, time.Duration, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	bh, err := r.providers(url).GetLatestBlockhash(fetchCtx, commitment)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, err
	}
	bh.FetchedAt = r.now()
	return bh, latency, nil
}

func (r *Resolver) cached(ctx context.Context, network domain.Network) *domain.Blockhash {
	bh, err := r.cache.GetBlockhash(ctx, network)
	if err != nil {
		r.log.Warn("Blockhash cache read failed", "network", network, "error", err)
		return nil
	}
	return bh
}

// fallback walks the terminal tiers in decreasing order of trust.
func (r *Resolver) fallback(ctx context.Context, network domain.Network, url string) domain.Resolution {
	if bh, ok := r.Emergency(network); ok {
		r.journal(ctx, network, domain.FallbackEmergencyBlockhash, bh.SourceURL,
			fmt.Sprintf("age %s", bh.Age(r.now()).Round(time.Second)))
		return r.resolved(bh, network, domain.TierEmergency)
	}

	// Fresh context: the caller's may already be done.
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if bh := r.cached(readCtx, network); bh != nil {
		r.journal(ctx, network, domain.FallbackStaleBlockhash, bh.SourceURL,
			fmt.Sprintf("age %s", bh.Age(r.now()).Round(time.Second)))
		return r.resolved(*bh, network, domain.TierStale)
	}

	hash, err := syntheticHash()
	if err != nil {
		// crypto/rand failing leaves nothing else to return.
		r.log.Error("Failed to generate synthetic blockhash", "network", network, "error", err)
		return domain.Resolution{}
	}
	r.log.Warn("Returning synthetic blockhash", "network", network, "url", url)
	r.journal(ctx, network, domain.FallbackSyntheticBlockhash, url, "all tiers exhausted")
	return r.resolved(domain.Blockhash{Hash: hash, FetchedAt: r.now()}, network, domain.TierSynthetic)
}

func (r *Resolver) resolved(bh domain.Blockhash, network domain.Network, tier domain.Tier) domain.Resolution {
	metrics.BlockhashTierTotal.WithLabelValues(network.String(), string(tier)).Inc()
	return domain.Resolution{Blockhash: bh, Tier: tier}
}

func (r *Resolver) journal(
	ctx context.Context,
	network domain.Network,
	kind domain.FallbackKind,
	url, detail string,
) {
	if r.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	ev := &domain.FallbackEvent{
		Network:    network,
		Kind:       kind,
		URL:        url,
		Detail:     detail,
		OccurredAt: r.now(),
	}
	if err := r.events.Record(ctx, ev); err != nil {
		r.log.Warn("Failed to journal fallback", "kind", kind, "error", err)
	}
}

// syntheticHash returns 32 random bytes as 64 hex characters.
func syntheticHash() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
