package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/rpcgate/internal/core/config"
	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/core/worker"
	"github.com/vietddude/rpcgate/internal/gateway/api"
	"github.com/vietddude/rpcgate/internal/gateway/blockhash"
	"github.com/vietddude/rpcgate/internal/gateway/health"
	"github.com/vietddude/rpcgate/internal/gateway/ratelimit"
	"github.com/vietddude/rpcgate/internal/gateway/selector"
	redisclient "github.com/vietddude/rpcgate/internal/infra/redis"
	"github.com/vietddude/rpcgate/internal/infra/rpc/budget"
	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
	"github.com/vietddude/rpcgate/internal/infra/rpc/routing"
	"github.com/vietddude/rpcgate/internal/infra/storage"
	"github.com/vietddude/rpcgate/internal/infra/storage/memory"
	"github.com/vietddude/rpcgate/internal/infra/storage/postgres"
)

// healthRefreshInterval drives the cooldown gauges.
const healthRefreshInterval = 15 * time.Second

// Gateway owns every piece of per-process state and its lifecycle.
type Gateway struct {
	cfg *config.AppConfig

	pool     *provider.Pool
	pacer    *budget.Pacer
	tracker  *routing.Tracker
	limiter  *ratelimit.Limiter
	selector *selector.Selector
	resolver *blockhash.Resolver
	handler  *api.Handler
	monitor  *health.Monitor
	server   *api.Server

	cache       storage.CacheStore
	events      storage.FallbackEventRepository
	db          *postgres.DB
	redisClient *redisclient.Client

	log *slog.Logger
}

// NewGateway creates a Gateway with all dependencies initialized.
func NewGateway(ctx context.Context, cfg *config.AppConfig) (*Gateway, error) {
	g := &Gateway{cfg: cfg, log: slog.Default()}
	gw := cfg.Gateway

	// 1. Storage
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		g.redisClient = client
		g.cache = client
		slog.Info("Using Redis shared cache")
	} else {
		g.cache = memory.NewMemoryStorage()
		slog.Info("Using Memory cache")
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			g.closeStores()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			g.closeStores()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		g.db = db
		g.events = postgres.NewEventRepo(db)
		slog.Info("Using PostgreSQL fallback journal")
	} else {
		g.events = memory.NewEventRepo(memory.DefaultEventCapacity)
	}

	// 2. RPC transport and routing
	g.pacer = budget.NewPacer(gw.UpstreamRPS, gw.UpstreamBurst)
	var limiters provider.LimiterFactory
	if g.pacer != nil {
		limiters = g.pacer.Limiter
		slog.Info("Upstream pacing enabled", "rps", gw.UpstreamRPS, "burst", gw.UpstreamBurst)
	}
	g.pool = provider.NewPool(gw.FetchTimeout+gw.HealthTimeout, limiters)
	providers := func(url string) provider.Provider { return g.pool.Get(url) }

	g.tracker = routing.NewTracker(providers, routing.TrackerConfig{
		FailureThreshold: gw.FailureThreshold,
		Cooldown:         gw.Cooldown,
		HealthTimeout:    gw.HealthTimeout,
	})
	rotator := routing.NewRotator(nil, routing.DefaultWeights)
	candidates := cfg.Candidates()

	// 3. Gateway components
	g.limiter = ratelimit.New(ratelimit.Config{
		Limit:  gw.RateLimitPerMinute,
		Window: gw.RateLimitWindow,
	})
	g.selector = selector.New(candidates, g.tracker, rotator, g.cache, g.events, selector.Config{
		SelectionTTL:  gw.SelectionTTL,
		HealthTimeout: gw.HealthTimeout,
	})
	g.resolver = blockhash.New(candidates, providers, g.tracker, g.cache, g.events, rotator.Shuffle, blockhash.Config{
		CacheTTL:         gw.BlockhashTTL,
		EmergencyRefresh: gw.EmergencyRefresh,
		FetchTimeout:     gw.FetchTimeout,
		MaxRetries:       gw.MaxRetries,
		Backoff: routing.BackoffConfig{
			Initial:    gw.BackoffInitial,
			Max:        gw.BackoffMax,
			Multiplier: gw.BackoffMultiplier,
			Jitter:     gw.BackoffJitter,
		},
	})
	g.handler = api.NewHandler(g.limiter, g.selector, g.resolver, api.HandlerConfig{
		FallbackRPCURL:     gw.FallbackRPCURL,
		MaxRetries:         gw.MaxRetries,
		PrefetchMaxRetries: gw.PrefetchMaxRetries,
	})

	// 4. Health and HTTP
	g.monitor = health.NewMonitor(candidates, g.tracker, g.resolver, g.events, g.pool.Stats, g.pacer)
	g.server = api.NewServer(g.handler, g.monitor, cfg.Server.Port)

	return g, nil
}

// Start starts the HTTP server and background tasks. It does not block.
func (g *Gateway) Start(ctx context.Context) error {
	go func() {
		g.log.Info("HTTP server listening", "port", g.cfg.Server.Port)
		if err := g.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("HTTP server failed", "error", err)
		}
	}()

	go g.monitor.Run(ctx, healthRefreshInterval)

	if g.db != nil {
		g.db.StartMetricsCollector(ctx)
		go worker.NewPruner(g.cfg.Database.Retention, g.events).Start(ctx)
	}
	return nil
}

// Stop drains the HTTP server, then waits for background refreshes.
func (g *Gateway) Stop(ctx context.Context) error {
	g.log.Info("Stopping gateway...")

	err := g.server.Stop(ctx)
	g.resolver.Close()
	_ = g.pool.Close()
	g.closeStores()
	return err
}

// Close releases resources of a gateway that was never started.
func (g *Gateway) Close() {
	g.resolver.Close()
	_ = g.pool.Close()
	g.closeStores()
}

func (g *Gateway) closeStores() {
	if g.redisClient != nil {
		if err := g.redisClient.Close(); err != nil {
			g.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Handler returns the request handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Routes returns the full HTTP surface, including health and metrics.
func (g *Gateway) Routes() http.Handler {
	return g.server.Routes(g.handler)
}

// Tracker returns the node health tracker.
func (g *Gateway) Tracker() *routing.Tracker {
	return g.tracker
}

// Resolution is the outcome of a one-shot lookup.
type Resolution struct {
	Network   domain.Network
	RPCURL    string
	Blockhash *domain.Resolution
}

// Resolve performs a single lookup outside the HTTP path.
func (g *Gateway) Resolve(ctx context.Context, network string, withBlockhash bool) Resolution {
	n := domain.NormalizeNetwork(network)
	out := Resolution{Network: n, RPCURL: g.selector.GetBestRPCURL(ctx, network)}
	if withBlockhash {
		res := g.resolver.GetFreshBlockhash(ctx, out.RPCURL, n, domain.DefaultCommitment, g.cfg.Gateway.MaxRetries)
		out.Blockhash = &res
	}
	return out
}
