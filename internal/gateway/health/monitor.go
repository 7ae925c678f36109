package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
	"github.com/vietddude/rpcgate/internal/infra/rpc/budget"
	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
	"github.com/vietddude/rpcgate/internal/infra/rpc/routing"
	"github.com/vietddude/rpcgate/internal/infra/storage"
)

// EmergencySource exposes the emergency blockhash per network.
type EmergencySource interface {
	Emergency(network domain.Network) (domain.Blockhash, bool)
}

// StatsSource returns provider monitor statistics keyed by URL.
type StatsSource func() map[string]provider.MonitorStats

// Monitor aggregates health status from the tracker and resolver.
type Monitor struct {
	candidates map[domain.Network][]string
	tracker    *routing.Tracker
	emergency  EmergencySource
	events     storage.FallbackEventRepository
	stats      StatsSource
	pacer      *budget.Pacer

	reportTTL  time.Duration
	now        func() time.Time
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
	log        *slog.Logger
}

// NewMonitor creates a new health monitor. events, stats and pacer may be nil.
func NewMonitor(
	candidates map[domain.Network][]string,
	tracker *routing.Tracker,
	emergency EmergencySource,
	events storage.FallbackEventRepository,
	stats StatsSource,
	pacer *budget.Pacer,
) *Monitor {
	return &Monitor{
		candidates: candidates,
		tracker:    tracker,
		emergency:  emergency,
		events:     events,
		stats:      stats,
		pacer:      pacer,
		reportTTL:  5 * time.Second,
		now:        time.Now,
		log:        slog.Default().With("component", "health"),
	}
}

// SetClock replaces the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// CheckHealth builds a report for all networks. Reports are reused for a
// few seconds so that health polling stays cheap.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.reportTTL {
		return m.lastReport
	}

	var stats map[string]provider.MonitorStats
	if m.stats != nil {
		stats = m.stats()
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Networks:     make(map[string]NetworkHealth, len(domain.Networks)),
	}

	for _, network := range domain.Networks {
		nh := m.checkNetwork(ctx, network, stats, now)
		report.Networks[network.String()] = nh
		metrics.EndpointsCoolingDown.WithLabelValues(network.String()).Set(float64(nh.CoolingDown))

		// Aggregate status (worst case wins)
		if nh.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if nh.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

func (m *Monitor) checkNetwork(
	ctx context.Context,
	network domain.Network,
	stats map[string]provider.MonitorStats,
	now time.Time,
) NetworkHealth {
	urls := m.candidates[network]
	nh := NetworkHealth{
		Network:    network.String(),
		Status:     StatusHealthy,
		Candidates: len(urls),
		Endpoints:  make([]EndpointHealth, 0, len(urls)),
	}

	unhealthy := 0
	for _, url := range urls {
		ep := EndpointHealth{URL: url, InCooldown: m.tracker.InCooldown(url)}
		if rec, ok := m.tracker.Health(url); ok {
			ep.Known = true
			ep.Record = &rec
			if !rec.Healthy {
				unhealthy++
			}
		}
		if s, ok := stats[url]; ok {
			ep.Provider = &s
		}
		if m.pacer != nil {
			usage := m.pacer.GetUsage(url)
			ep.Pacing = &usage
		}
		if ep.InCooldown {
			nh.CoolingDown++
		}
		nh.Endpoints = append(nh.Endpoints, ep)
	}

	if m.emergency != nil {
		if bh, ok := m.emergency.Emergency(network); ok {
			nh.Emergency = &EmergencyInfo{SourceURL: bh.SourceURL, Age: bh.Age(now)}
		}
	}

	if m.events != nil {
		events, err := m.events.Recent(ctx, network, 10)
		if err != nil {
			m.log.Warn("Failed to load fallback events", "network", network, "error", err)
		} else {
			nh.RecentFallbacks = events
		}
	}

	switch {
	case len(urls) == 0 || nh.CoolingDown == len(urls):
		nh.Status = StatusCritical
	case nh.CoolingDown > 0 || unhealthy > 0:
		nh.Status = StatusDegraded
	}
	return nh
}

// Run refreshes the report, and with it the cooldown gauges, on every tick.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := m.CheckHealth(ctx)
			if report.SystemStatus != StatusHealthy {
				m.log.Warn("Gateway health degraded", "status", report.SystemStatus)
			}
		}
	}
}
