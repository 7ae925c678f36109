// Package health provides gateway health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/infra/rpc/budget"
	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// EndpointHealth describes one candidate endpoint.
type EndpointHealth struct {
	URL        string                 `json:"url"`
	Known      bool                   `json:"known"`
	InCooldown bool                   `json:"in_cooldown"`
	Record     *domain.NodeHealth     `json:"record,omitempty"`
	Provider   *provider.MonitorStats `json:"provider,omitempty"`
	Pacing     *budget.UsageStats     `json:"pacing,omitempty"`
}

// EmergencyInfo describes the emergency blockhash held for a network.
type EmergencyInfo struct {
	SourceURL string        `json:"source_url"`
	Age       time.Duration `json:"age"`
}

// NetworkHealth contains health metrics for one network.
type NetworkHealth struct {
	Network         string                 `json:"network"`
	Status          SystemStatus           `json:"status"`
	Candidates      int                    `json:"candidates"`
	CoolingDown     int                    `json:"cooling_down"`
	Endpoints       []EndpointHealth       `json:"endpoints"`
	Emergency       *EmergencyInfo         `json:"emergency,omitempty"`
	RecentFallbacks []domain.FallbackEvent `json:"recent_fallbacks,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus             `json:"system_status"`
	Networks     map[string]NetworkHealth `json:"networks"`
}
