package config

import (
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	redisclient "github.com/vietddude/rpcgate/internal/infra/redis"
	"github.com/vietddude/rpcgate/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig                     `yaml:"server"`
	Networks map[domain.Network]NetworkConfig `yaml:"networks"`
	Gateway  GatewayConfig                    `yaml:"gateway"`
	Redis    redisclient.Config               `yaml:"redis"`
	Logging  LoggingConfig                    `yaml:"logging"`
	Database postgres.Config                  `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds the static candidate endpoints for one network.
type NetworkConfig struct {
	Endpoints []string `yaml:"endpoints"`
}

// GatewayConfig tunes limits, TTLs and retry behaviour.
type GatewayConfig struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitWindow    time.Duration `yaml:"rate_limit_window"`

	SelectionTTL     time.Duration `yaml:"selection_ttl"`
	BlockhashTTL     time.Duration `yaml:"blockhash_ttl"`
	EmergencyRefresh time.Duration `yaml:"emergency_refresh"`

	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`

	HealthTimeout time.Duration `yaml:"health_timeout"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`

	MaxRetries         int           `yaml:"max_retries"`
	PrefetchMaxRetries int           `yaml:"prefetch_max_retries"`
	BackoffInitial     time.Duration `yaml:"backoff_initial"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
	BackoffMultiplier  float64       `yaml:"backoff_multiplier"`
	BackoffJitter      float64       `yaml:"backoff_jitter"`

	// UpstreamRPS paces outbound calls per endpoint; 0 disables pacing.
	UpstreamRPS   float64 `yaml:"upstream_rps"`
	UpstreamBurst int     `yaml:"upstream_burst"`

	FallbackRPCURL string `yaml:"fallback_rpc_url"`
}

// DefaultGatewayConfig returns the production defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RateLimitPerMinute: 150,
		RateLimitWindow:    time.Minute,
		SelectionTTL:       10 * time.Minute,
		BlockhashTTL:       5 * time.Minute,
		EmergencyRefresh:   5 * time.Minute,
		FailureThreshold:   3,
		Cooldown:           10 * time.Minute,
		HealthTimeout:      2 * time.Second,
		FetchTimeout:       5 * time.Second,
		MaxRetries:         8,
		PrefetchMaxRetries: 2,
		BackoffInitial:     500 * time.Millisecond,
		BackoffMax:         8 * time.Second,
		BackoffMultiplier:  1.5,
		BackoffJitter:      0.3,
		UpstreamBurst:      5,
		FallbackRPCURL:     domain.FallbackRPCURL,
	}
}

// Endpoints returns the candidate list for a network, falling back to the
// built-in public endpoints.
func (c *AppConfig) Endpoints(n domain.Network) []string {
	if nc, ok := c.Networks[n]; ok && len(nc.Endpoints) > 0 {
		return nc.Endpoints
	}
	return domain.DefaultEndpoints[n]
}

// Candidates returns the candidate lists for every supported network.
func (c *AppConfig) Candidates() map[domain.Network][]string {
	out := make(map[domain.Network][]string, len(domain.Networks))
	for _, n := range domain.Networks {
		out[n] = c.Endpoints(n)
	}
	return out
}
