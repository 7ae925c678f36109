package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := AppConfig{Gateway: DefaultGatewayConfig()}
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration usable without any file.
func Default() *AppConfig {
	cfg := AppConfig{Gateway: DefaultGatewayConfig()}
	_ = cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = LogFormatText
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	for n := range c.Networks {
		if _, ok := domain.ParseNetwork(string(n)); !ok {
			return fmt.Errorf("unknown network %q in config", n)
		}
	}

	d := DefaultGatewayConfig()
	g := &c.Gateway
	if g.RateLimitPerMinute <= 0 {
		g.RateLimitPerMinute = d.RateLimitPerMinute
	}
	if g.RateLimitWindow <= 0 {
		g.RateLimitWindow = d.RateLimitWindow
	}
	if g.SelectionTTL <= 0 {
		g.SelectionTTL = d.SelectionTTL
	}
	if g.BlockhashTTL <= 0 {
		g.BlockhashTTL = d.BlockhashTTL
	}
	if g.EmergencyRefresh <= 0 {
		g.EmergencyRefresh = d.EmergencyRefresh
	}
	if g.FailureThreshold <= 0 {
		g.FailureThreshold = d.FailureThreshold
	}
	if g.Cooldown <= 0 {
		g.Cooldown = d.Cooldown
	}
	if g.HealthTimeout <= 0 {
		g.HealthTimeout = d.HealthTimeout
	}
	if g.FetchTimeout <= 0 {
		g.FetchTimeout = d.FetchTimeout
	}
	if g.MaxRetries <= 0 {
		g.MaxRetries = d.MaxRetries
	}
	if g.PrefetchMaxRetries <= 0 {
		g.PrefetchMaxRetries = d.PrefetchMaxRetries
	}
	if g.BackoffInitial <= 0 {
		g.BackoffInitial = d.BackoffInitial
	}
	if g.BackoffMax <= 0 {
		g.BackoffMax = d.BackoffMax
	}
	if g.BackoffMultiplier < 1 {
		g.BackoffMultiplier = d.BackoffMultiplier
	}
	if g.BackoffJitter < 0 || g.BackoffJitter > 1 {
		g.BackoffJitter = d.BackoffJitter
	}
	if g.UpstreamBurst <= 0 {
		g.UpstreamBurst = d.UpstreamBurst
	}
	if g.FallbackRPCURL == "" {
		g.FallbackRPCURL = d.FallbackRPCURL
	}
	return nil
}
