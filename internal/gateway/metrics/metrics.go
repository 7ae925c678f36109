package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks handled client requests by mode and status code
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcgate_requests_total",
			Help: "Total number of client requests",
		},
		[]string{"mode", "status"},
	)

	// RateLimitedTotal tracks requests rejected by the client rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpcgate_rate_limited_total",
			Help: "Total number of requests rejected with 429",
		},
	)

	// RPCCallsTotal tracks outbound RPC calls
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcgate_rpc_calls_total",
			Help: "Total number of upstream RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks outbound RPC errors
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcgate_rpc_errors_total",
			Help: "Total number of upstream RPC errors",
		},
		[]string{"method", "error_type"},
	)

	// RPCLatency tracks successful outbound RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcgate_rpc_latency_seconds",
			Help:    "Upstream RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BlockhashTierTotal tracks which fallback tier served each blockhash
	BlockhashTierTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcgate_blockhash_tier_total",
			Help: "Blockhash resolutions by network and tier",
		},
		[]string{"network", "tier"},
	)

	// SelectionTotal tracks how endpoint selections were made
	SelectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcgate_selection_total",
			Help: "Endpoint selections by network and source",
		},
		[]string{"network", "source"},
	)

	// CooldownsTotal tracks endpoints entering cooldown
	CooldownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpcgate_cooldowns_total",
			Help: "Total number of endpoints placed in cooldown",
		},
	)

	// EndpointsCoolingDown tracks endpoints currently excluded per network
	EndpointsCoolingDown = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpcgate_endpoints_cooling_down",
			Help: "Number of candidate endpoints currently in cooldown",
		},
		[]string{"network"},
	)
)

// DBConnectionPoolUsage tracks the fallback journal connection pool usage
var DBConnectionPoolUsage = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "rpcgate_db_connection_pool_usage_percent",
		Help: "Percentage of open journal database connections",
	},
)
