// Package provider implements the Solana JSON-RPC transport.
//
// This package contains:
//   - HTTPProvider: JSON-RPC over HTTP bound to a single endpoint URL
//   - ProviderMonitor: latency and throttle tracking per endpoint
//   - Pool: lazily built registry of providers keyed by URL
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

var (
	// ErrRateLimited is returned when the upstream answered 429 or a
	// rate-limit shaped error.
	ErrRateLimited = errors.New("rate limited")

	// ErrPaced is returned when the local pacer has no tokens left. The
	// request never left the process, so it says nothing about the endpoint.
	ErrPaced = errors.New("local pacing budget exhausted")

	// ErrMalformedResponse is returned when the payload lacks the expected fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnhealthy is returned when getHealth answers anything but "ok".
	ErrUnhealthy = errors.New("node unhealthy")

	// ErrBlocked is returned on HTTP 403.
	ErrBlocked = errors.New("ip blocked")
)

// Provider defines the operations the gateway needs from one RPC endpoint.
type Provider interface {
	// URL returns the endpoint URL
	URL() string

	// CheckHealth performs a getHealth liveness call and returns its latency
	CheckHealth(ctx context.Context) (time.Duration, error)

	// GetLatestBlockhash fetches a fresh blockhash at the given commitment
	GetLatestBlockhash(ctx context.Context, commitment domain.Commitment) (*domain.Blockhash, error)

	// Stats returns monitoring statistics
	Stats() MonitorStats

	// Close cleans up resources
	Close() error
}

// Limiter gates outbound calls. Allow must not block.
type Limiter interface {
	Allow() bool
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// LatestBlockhashResult is the result of getLatestBlockhash.
type LatestBlockhashResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}
