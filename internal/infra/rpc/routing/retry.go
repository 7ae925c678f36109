package routing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
)

// BackoffConfig defines the delay between retry rounds.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // randomization factor in [0, 1)
}

// DefaultBackoffConfig grows the base delay by 1.5x per round.
var DefaultBackoffConfig = BackoffConfig{
	Initial:    500 * time.Millisecond,
	Max:        8 * time.Second,
	Multiplier: 1.5,
	Jitter:     0.3,
}

// NewRoundBackoff returns a fresh exponential backoff that never gives up
// on its own; the caller bounds the number of rounds.
func NewRoundBackoff(cfg BackoffConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Initial
	b.MaxInterval = cfg.Max
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrorAction determines how a failed attempt affects the rest of a call.
type ErrorAction int

const (
	// ActionRetry moves on to the next endpoint; this one stays in the pool
	// for later rounds.
	ActionRetry ErrorAction = iota
	// ActionFatal drops the endpoint from the pool for the rest of the call.
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil || errors.Is(err, provider.ErrPaced) || IsRateLimited(err) {
		return ActionRetry
	}
	if errors.Is(err, provider.ErrBlocked) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}

	if strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "plan limit") ||
		strings.Contains(sLower, "count exceeded") {
		return ActionFatal
	}

	// Network, 5xx, malformed bodies
	return ActionRetry
}

// IsEndpointFailure reports whether err should count against the endpoint's
// health. Attempts cut short by the caller's ctx or refused by the local
// pacer never reached a verdict on the endpoint.
func IsEndpointFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, provider.ErrPaced)
}

// IsRateLimited reports whether err looks like upstream throttling.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, provider.ErrRateLimited) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}
