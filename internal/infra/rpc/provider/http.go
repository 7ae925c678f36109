package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
)

const blockhashLen = 32

// HTTPProvider implements Provider for Solana JSON-RPC over HTTP.
type HTTPProvider struct {
	endpoint   string
	httpClient *http.Client
	limiter    Limiter
	newID      func() string

	Monitor *ProviderMonitor
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
// Per-call deadlines come from ctx; timeout bounds any call without one.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	return newHTTPProvider(endpoint, &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}, nil)
}

func newHTTPProvider(endpoint string, client *http.Client, limiter Limiter) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		httpClient: client,
		limiter:    limiter,
		newID:      uuid.NewString,
		Monitor:    NewProviderMonitor(),
	}
}

// URL returns the endpoint URL.
func (p *HTTPProvider) URL() string {
	return p.endpoint
}

// Call makes a single JSON-RPC call and returns the raw result.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()

	result, err := p.call(ctx, method, params)
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method, errorType(err)).Inc()
		return nil, err
	}

	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(method).Observe(latency.Seconds())
	p.Monitor.RecordRequest(latency)
	return result, nil
}

func (p *HTTPProvider) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrPaced, p.endpoint)
	}

	jsonData, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      p.newID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(http.StatusTooManyRequests, retryAfter)
		return nil, fmt.Errorf("%w (429), retry after: %s", ErrRateLimited, retryAfter)
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(http.StatusForbidden, "")
		return nil, fmt.Errorf("%w (403)", ErrBlocked)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if p.Monitor.DetectThrottlePattern(string(body)) {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if rpcResp.Error != nil {
		if p.Monitor.DetectThrottlePattern(rpcResp.Error.Message) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests, "")
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, rpcResp.Error.Message)
		}
		return nil, fmt.Errorf("rpc error %d: %w", rpcResp.Error.Code, rpcResp.Error)
	}

	return rpcResp.Result, nil
}

// CheckHealth performs a getHealth liveness call.
func (p *HTTPProvider) CheckHealth(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	result, err := p.Call(ctx, "getHealth", nil)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}

	var status string
	if err := json.Unmarshal(result, &status); err != nil || status != "ok" {
		return latency, fmt.Errorf("%w: getHealth returned %s", ErrUnhealthy, string(result))
	}
	return latency, nil
}

// GetLatestBlockhash fetches a fresh blockhash.
func (p *HTTPProvider) GetLatestBlockhash(
	ctx context.Context,
	commitment domain.Commitment,
) (*domain.Blockhash, error) {
	result, err := p.Call(ctx, "getLatestBlockhash", []any{
		map[string]string{"commitment": string(commitment)},
	})
	if err != nil {
		return nil, err
	}

	var out LatestBlockhashResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("%w: decode getLatestBlockhash: %v", ErrMalformedResponse, err)
	}
	if out.Value == nil || out.Value.Blockhash == "" {
		return nil, fmt.Errorf("%w: missing result.value.blockhash", ErrMalformedResponse)
	}
	if err := validateBlockhash(out.Value.Blockhash); err != nil {
		return nil, err
	}

	return &domain.Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
		Slot:                 out.Context.Slot,
		SourceURL:            p.endpoint,
		FetchedAt:            time.Now(),
	}, nil
}

// Stats returns monitoring statistics.
func (p *HTTPProvider) Stats() MonitorStats {
	return p.Monitor.GetStats()
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func validateBlockhash(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: blockhash %q is not base58: %v", ErrMalformedResponse, s, err)
	}
	if len(raw) != blockhashLen {
		return fmt.Errorf("%w: blockhash %q decodes to %d bytes", ErrMalformedResponse, s, len(raw))
	}
	return nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrPaced):
		return "paced"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
