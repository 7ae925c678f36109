// Package api serves the gateway over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/metrics"
)

// RateLimiter gates inbound requests.
type RateLimiter interface {
	Allow() bool
}

// URLSelector picks endpoint URLs.
type URLSelector interface {
	GetBestRPCURL(ctx context.Context, network string) string
	PreferredURL(ctx context.Context, network domain.Network) string
}

// BlockhashResolver resolves blockhashes with fallbacks.
type BlockhashResolver interface {
	GetFreshBlockhash(
		ctx context.Context,
		url string,
		network domain.Network,
		commitment domain.Commitment,
		maxRetries int,
	) domain.Resolution
}

// HandlerConfig holds response shaping options.
type HandlerConfig struct {
	FallbackRPCURL     string
	MaxRetries         int
	PrefetchMaxRetries int
}

// Handler answers endpoint lookups and blockhash requests.
type Handler struct {
	limiter  RateLimiter
	selector URLSelector
	resolver BlockhashResolver
	cfg      HandlerConfig
	log      *slog.Logger
}

// NewHandler creates the request handler.
func NewHandler(
	limiter RateLimiter,
	selector URLSelector,
	resolver BlockhashResolver,
	cfg HandlerConfig,
) *Handler {
	if cfg.FallbackRPCURL == "" {
		cfg.FallbackRPCURL = domain.FallbackRPCURL
	}
	if cfg.PrefetchMaxRetries <= 0 {
		cfg.PrefetchMaxRetries = 2
	}
	return &Handler{
		limiter:  limiter,
		selector: selector,
		resolver: resolver,
		cfg:      cfg,
		log:      slog.Default().With("component", "api"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	mode := modeLookup
	defer func() {
		if rec := recover(); rec != nil {
			if tw.status != 0 {
				// Headers are gone; a second body would corrupt the first.
				h.log.Error("Handler panic after response started", "panic", rec, "path", r.URL.Path)
				metrics.RequestsTotal.WithLabelValues(mode, strconv.Itoa(tw.status)).Inc()
				return
			}
			h.log.Error("Handler panic", "panic", rec, "path", r.URL.Path)
			status := h.writeError(tw, fmt.Errorf("internal error: %v", rec))
			metrics.RequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
		}
	}()

	if !h.limiter.Allow() {
		metrics.RateLimitedTotal.Inc()
		h.log.Warn("Request rate limited", "remote", r.RemoteAddr)
		writeJSON(tw, http.StatusTooManyRequests, errorResponse{Error: rateLimitedMessage})
		metrics.RequestsTotal.WithLabelValues(mode, strconv.Itoa(http.StatusTooManyRequests)).Inc()
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		h.log.Error("Failed to parse request", "error", err)
		status := h.writeError(tw, err)
		metrics.RequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
		return
	}
	mode = req.mode()

	ctx := r.Context()
	var status int
	if req.wantsBlockhash() {
		status = h.serveBlockhash(ctx, tw, req)
	} else {
		status = h.serveLookup(ctx, tw, req)
	}
	metrics.RequestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

// trackingWriter remembers whether the response has started.
type trackingWriter struct {
	http.ResponseWriter
	status int
}

func (w *trackingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// serveBlockhash resolves a blockhash without running selection probes.
func (h *Handler) serveBlockhash(ctx context.Context, w http.ResponseWriter, req *clientRequest) int {
	network := req.network()
	url := h.selector.PreferredURL(ctx, network)

	res := h.resolver.GetFreshBlockhash(ctx, url, network, req.commitment(), h.cfg.MaxRetries)
	if res.Hash == "" {
		h.log.Error("Blockhash resolution returned no value", "network", network)
		return h.writeError(w, errors.New("no blockhash available"))
	}
	if res.Synthetic() {
		h.log.Warn("Serving synthetic blockhash", "network", network)
	}

	if req.mode() == modeJSONRPC {
		writeJSON(w, http.StatusOK, newRPCResponse(req.ID, res))
		return http.StatusOK
	}

	rpcURL := res.SourceURL
	if rpcURL == "" {
		rpcURL = url
	}
	writeJSON(w, http.StatusOK, lookupResponse{
		RPCURL:          rpcURL,
		Network:         network.String(),
		ProxyEnabled:    true,
		LatestBlockhash: res.Hash,
		Synthetic:       res.Synthetic(),
	})
	return http.StatusOK
}

// serveLookup selects an endpoint and attaches a prefetched blockhash when
// a real one is available.
func (h *Handler) serveLookup(ctx context.Context, w http.ResponseWriter, req *clientRequest) int {
	network := req.network()
	url := h.selector.GetBestRPCURL(ctx, req.Network)

	resp := lookupResponse{
		RPCURL:       url,
		Network:      network.String(),
		ProxyEnabled: true,
	}

	res := h.resolver.GetFreshBlockhash(ctx, url, network, req.commitment(), h.cfg.PrefetchMaxRetries)
	if res.Hash != "" && !res.Synthetic() {
		resp.LatestBlockhash = res.Hash
	}

	writeJSON(w, http.StatusOK, resp)
	return http.StatusOK
}

// writeError answers 500 with a fallback URL the caller can still try.
func (h *Handler) writeError(w http.ResponseWriter, err error) int {
	fallback := h.cfg.FallbackRPCURL
	disabled := false
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:        err.Error(),
		RPCURL:       &fallback,
		ProxyEnabled: &disabled,
	})
	return http.StatusInternalServerError
}
