package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/gateway/ratelimit"
)

// =============================================================================
// Stubs
// =============================================================================

type stubSelector struct {
	best      map[domain.Network]string
	preferred string
	networks  []string
	panics    bool
}

func (s *stubSelector) GetBestRPCURL(_ context.Context, network string) string {
	if s.panics {
		panic("selector exploded")
	}
	s.networks = append(s.networks, network)
	return s.best[domain.NormalizeNetwork(network)]
}

func (s *stubSelector) PreferredURL(context.Context, domain.Network) string {
	return s.preferred
}

type resolveCall struct {
	url        string
	network    domain.Network
	commitment domain.Commitment
	maxRetries int
}

type stubResolver struct {
	res   domain.Resolution
	calls []resolveCall
}

func (s *stubResolver) GetFreshBlockhash(
	_ context.Context,
	url string,
	network domain.Network,
	commitment domain.Commitment,
	maxRetries int,
) domain.Resolution {
	s.calls = append(s.calls, resolveCall{url, network, commitment, maxRetries})
	return s.res
}

func freshResolution() domain.Resolution {
	return domain.Resolution{
		Blockhash: domain.Blockhash{
			Hash:                 "7fH3kQ9bZ5xJ2mY8vR4tW6pN1cL3sD5gF7hK9jM2nB4q",
			LastValidBlockHeight: 123456,
			Slot:                 42,
			SourceURL:            "https://c.example",
		},
		Tier: domain.TierFresh,
	}
}

func newTestHandler(limit int) (*Handler, *stubSelector, *stubResolver, *ratelimit.Limiter) {
	sel := &stubSelector{
		best: map[domain.Network]string{
			domain.NetworkDevnet:  "https://devnet.example",
			domain.NetworkMainnet: "https://mainnet.example",
		},
		preferred: "https://preferred.example",
	}
	res := &stubResolver{res: freshResolution()}
	lim := ratelimit.New(ratelimit.Config{Limit: limit})
	h := NewHandler(lim, sel, res, HandlerConfig{MaxRetries: 8, PrefetchMaxRetries: 2})
	return h, sel, res, lim
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %q", rec.Body.String())
		}
	}
	return rec, out
}

// =============================================================================
// Tests
// =============================================================================

func TestHandler_Preflight(t *testing.T) {
	h, _, _, lim := newTestHandler(1)

	for i := 0; i < 5; i++ {
		rec, _ := do(t, h, http.MethodOptions, "/", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("preflight body should be empty, got %q", rec.Body.String())
		}
		hdr := rec.Header()
		if hdr.Get("Access-Control-Allow-Origin") != "*" ||
			hdr.Get("Access-Control-Allow-Headers") != "authorization, x-client-info, apikey, content-type" ||
			hdr.Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
			t.Errorf("missing CORS headers: %v", hdr)
		}
	}

	if lim.Count() != 0 {
		t.Errorf("preflight counted against the limiter: %d", lim.Count())
	}
	if rec, _ := do(t, h, http.MethodGet, "/", ""); rec.Code != http.StatusOK {
		t.Errorf("first real request after preflights got %d", rec.Code)
	}
}

func TestHandler_RateLimited(t *testing.T) {
	h, sel, res, _ := newTestHandler(2)

	do(t, h, http.MethodGet, "/", "")
	do(t, h, http.MethodGet, "/", "")
	calls := len(res.calls)

	rec, body := do(t, h, http.MethodPost, "/", `{"network":"devnet"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if body["error"] != "Too many requests from this client" {
		t.Errorf("error = %v", body["error"])
	}
	if v, ok := body["rpc_url"]; !ok || v != nil {
		t.Errorf("rpc_url should be null, got %v (present=%v)", v, ok)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("429 must carry CORS headers")
	}
	if len(sel.networks) != 2 || len(res.calls) != calls {
		t.Error("rate-limited request reached selection or resolution")
	}
}

func TestHandler_JSONRPCEcho(t *testing.T) {
	h, _, res, _ := newTestHandler(150)

	rec, body := do(t, h, http.MethodPost, "/", `{
		"jsonrpc": "2.0",
		"id": "abc-123",
		"method": "getLatestBlockhash",
		"params": [{"commitment": "finalized"}],
		"network": "mainnet-beta"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["id"] != "abc-123" || body["jsonrpc"] != "2.0" {
		t.Errorf("unexpected envelope %v", body)
	}

	result := body["result"].(map[string]any)
	if result["context"].(map[string]any)["slot"].(float64) != 42 {
		t.Errorf("unexpected context %v", result["context"])
	}
	value := result["value"].(map[string]any)
	if value["blockhash"] != freshResolution().Hash || value["lastValidBlockHeight"].(float64) != 123456 {
		t.Errorf("unexpected value %v", value)
	}
	if _, ok := value["synthetic"]; ok {
		t.Error("synthetic flag must be absent for real blockhashes")
	}

	call := res.calls[0]
	if call.url != "https://preferred.example" || call.network != domain.NetworkMainnet ||
		call.commitment != domain.CommitmentFinalized || call.maxRetries != 8 {
		t.Errorf("unexpected resolver call %+v", call)
	}
}

func TestHandler_JSONRPCNumericAndMissingID(t *testing.T) {
	h, _, _, _ := newTestHandler(150)

	_, body := do(t, h, http.MethodPost, "/", `{"jsonrpc":"2.0","id":7,"method":"getLatestBlockhash"}`)
	if body["id"].(float64) != 7 {
		t.Errorf("numeric id not echoed: %v", body["id"])
	}

	_, body = do(t, h, http.MethodPost, "/", `{"jsonrpc":"2.0","method":"getLatestBlockhash"}`)
	if v, ok := body["id"]; !ok || v != nil {
		t.Errorf("missing id should echo null, got %v", v)
	}
}

func TestHandler_FlatBlockhash(t *testing.T) {
	h, _, res, _ := newTestHandler(150)

	rec, body := do(t, h, http.MethodPost, "/", `{"network":"mainnet-beta","method":"getLatestBlockhash"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["rpc_url"] != "https://c.example" || body["network"] != "mainnet-beta" ||
		body["proxy_enabled"] != true || body["latest_blockhash"] != freshResolution().Hash {
		t.Errorf("unexpected body %v", body)
	}
	if res.calls[0].commitment != domain.CommitmentConfirmed {
		t.Errorf("default commitment = %s", res.calls[0].commitment)
	}
}

func TestHandler_SyntheticFlag(t *testing.T) {
	h, _, res, _ := newTestHandler(150)
	res.res = domain.Resolution{
		Blockhash: domain.Blockhash{Hash: strings.Repeat("ab", 32)},
		Tier:      domain.TierSynthetic,
	}

	_, body := do(t, h, http.MethodGet, "/?network=testnet&method=getLatestBlockhash", "")
	if body["synthetic"] != true {
		t.Errorf("flat response should flag synthetic: %v", body)
	}
	if body["rpc_url"] != "https://preferred.example" {
		t.Errorf("synthetic response should fall back to preferred url, got %v", body["rpc_url"])
	}

	_, body = do(t, h, http.MethodPost, "/", `{"jsonrpc":"2.0","id":1,"method":"getLatestBlockhash"}`)
	value := body["result"].(map[string]any)["value"].(map[string]any)
	if value["synthetic"] != true {
		t.Errorf("json-rpc response should flag synthetic: %v", value)
	}

	// Lookups never attach a synthetic blockhash.
	_, body = do(t, h, http.MethodGet, "/?network=devnet", "")
	if _, ok := body["latest_blockhash"]; ok {
		t.Errorf("lookup attached synthetic blockhash: %v", body)
	}
}

func TestHandler_Lookup(t *testing.T) {
	h, sel, res, _ := newTestHandler(150)

	rec, body := do(t, h, http.MethodPost, "/", `{"network":"mainnet-beta"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["rpc_url"] != "https://mainnet.example" || body["network"] != "mainnet-beta" ||
		body["proxy_enabled"] != true || body["latest_blockhash"] != freshResolution().Hash {
		t.Errorf("unexpected body %v", body)
	}
	if sel.networks[0] != "mainnet-beta" {
		t.Errorf("selector got %q", sel.networks[0])
	}
	if res.calls[0].url != "https://mainnet.example" || res.calls[0].maxRetries != 2 {
		t.Errorf("prefetch should use the selected url and prefetch budget: %+v", res.calls[0])
	}
}

func TestHandler_NetworkNormalization(t *testing.T) {
	h, _, _, _ := newTestHandler(150)

	_, foo := do(t, h, http.MethodPost, "/", `{"network":"foo"}`)
	_, dev := do(t, h, http.MethodPost, "/", `{"network":"devnet"}`)

	if foo["network"] != "devnet" || foo["rpc_url"] != dev["rpc_url"] {
		t.Errorf("foo = %v, devnet = %v", foo, dev)
	}
}

func TestHandler_QueryParams(t *testing.T) {
	h, _, res, _ := newTestHandler(150)

	_, body := do(t, h, http.MethodGet, "/?network=mainnet-beta&method=getLatestBlockhash&commitment=processed", "")
	if body["latest_blockhash"] != freshResolution().Hash {
		t.Errorf("unexpected body %v", body)
	}
	if res.calls[0].network != domain.NetworkMainnet || res.calls[0].commitment != domain.CommitmentProcessed {
		t.Errorf("unexpected call %+v", res.calls[0])
	}
}

func TestHandler_InvalidBodyIsDefaultLookup(t *testing.T) {
	h, _, _, _ := newTestHandler(150)

	rec, body := do(t, h, http.MethodPost, "/", `{not json`)
	if rec.Code != http.StatusOK || body["network"] != "devnet" || body["rpc_url"] != "https://devnet.example" {
		t.Errorf("status = %d, body = %v", rec.Code, body)
	}
}

func TestHandler_PanicBecomes500(t *testing.T) {
	h, sel, _, _ := newTestHandler(150)
	sel.panics = true

	rec, body := do(t, h, http.MethodPost, "/", `{"network":"devnet"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body["rpc_url"] != domain.FallbackRPCURL || body["proxy_enabled"] != false || body["error"] == "" {
		t.Errorf("unexpected 500 body %v", body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("500 must carry CORS headers")
	}
}

func TestHandler_EmptyResolutionBecomes500(t *testing.T) {
	h, _, res, _ := newTestHandler(150)
	res.res = domain.Resolution{}

	rec, body := do(t, h, http.MethodPost, "/", `{"method":"getLatestBlockhash"}`)
	if rec.Code != http.StatusInternalServerError || body["proxy_enabled"] != false {
		t.Errorf("status = %d, body = %v", rec.Code, body)
	}
}

func TestHandler_OversizedBody(t *testing.T) {
	h, _, _, _ := newTestHandler(150)

	big := `{"network":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec, _ := do(t, h, http.MethodPost, "/", big)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// brokenWriter delivers the bytes and then fails the way a dying connection
// handler might.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w brokenWriter) Write(b []byte) (int, error) {
	_, _ = w.ResponseRecorder.Write(b)
	panic("connection torn down")
}

func TestHandler_PanicAfterResponseStarted(t *testing.T) {
	h, _, _, _ := newTestHandler(150)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"network":"devnet"}`))

	h.ServeHTTP(brokenWriter{rec}, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want the original 200", rec.Code)
	}
	dec := json.NewDecoder(rec.Body)
	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("first body is not JSON: %v", err)
	}
	if first["rpc_url"] != "https://devnet.example" {
		t.Errorf("unexpected body %v", first)
	}
	var extra map[string]any
	if err := dec.Decode(&extra); err != io.EOF {
		t.Errorf("a second body was appended: %v (err %v)", extra, err)
	}
}
