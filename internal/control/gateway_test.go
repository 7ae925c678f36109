package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/rpcgate/internal/core/config"
	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/infra/rpc/rpctest"
)

const testHash = "GHtXQBsoZHVnNFa9YevAzFr17DJjgHXk3ycTKD5xD3Zi"

func testConfig(t *testing.T, urls ...string) *config.AppConfig {
	t.Helper()
	for _, n := range domain.Networks {
		t.Setenv(n.EnvKey(), "")
	}

	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Networks = map[domain.Network]config.NetworkConfig{
		domain.NetworkMainnet: {Endpoints: urls},
		domain.NetworkTestnet: {Endpoints: urls},
		domain.NetworkDevnet:  {Endpoints: urls},
	}
	cfg.Gateway.HealthTimeout = 200 * time.Millisecond
	cfg.Gateway.FetchTimeout = 200 * time.Millisecond
	cfg.Gateway.BackoffInitial = time.Millisecond
	cfg.Gateway.BackoffMax = 5 * time.Millisecond
	return cfg
}

func TestGateway_Lifecycle(t *testing.T) {
	node := rpctest.NewNode(t, rpctest.Healthy, testHash)
	cfg := testConfig(t, node.URL)

	g, err := NewGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ts := httptest.NewServer(g.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL, "application/json", strings.NewReader(`{"network":"devnet"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()

	if body["rpc_url"] != node.URL || body["latest_blockhash"] != testHash {
		t.Errorf("unexpected body %v", body)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := g.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestGateway_Resolve(t *testing.T) {
	node := rpctest.NewNode(t, rpctest.Healthy, testHash)
	g, err := NewGateway(context.Background(), testConfig(t, node.URL))
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	defer g.Close()

	res := g.Resolve(context.Background(), "unknown", true)
	if res.Network != domain.NetworkDevnet || res.RPCURL != node.URL {
		t.Errorf("unexpected resolution %+v", res)
	}
	if res.Blockhash == nil || res.Blockhash.Hash != testHash || res.Blockhash.Tier != domain.TierFresh {
		t.Errorf("unexpected blockhash %+v", res.Blockhash)
	}

	if h, ok := g.Tracker().Health(node.URL); !ok || !h.Healthy {
		t.Errorf("tracker not updated: %+v", h)
	}
}

func TestGateway_SharedRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	node := rpctest.NewNode(t, rpctest.Healthy, testHash)

	cfg := testConfig(t, node.URL)
	cfg.Redis.URL = "redis://" + mr.Addr()

	first, err := NewGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	defer first.Close()
	first.Resolve(context.Background(), "mainnet-beta", true)

	if !mr.Exists("rpcgate:selection:mainnet-beta") || !mr.Exists("rpcgate:blockhash:mainnet-beta") {
		t.Fatalf("shared cache not populated: %v", mr.Keys())
	}

	// A second instance reuses the shared selection without probing.
	second, err := NewGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	defer second.Close()

	probes := node.HealthCalls()
	if res := second.Resolve(context.Background(), "mainnet-beta", false); res.RPCURL != node.URL {
		t.Errorf("unexpected url %s", res.RPCURL)
	}
	if node.HealthCalls() != probes {
		t.Error("second instance should reuse the shared selection")
	}
}

func TestNewGateway_BadRedis(t *testing.T) {
	cfg := testConfig(t, "https://unused.example")
	cfg.Redis.URL = "redis://127.0.0.1:1"

	if _, err := NewGateway(context.Background(), cfg); err == nil {
		t.Error("expected redis connection error")
	}
}
