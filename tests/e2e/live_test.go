package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"

	"github.com/vietddude/rpcgate/internal/control"
	"github.com/vietddude/rpcgate/internal/core/config"
	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/infra/storage/postgres"
)

func liveGateway(t *testing.T, cfg *config.AppConfig) *httptest.Server {
	t.Helper()

	gateway, err := control.NewGateway(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	srv := httptest.NewServer(gateway.Routes())
	t.Cleanup(func() {
		srv.Close()
		gateway.Close()
	})
	return srv
}

func skipUnlessLive(t *testing.T) {
	t.Helper()
	_ = godotenv.Load("../../.env")
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("Skipping live E2E test. Set E2E_LIVE=true to run.")
	}
}

func TestDevnetBlockhash_Live(t *testing.T) {
	skipUnlessLive(t)

	srv := liveGateway(t, config.Default())

	body := []byte(`{"jsonrpc":"2.0","id":"live-1","method":"getLatestBlockhash","params":[{"commitment":"confirmed"}],"network":"devnet"}`)
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		ID     string `json:"id"`
		Result struct {
			Value struct {
				Blockhash            string `json:"blockhash"`
				LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
				Synthetic            bool   `json:"synthetic"`
			} `json:"value"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if out.ID != "live-1" {
		t.Errorf("id = %q, want live-1", out.ID)
	}
	if out.Result.Value.Synthetic {
		t.Fatal("devnet returned a synthetic blockhash; every public endpoint failed")
	}
	raw, err := base58.Decode(out.Result.Value.Blockhash)
	if err != nil || len(raw) != 32 {
		t.Errorf("blockhash %q is not a 32-byte base58 value", out.Result.Value.Blockhash)
	}
	if out.Result.Value.LastValidBlockHeight == 0 {
		t.Error("lastValidBlockHeight = 0")
	}
	t.Logf("SUCCESS: devnet blockhash %s", out.Result.Value.Blockhash)
}

func TestLookup_Live(t *testing.T) {
	skipUnlessLive(t)

	srv := liveGateway(t, config.Default())

	for _, network := range domain.Networks {
		resp, err := http.Get(srv.URL + "/?network=" + network.String())
		if err != nil {
			t.Fatalf("%s: request failed: %v", network, err)
		}

		var out map[string]any
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("%s: decode: %v", network, err)
		}

		if out["network"] != network.String() {
			t.Errorf("network = %v, want %s", out["network"], network)
		}
		if url, _ := out["rpc_url"].(string); url == "" {
			t.Errorf("%s: empty rpc_url", network)
		}
		t.Logf("%s -> %v", network, out["rpc_url"])
	}
}

func TestFallbackJournal_Live(t *testing.T) {
	skipUnlessLive(t)

	dbURL := os.Getenv("E2E_DATABASE_URL")
	if dbURL == "" {
		t.Skip("E2E_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.Default()
	cfg.Database.URL = dbURL
	// Every endpoint is unreachable so the resolver must fall back.
	cfg.Networks = map[domain.Network]config.NetworkConfig{
		domain.NetworkTestnet: {Endpoints: []string{"http://127.0.0.1:1"}},
	}
	cfg.Gateway.MaxRetries = 1
	cfg.Gateway.FetchTimeout = time.Second

	gateway, err := control.NewGateway(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}
	defer gateway.Close()

	res := gateway.Resolve(ctx, "testnet", true)
	if res.Blockhash == nil || res.Blockhash.Tier != domain.TierSynthetic {
		t.Fatalf("expected synthetic tier, got %+v", res.Blockhash)
	}

	db, err := postgres.NewDB(ctx, postgres.Config{URL: dbURL})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	events, err := postgres.NewEventRepo(db).Recent(ctx, domain.NetworkTestnet, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	found := false
	for _, ev := range events {
		if ev.Kind == domain.FallbackSyntheticBlockhash {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("no synthetic_blockhash event journaled, got %d events", len(events))
	}
}
