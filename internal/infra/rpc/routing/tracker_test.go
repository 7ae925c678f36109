package routing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
	"github.com/vietddude/rpcgate/internal/infra/rpc/rpctest"
)

type stubProvider struct {
	url     string
	latency time.Duration
	err     error
	calls   atomic.Int32
}

func (s *stubProvider) URL() string { return s.url }

func (s *stubProvider) CheckHealth(ctx context.Context) (time.Duration, error) {
	s.calls.Add(1)
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return s.latency, ctx.Err()
		case <-time.After(s.latency):
		}
	}
	return s.latency, s.err
}

func (s *stubProvider) GetLatestBlockhash(context.Context, domain.Commitment) (*domain.Blockhash, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Stats() provider.MonitorStats { return provider.MonitorStats{} }
func (s *stubProvider) Close() error                 { return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(providers map[string]*stubProvider) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(func(url string) provider.Provider {
		return providers[url]
	}, DefaultTrackerConfig)
	tr.SetClock(clock.Now)
	return tr, clock
}

func TestTracker_CooldownAfterThreeFailures(t *testing.T) {
	tr, clock := newTestTracker(nil)
	url := "https://a.example"

	tr.UpdateNodeHealth(url, false, 0)
	tr.UpdateNodeHealth(url, false, 0)
	if tr.InCooldown(url) {
		t.Fatal("two failures must not trigger cooldown")
	}

	tr.UpdateNodeHealth(url, false, 0)
	if !tr.InCooldown(url) {
		t.Fatal("three failures must trigger cooldown")
	}

	clock.Advance(10*time.Minute - time.Second)
	if !tr.InCooldown(url) {
		t.Error("cooldown lapsed too early")
	}
	clock.Advance(time.Second)
	if tr.InCooldown(url) {
		t.Error("cooldown should lapse after 10 minutes")
	}
}

func TestTracker_SuccessDoesNotClearCooldown(t *testing.T) {
	tr, _ := newTestTracker(nil)
	url := "https://a.example"

	for i := 0; i < 3; i++ {
		tr.UpdateNodeHealth(url, false, 0)
	}
	tr.UpdateNodeHealth(url, true, 50*time.Millisecond)

	h, ok := tr.Health(url)
	if !ok {
		t.Fatal("missing record")
	}
	if h.ConsecutiveFailures != 0 || h.ConsecutiveSuccesses != 1 {
		t.Errorf("streaks = %d/%d, want 0/1", h.ConsecutiveFailures, h.ConsecutiveSuccesses)
	}
	if !tr.InCooldown(url) {
		t.Error("success must not clear an active cooldown")
	}
}

func TestTracker_FailureResetsSuccessStreak(t *testing.T) {
	tr, _ := newTestTracker(nil)
	url := "https://a.example"

	tr.UpdateNodeHealth(url, true, time.Millisecond)
	tr.UpdateNodeHealth(url, true, time.Millisecond)
	tr.UpdateNodeHealth(url, false, 0)

	h, _ := tr.Health(url)
	if h.ConsecutiveSuccesses != 0 || h.ConsecutiveFailures != 1 || h.Healthy {
		t.Errorf("unexpected record %+v", h)
	}
}

func TestTracker_CheckRPCHealth(t *testing.T) {
	good := &stubProvider{url: "https://good.example"}
	bad := &stubProvider{url: "https://bad.example", err: provider.ErrUnhealthy}
	slow := &stubProvider{url: "https://slow.example", latency: 200 * time.Millisecond}

	tr, _ := newTestTracker(map[string]*stubProvider{
		good.url: good,
		bad.url:  bad,
		slow.url: slow,
	})
	ctx := context.Background()

	if res := tr.CheckRPCHealth(ctx, good.url, time.Second); !res.Healthy {
		t.Error("good endpoint reported unhealthy")
	}
	if res := tr.CheckRPCHealth(ctx, bad.url, time.Second); res.Healthy {
		t.Error("bad endpoint reported healthy")
	}
	if res := tr.CheckRPCHealth(ctx, slow.url, 20*time.Millisecond); res.Healthy {
		t.Error("slow endpoint should time out")
	}

	if _, ok := tr.Health(good.url); ok {
		t.Error("CheckRPCHealth must not write health records")
	}
}

func TestTracker_CheckSkipsCooldown(t *testing.T) {
	p := &stubProvider{url: "https://a.example"}
	tr, _ := newTestTracker(map[string]*stubProvider{p.url: p})

	for i := 0; i < 3; i++ {
		tr.UpdateNodeHealth(p.url, false, 0)
	}

	res := tr.CheckRPCHealth(context.Background(), p.url, time.Second)
	if res.Healthy || !res.Skipped {
		t.Errorf("expected skipped unhealthy result, got %+v", res)
	}
	if p.calls.Load() != 0 {
		t.Error("endpoint in cooldown must not be probed")
	}
}

func TestTracker_Snapshot(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.UpdateNodeHealth("https://b.example", true, 0)
	tr.UpdateNodeHealth("https://a.example", false, 0)

	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].URL != "https://a.example" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestTracker_CheckAbandonedIsSkipped(t *testing.T) {
	paced := &stubProvider{url: "https://paced.example", err: fmt.Errorf("x: %w", provider.ErrPaced)}
	slow := &stubProvider{url: "https://slow.example", latency: time.Second}
	tr, _ := newTestTracker(map[string]*stubProvider{paced.url: paced, slow.url: slow})

	if res := tr.CheckRPCHealth(context.Background(), paced.url, 0); !res.Skipped || res.Healthy {
		t.Errorf("paced probe = %+v, want skipped", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if res := tr.CheckRPCHealth(ctx, slow.url, time.Second); !res.Skipped {
		t.Errorf("probe cut short by caller = %+v, want skipped", res)
	}

	// The probe's own budget expiring is a verdict on the endpoint.
	if res := tr.CheckRPCHealth(context.Background(), slow.url, 10*time.Millisecond); res.Skipped || res.Healthy {
		t.Errorf("probe past its budget = %+v, want unhealthy", res)
	}
}

func TestTracker_ForbiddenThenRecovered(t *testing.T) {
	node := rpctest.NewNode(t, rpctest.Forbidden, "")
	pool := provider.NewPool(time.Second, nil)
	defer pool.Close()

	tr := NewTracker(func(url string) provider.Provider { return pool.Get(url) }, DefaultTrackerConfig)
	ctx := context.Background()

	res := tr.CheckRPCHealth(ctx, node.URL, time.Second)
	if res.Healthy || res.Skipped {
		t.Fatalf("403 probe = %+v, want unhealthy", res)
	}
	tr.UpdateNodeHealth(node.URL, res.Healthy, res.ResponseTime)

	node.SetBehavior(rpctest.Healthy)
	res = tr.CheckRPCHealth(ctx, node.URL, time.Second)
	if !res.Healthy {
		t.Fatalf("recovered endpoint probe = %+v, want healthy", res)
	}
	tr.UpdateNodeHealth(node.URL, res.Healthy, res.ResponseTime)

	if node.HealthCalls() != 2 {
		t.Errorf("upstream getHealth calls = %d, want 2", node.HealthCalls())
	}
	h, _ := tr.Health(node.URL)
	if h.ConsecutiveFailures != 0 || tr.InCooldown(node.URL) {
		t.Errorf("record after recovery = %+v", h)
	}
}
