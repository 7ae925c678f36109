// Package budget paces outbound calls to public RPC endpoints.
//
// Each endpoint URL gets its own token bucket so a burst of gateway traffic
// is spread over the candidate pool instead of exhausting one provider.
package budget

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/vietddude/rpcgate/internal/infra/rpc/provider"
)

// UsageStats holds pacing statistics for one endpoint.
type UsageStats struct {
	Allowed int     `json:"allowed"`
	Denied  int     `json:"denied"`
	Tokens  float64 `json:"tokens"`
}

type endpointBudget struct {
	limiter *rate.Limiter
	allowed int
	denied  int
}

// Pacer hands out one limiter per endpoint URL.
type Pacer struct {
	mu        sync.Mutex
	endpoints map[string]*endpointBudget
	rps       rate.Limit
	burst     int
}

// NewPacer creates a pacer allowing rps calls per second with the given burst
// per endpoint. It returns nil when rps <= 0, meaning pacing is disabled.
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		endpoints: make(map[string]*endpointBudget),
		rps:       rate.Limit(rps),
		burst:     burst,
	}
}

// Allow reports whether a call to url may proceed now.
func (p *Pacer) Allow(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.budgetLocked(url)
	if b.limiter.Allow() {
		b.allowed++
		return true
	}
	b.denied++
	return false
}

// Limiter returns a provider.Limiter bound to url. Safe on a nil Pacer.
func (p *Pacer) Limiter(url string) provider.Limiter {
	if p == nil {
		return nil
	}
	return endpointLimiter{pacer: p, url: url}
}

// GetUsage returns pacing statistics for url.
func (p *Pacer) GetUsage(url string) UsageStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.endpoints[url]
	if !ok {
		return UsageStats{Tokens: float64(p.burst)}
	}
	return UsageStats{
		Allowed: b.allowed,
		Denied:  b.denied,
		Tokens:  b.limiter.Tokens(),
	}
}

func (p *Pacer) budgetLocked(url string) *endpointBudget {
	b, ok := p.endpoints[url]
	if !ok {
		b = &endpointBudget{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.endpoints[url] = b
	}
	return b
}

type endpointLimiter struct {
	pacer *Pacer
	url   string
}

func (l endpointLimiter) Allow() bool {
	return l.pacer.Allow(l.url)
}
