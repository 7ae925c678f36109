package provider

import (
	"net/http"
	"sync"
	"time"
)

// LimiterFactory returns the outbound limiter for an endpoint, or nil.
type LimiterFactory func(url string) Limiter

// Pool lazily builds one HTTPProvider per endpoint URL. Providers share a
// single transport so keep-alive connections are reused across lookups.
type Pool struct {
	mu        sync.RWMutex
	providers map[string]*HTTPProvider

	client   *http.Client
	limiters LimiterFactory
}

// NewPool creates a provider pool. limiters may be nil.
func NewPool(timeout time.Duration, limiters LimiterFactory) *Pool {
	return &Pool{
		providers: make(map[string]*HTTPProvider),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiters: limiters,
	}
}

// Get returns the provider for url, creating it on first use.
func (p *Pool) Get(url string) *HTTPProvider {
	p.mu.RLock()
	prov, ok := p.providers[url]
	p.mu.RUnlock()
	if ok {
		return prov
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if prov, ok := p.providers[url]; ok {
		return prov
	}

	var limiter Limiter
	if p.limiters != nil {
		limiter = p.limiters(url)
	}
	prov = newHTTPProvider(url, p.client, limiter)
	p.providers[url] = prov
	return prov
}

// Stats returns monitor statistics for every provider created so far.
func (p *Pool) Stats() map[string]MonitorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]MonitorStats, len(p.providers))
	for url, prov := range p.providers {
		out[url] = prov.Stats()
	}
	return out
}

// Close releases idle connections.
func (p *Pool) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
