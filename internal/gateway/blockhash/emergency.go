package blockhash

import (
	"context"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// maybeRefreshEmergency starts a background refresh of the network's
// emergency blockhash when it is missing or older than the refresh
// interval. At most one refresh per network runs at a time.
func (r *Resolver) maybeRefreshEmergency(network domain.Network, commitment domain.Commitment) {
	r.mu.Lock()
	current, ok := r.emergency[network]
	if (ok && current.Age(r.now()) < r.cfg.EmergencyRefresh) || r.refreshing[network] {
		r.mu.Unlock()
		return
	}
	r.refreshing[network] = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			r.refreshing[network] = false
			r.mu.Unlock()
		}()

		if bh := r.refreshEmergency(r.baseCtx, network, commitment); bh != nil {
			r.mu.Lock()
			r.emergency[network] = *bh
			r.mu.Unlock()
			r.log.Debug("Emergency blockhash refreshed", "network", network, "url", bh.SourceURL)
		}
	}()
}

// refreshEmergency tries every candidate in order until one answers.
// Failures are swallowed and never touch health records.
func (r *Resolver) refreshEmergency(
	ctx context.Context,
	network domain.Network,
	commitment domain.Commitment,
) *domain.Blockhash {
	for _, url := range r.candidates[network] {
		if ctx.Err() != nil {
			return nil
		}
		bh, _, err := r.fetch(ctx, url, commitment)
		if err == nil {
			return bh
		}
	}
	r.log.Debug("Emergency refresh found no source", "network", network)
	return nil
}
