package storage

import (
	"context"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// CacheStore holds the per-network selection and blockhash caches.
// Entries are returned regardless of age; callers apply their own TTLs so
// that expired blockhashes remain available as a stale fallback.
type CacheStore interface {
	// GetSelection returns the cached endpoint choice, or nil when absent
	GetSelection(ctx context.Context, network domain.Network) (*domain.Selection, error)

	// SetSelection overwrites the cached endpoint choice
	SetSelection(ctx context.Context, network domain.Network, sel *domain.Selection) error

	// GetBlockhash returns the last fetched blockhash, or nil when absent
	GetBlockhash(ctx context.Context, network domain.Network) (*domain.Blockhash, error)

	// SetBlockhash overwrites the cached blockhash
	SetBlockhash(ctx context.Context, network domain.Network, bh *domain.Blockhash) error

	// Flush drops both entries for a network
	Flush(ctx context.Context, network domain.Network) error
}

// FallbackEventRepository journals every use of a degraded path.
type FallbackEventRepository interface {
	// Record appends an event; ID and OccurredAt may be filled by the store
	Record(ctx context.Context, ev *domain.FallbackEvent) error

	// Recent returns up to limit events for a network, newest first
	Recent(ctx context.Context, network domain.Network, limit int) ([]domain.FallbackEvent, error)

	// DeleteOlderThan removes events that occurred before the threshold
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
