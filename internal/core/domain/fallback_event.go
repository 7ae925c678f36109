package domain

import "time"

// FallbackKind identifies which degraded path served a request.
type FallbackKind string

const (
	FallbackEmergencyBlockhash FallbackKind = "emergency_blockhash"
	FallbackStaleBlockhash     FallbackKind = "stale_blockhash"
	FallbackSyntheticBlockhash FallbackKind = "synthetic_blockhash"
	FallbackRandomSelection    FallbackKind = "random_selection"
)

// FallbackEvent is a journal entry written whenever a degraded path is used.
type FallbackEvent struct {
	ID         int64        `json:"id"          db:"id"`
	Network    Network      `json:"network"     db:"network"`
	Kind       FallbackKind `json:"kind"        db:"kind"`
	URL        string       `json:"url"         db:"url"`
	Detail     string       `json:"detail"      db:"detail"`
	OccurredAt time.Time    `json:"occurred_at" db:"occurred_at"`
}
