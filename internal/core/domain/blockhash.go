package domain

import "time"

// Commitment is the finality level requested from the cluster.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"

	DefaultCommitment = CommitmentConfirmed
)

// NormalizeCommitment returns DefaultCommitment for unknown values.
func NormalizeCommitment(s string) Commitment {
	switch c := Commitment(s); c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return c
	}
	return DefaultCommitment
}

// Tier records how trustworthy a returned blockhash is, best first.
type Tier string

const (
	TierFresh     Tier = "fresh"
	TierCached    Tier = "cached"
	TierEmergency Tier = "emergency"
	TierStale     Tier = "stale"
	TierSynthetic Tier = "synthetic"
)

// Blockhash is a blockhash together with where and when it was obtained.
type Blockhash struct {
	Hash                 string    `json:"blockhash"`
	LastValidBlockHeight uint64    `json:"lastValidBlockHeight"`
	Slot                 uint64    `json:"slot"`
	SourceURL            string    `json:"source_url"`
	FetchedAt            time.Time `json:"fetched_at"`
}

// Age reports how old the blockhash is at now.
func (b Blockhash) Age(now time.Time) time.Duration {
	return now.Sub(b.FetchedAt)
}

// Resolution is the outcome of a blockhash lookup.
type Resolution struct {
	Blockhash
	Tier Tier
}

// Synthetic reports whether the hash was generated locally and is not valid on chain.
func (r Resolution) Synthetic() bool {
	return r.Tier == TierSynthetic
}

// Selection is a cached endpoint choice for a network.
type Selection struct {
	URL                  string        `json:"url"`
	SelectedAt           time.Time     `json:"selected_at"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	Latency              time.Duration `json:"latency"`
}
