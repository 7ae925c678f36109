package domain

import "time"

// NodeHealth is the advisory health record kept per endpoint URL.
type NodeHealth struct {
	URL                  string        `json:"url"`
	Healthy              bool          `json:"is_healthy"`
	LastChecked          time.Time     `json:"last_checked"`
	ResponseTime         time.Duration `json:"response_time"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	CooldownUntil        time.Time     `json:"cooldown_until,omitempty"`
}

// InCooldown reports whether the endpoint must be skipped at now.
func (h NodeHealth) InCooldown(now time.Time) bool {
	return now.Before(h.CooldownUntil)
}
