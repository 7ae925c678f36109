package routing

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Weights blends the inputs of the ordering score. They need not sum to 1.
type Weights struct {
	Random  float64
	Health  float64
	Latency float64
}

// DefaultWeights spread load across endpoints while still preferring
// healthy, fast ones.
var DefaultWeights = Weights{Random: 0.4, Health: 0.4, Latency: 0.2}

// Rotator orders candidate endpoints for probing.
type Rotator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	weights Weights
}

// NewRotator creates a rotator; a nil src seeds from the clock.
func NewRotator(src rand.Source, weights Weights) *Rotator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Rotator{rnd: rand.New(src), weights: weights}
}

// Order returns urls sorted by a weighted score of randomness, last known
// health and normalized response time. The input slice is not modified.
func (r *Rotator) Order(urls []string, view HealthView) []string {
	type scored struct {
		url   string
		score float64
	}

	var maxLatency time.Duration
	for _, u := range urls {
		if h, ok := view.Health(u); ok && h.ResponseTime > maxLatency {
			maxLatency = h.ResponseTime
		}
	}

	r.mu.Lock()
	candidates := make([]scored, 0, len(urls))
	for _, u := range urls {
		healthScore, latencyScore := 0.5, 0.5
		if h, ok := view.Health(u); ok {
			healthScore = 0
			if h.Healthy {
				healthScore = 1
			}
			if maxLatency > 0 {
				latencyScore = 1 - float64(h.ResponseTime)/float64(maxLatency)
			}
		}
		score := r.weights.Random*r.rnd.Float64() +
			r.weights.Health*healthScore +
			r.weights.Latency*latencyScore
		candidates = append(candidates, scored{url: u, score: score})
	}
	r.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.url
	}
	return out
}

// Shuffle returns a uniformly shuffled copy of urls.
func (r *Rotator) Shuffle(urls []string) []string {
	out := append([]string(nil), urls...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Pick returns a uniformly random element of urls, or "" when empty.
func (r *Rotator) Pick(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return urls[r.rnd.Intn(len(urls))]
}
