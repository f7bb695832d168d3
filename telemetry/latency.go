package telemetry

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxSamples bounds the samples kept per target.
const DefaultMaxSamples = 512

// Sample is one timed exchange with a target.
type Sample struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Error     string
}

// LatencySummary aggregates the samples of one target.
type LatencySummary struct {
	Target       string        `json:"target"`
	Total        int           `json:"total"`
	SuccessRate  float64       `json:"success_rate"`
	P50          time.Duration `json:"p50"`
	P95          time.Duration `json:"p95"`
	P99          time.Duration `json:"p99"`
	Min          time.Duration `json:"min"`
	Max          time.Duration `json:"max"`
	RecentErrors []string      `json:"recent_errors"`
}

// LatencyTracker collects round-trip samples per target (calibration probes,
// attempt flush-to-status times).
type LatencyTracker struct {
	mu         sync.Mutex
	targets    map[string][]Sample
	maxSamples int
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		targets:    make(map[string][]Sample),
		maxSamples: DefaultMaxSamples,
	}
}

// TrackSuccess records a completed exchange.
func (t *LatencyTracker) TrackSuccess(target string, latency time.Duration) {
	t.track(target, Sample{Timestamp: time.Now().UTC(), Success: true, Latency: latency})
}

// TrackFailure records a failed exchange.
func (t *LatencyTracker) TrackFailure(target string, latency time.Duration, errorMsg string) {
	t.track(target, Sample{Timestamp: time.Now().UTC(), Latency: latency, Error: errorMsg})
}

func (t *LatencyTracker) track(target string, s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.targets[target], s)
	if len(samples) > t.maxSamples {
		samples = samples[len(samples)-t.maxSamples:]
	}
	t.targets[target] = samples
}

// Summary returns the aggregate for one target; ok is false when nothing was tracked.
func (t *LatencyTracker) Summary(target string) (LatencySummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.targets[target]
	if len(samples) == 0 {
		return LatencySummary{}, false
	}
	return summarize(target, samples), true
}

// Summaries returns the aggregate of every target, sorted by target.
func (t *LatencyTracker) Summaries() []LatencySummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]LatencySummary, 0, len(t.targets))
	for target, samples := range t.targets {
		if len(samples) == 0 {
			continue
		}
		out = append(out, summarize(target, samples))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func summarize(target string, samples []Sample) LatencySummary {
	var successes int
	latencies := make([]time.Duration, 0, len(samples))
	recentErrors := make([]string, 0)

	for _, s := range samples {
		if s.Success {
			successes++
		} else if len(recentErrors) < 5 {
			recentErrors = append(recentErrors, s.Error)
		}
		latencies = append(latencies, s.Latency)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return LatencySummary{
		Target:       target,
		Total:        len(samples),
		SuccessRate:  float64(successes) / float64(len(samples)),
		P50:          percentile(latencies, 0.50),
		P95:          percentile(latencies, 0.95),
		P99:          percentile(latencies, 0.99),
		Min:          latencies[0],
		Max:          latencies[len(latencies)-1],
		RecentErrors: recentErrors,
	}
}

// percentile picks the nearest-rank value of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
