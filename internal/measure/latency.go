package measure

import (
	"slices"
	"time"
)

// latencySummary holds round-trip statistics in milliseconds.
type latencySummary struct {
	MinMs    float64
	MaxMs    float64
	AvgMs    float64
	P50Ms    float64
	P95Ms    float64
	JitterMs float64
	Count    int
}

// summarizeLatency computes statistics over samples in arrival order.
// Jitter is the mean absolute difference between consecutive samples.
func summarizeLatency(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum time.Duration
	for _, s := range samples {
		sum += s
	}

	out := latencySummary{
		MinMs: toMs(sorted[0]),
		MaxMs: toMs(sorted[len(sorted)-1]),
		AvgMs: float64(sum) / float64(len(samples)) / float64(time.Millisecond),
		P50Ms: toMs(sorted[len(sorted)*50/100]),
		P95Ms: toMs(sorted[len(sorted)*95/100]),
		Count: len(samples),
	}

	if len(samples) >= 2 {
		var jitterSum float64
		for i := 1; i < len(samples); i++ {
			diff := samples[i] - samples[i-1]
			if diff < 0 {
				diff = -diff
			}
			jitterSum += toMs(diff)
		}
		out.JitterMs = jitterSum / float64(len(samples)-1)
	}
	return out
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
