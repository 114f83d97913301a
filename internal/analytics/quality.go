package analytics

import "time"

// quality computes the 0.3/0.3/0.2/0.2 completeness/timeliness/accuracy/
// consistency blend spec.md §4.11 names. Each sub-score is derived from the
// stats already tracked per source, since spec.md leaves the exact formulas
// to "§8" without further literal detail beyond the weights — this mapping
// is an Open Question resolution recorded in DESIGN.md.
func quality(s SourceStats, now time.Time) float64 {
	completeness := completenessScore(s)
	timeliness := timelinessScore(s, now)
	accuracy := accuracyScore(s)
	consistency := consistencyScore(s)
	return 0.3*completeness + 0.3*timeliness + 0.2*accuracy + 0.2*consistency
}

// completenessScore rewards a low failure rate — a failed event is an
// incomplete observation of its source.
func completenessScore(s SourceStats) float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// timelinessScore rewards sources that are still emitting recently,
// decaying linearly over a 10-minute staleness window.
func timelinessScore(s SourceStats, now time.Time) float64 {
	if s.LastEventTime.IsZero() {
		return 0
	}
	staleness := now.Sub(s.LastEventTime)
	const window = 10 * time.Minute
	if staleness <= 0 {
		return 100
	}
	if staleness >= window {
		return 0
	}
	return (1 - staleness.Seconds()/window.Seconds()) * 100
}

// accuracyScore rewards low average latency, reusing the same bucketed
// scale telemetry applies to processing latency.
func accuracyScore(s SourceStats) float64 {
	switch {
	case s.AvgLatencyMs < 10:
		return 100
	case s.AvgLatencyMs < 50:
		return 80
	case s.AvgLatencyMs < 100:
		return 60
	case s.AvgLatencyMs < 500:
		return 40
	default:
		return 20
	}
}

// consistencyScore rewards a narrow spread of error types relative to
// total failures — many distinct error types for the same source suggests
// an unstable upstream rather than one well-understood failure mode.
func consistencyScore(s SourceStats) float64 {
	if s.Failed == 0 {
		return 100
	}
	distinctTypes := float64(len(s.ErrorTypes))
	if distinctTypes == 0 {
		distinctTypes = 1
	}
	ratio := distinctTypes / float64(s.Failed)
	score := 100 * (1 - ratio)
	if score < 0 {
		score = 0
	}
	return score
}
