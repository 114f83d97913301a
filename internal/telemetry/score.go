package telemetry

// timeScore buckets a millisecond duration per spec.md §8's exact table.
func timeScore(ms float64) float64 {
	switch {
	case ms < 10:
		return 100
	case ms < 50:
		return 80
	case ms < 100:
		return 60
	case ms < 500:
		return 40
	default:
		return 20
	}
}

// dedupScore buckets a duplicate-rate percentage per spec.md §8.
func dedupScore(ratePct float64) float64 {
	switch {
	case ratePct < 1:
		return 100
	case ratePct < 5:
		return 90
	case ratePct < 10:
		return 80
	case ratePct < 20:
		return 70
	default:
		return 50
	}
}

// memoryScore buckets resident memory in GB per spec.md §8.
func memoryScore(gb float64) float64 {
	switch {
	case gb < 0.5:
		return 100
	case gb < 1:
		return 80
	case gb < 2:
		return 60
	default:
		return 40
	}
}

// processScore buckets a goroutine/thread count per spec.md §8.
func processScore(count int) float64 {
	switch {
	case count < 100:
		return 100
	case count < 500:
		return 80
	case count < 1000:
		return 60
	default:
		return 40
	}
}

// connectionScore blends healthy-stream fraction with reported uptime.
func connectionScore(c ConnectionHealth) float64 {
	if c.Count == 0 {
		return 100 // no streams configured yet is not unhealthy
	}
	healthyFraction := float64(c.Healthy) / float64(c.Count) * 100
	return healthyFraction*0.7 + c.UptimePct*0.3
}

// processingScore blends processed-event latency against the success rate.
func processingScore(p ProcessingStats) float64 {
	total := p.EventsProcessed + p.EventsFailed
	successRate := 100.0
	if total > 0 {
		successRate = float64(p.EventsProcessed) / float64(total) * 100
	}
	return timeScore(p.AvgProcessingMs)*0.5 + successRate*0.5
}

// systemScore averages the memory and process sub-scores.
func systemScore(s SystemStats) float64 {
	gb := float64(s.ResidentMemoryBytes) / (1024 * 1024 * 1024)
	return (memoryScore(gb) + processScore(s.ThreadCount)) / 2
}

// score computes the overall weighted health score, per spec.md §4.10:
// 0.3·connection + 0.4·processing + 0.2·dedup + 0.1·system.
func score(s Sample) float64 {
	return 0.3*connectionScore(s.Connection) +
		0.4*processingScore(s.Processing) +
		0.2*dedupScore(s.Dedup.rate()) +
		0.1*systemScore(s.System)
}
