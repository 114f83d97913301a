package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSummarise(t *testing.T) {
	a := New(time.Minute, time.Hour)
	base := time.Now()

	a.Record(Event{Source: "map-sse", Success: true, LatencyMs: 5, At: base})
	a.Record(Event{Source: "map-sse", Success: false, ErrorType: "timeout", LatencyMs: 200, At: base.Add(time.Second)})

	summary, ok := a.SourceSummary("map-sse")
	require.True(t, ok)
	assert.Equal(t, int64(2), summary.Total)
	assert.Equal(t, int64(1), summary.Successful)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(1), summary.ErrorTypes["timeout"])
}

func TestLatencySamplesCapped(t *testing.T) {
	a := New(time.Minute, time.Hour)
	base := time.Now()
	for i := 0; i < maxLatencySamples+20; i++ {
		a.Record(Event{Source: "zkb", Success: true, LatencyMs: float64(i), At: base})
	}
	summary, ok := a.SourceSummary("zkb")
	require.True(t, ok)
	assert.LessOrEqual(t, len(summary.LatencySamples), maxLatencySamples)
}

func TestPatternDetectionAboveThreshold(t *testing.T) {
	a := New(time.Minute, time.Hour)
	base := time.Now()
	for i := 0; i < 10; i++ {
		a.Record(Event{Source: "map-sse", Success: true, At: base.Add(time.Duration(i) * time.Second)})
	}
	patterns := a.DetectPatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "map-sse", patterns[0].Type)
	assert.Greater(t, patterns[0].FrequencyPerMin, 1.0)
}

func TestPatternBelowThresholdNotReported(t *testing.T) {
	a := New(time.Minute, time.Hour)
	a.Record(Event{Source: "rare-source", Success: true, At: time.Now()})
	patterns := a.DetectPatterns()
	assert.Empty(t, patterns)
}

func TestCleanupPrunesOldBuckets(t *testing.T) {
	a := New(time.Minute, time.Hour)
	old := time.Now().Add(-2 * time.Hour)
	a.Record(Event{Source: "stale", Success: true, At: old})
	a.cleanup()

	_, ok := a.SourceSummary("stale")
	assert.False(t, ok, "buckets older than the window must be pruned")
}

func TestQualityScoreDegradesWithFailures(t *testing.T) {
	healthy := SourceStats{Total: 100, Successful: 100, LastEventTime: time.Now(), AvgLatencyMs: 5}
	unhealthy := SourceStats{Total: 100, Successful: 50, Failed: 50, ErrorTypes: map[string]int64{"a": 50}, LastEventTime: time.Now(), AvgLatencyMs: 600}

	assert.Greater(t, quality(healthy, time.Now()), quality(unhealthy, time.Now()))
}
