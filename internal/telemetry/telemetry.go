// Package telemetry implements the Telemetry Collector (C10): a
// cron-scheduled sampler over C1-C9's health signals, aggregated into a
// single weighted score with bounded history. Grounded on the teacher's
// scheduler.Engine (github.com/robfig/cron/v3, its stats struct and
// ServiceState-style running flag) adapted from a generic task engine to a
// fixed single-job sampler.
package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ConnectionHealth summarises SSE stream connectivity.
type ConnectionHealth struct {
	Count      int
	Healthy    int
	AvgPingMs  float64
	UptimePct  float64
}

// ProcessingStats summarises the killmail/SSE event pipeline's throughput.
type ProcessingStats struct {
	EventsProcessed  int64
	EventsFailed     int64
	AvgProcessingMs  float64
	EventsPerSec     float64
	BatchesProcessed int64
}

// DedupStats summarises the deduplicator's hit rate.
type DedupStats struct {
	Total      int64
	Duplicates int64
	Strategy   string
}

func (d DedupStats) rate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Duplicates) / float64(d.Total) * 100
}

// SystemStats summarises process-level resource usage, read directly from
// the Go runtime rather than a collaborator (spec.md §4.10 "resident
// memory, process/thread count").
type SystemStats struct {
	ResidentMemoryBytes uint64
	ProcessCount        int
	ThreadCount         int
}

func readSystemStats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemStats{
		ResidentMemoryBytes: m.Sys,
		ProcessCount:        1,
		ThreadCount:         runtime.NumGoroutine(),
	}
}

// ConnectionSource, ProcessingSource and DedupSource are the collaborator
// surfaces the Collector samples every collection_interval. Each is
// optional; a nil source leaves its stats at the zero value, which the
// score functions rate as 100 for that dimension.
type ConnectionSource interface {
	ConnectionHealth() ConnectionHealth
}

type ProcessingSource interface {
	ProcessingStats() ProcessingStats
}

type DedupSource interface {
	DedupStats() DedupStats
}

// Sample is one collection_interval's snapshot, per spec.md §4.10.
type Sample struct {
	Timestamp  time.Time
	Connection ConnectionHealth
	Processing ProcessingStats
	Dedup      DedupStats
	System     SystemStats
	Score      float64
}

// Collector periodically samples its sources and maintains bounded,
// retention-windowed history.
type Collector struct {
	connection ConnectionSource
	processing ProcessingSource
	dedup      DedupSource

	retention time.Duration
	interval  time.Duration

	mu         sync.RWMutex
	history    []Sample
	errorCount int64

	cron *cron.Cron
}

const maxHistorySamples = 500

// New builds a Collector. interval is collection_interval (default 30s),
// retention is retention_period (default 24h).
func New(conn ConnectionSource, proc ProcessingSource, dd DedupSource, interval, retention time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Collector{
		connection: conn,
		processing: proc,
		dedup:      dd,
		interval:   interval,
		retention:  retention,
		cron:       cron.New(),
	}
}

// Run schedules the sampler and blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	spec := "@every " + c.interval.String()
	if _, err := c.cron.AddFunc(spec, func() { c.sampleOnce() }); err != nil {
		return err
	}
	c.cron.Start()
	defer c.cron.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// sampleOnce runs one collection cycle. A panic or sampling error never
// stops subsequent cycles — only the error counter is incremented, per
// spec.md §4.10 "on sampling error, increment an error counter and continue".
func (c *Collector) sampleOnce() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telemetry: sample panicked", "recover", r)
			c.mu.Lock()
			c.errorCount++
			c.mu.Unlock()
		}
	}()

	sample := Sample{Timestamp: time.Now(), System: readSystemStats()}
	if c.connection != nil {
		sample.Connection = c.connection.ConnectionHealth()
	}
	if c.processing != nil {
		sample.Processing = c.processing.ProcessingStats()
	}
	if c.dedup != nil {
		sample.Dedup = c.dedup.DedupStats()
	}
	sample.Score = score(sample)

	c.mu.Lock()
	c.history = append(c.history, sample)
	c.pruneLocked()
	c.mu.Unlock()
}

// pruneLocked drops samples outside the retention window and enforces the
// 500-sample hard cap. Caller must hold c.mu.
func (c *Collector) pruneLocked() {
	cutoff := time.Now().Add(-c.retention)
	i := 0
	for ; i < len(c.history); i++ {
		if c.history[i].Timestamp.After(cutoff) {
			break
		}
	}
	c.history = c.history[i:]

	if len(c.history) > maxHistorySamples {
		c.history = c.history[len(c.history)-maxHistorySamples:]
	}
}

// Latest returns the most recent sample, if any.
func (c *Collector) Latest() (Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.history) == 0 {
		return Sample{}, false
	}
	return c.history[len(c.history)-1], true
}

// ErrorCount returns the cumulative sampling-error count.
func (c *Collector) ErrorCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorCount
}

// Aggregate produces the {time_range, sample_count, avg_score, totals,
// averages} summary over the last window (default aggregation_window, 5m).
type Aggregate struct {
	From, To    time.Time
	SampleCount int
	AvgScore    float64
	Totals      ProcessingStats
	Averages    struct {
		ConnectionHealthy float64
		ProcessingMs      float64
		DedupRate         float64
	}
}

func (c *Collector) Aggregate(window time.Duration) Aggregate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var agg Aggregate
	agg.To = time.Now()
	agg.From = cutoff

	var scoreSum, connSum, procMsSum, dedupRateSum float64
	for _, s := range c.history {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		agg.SampleCount++
		scoreSum += s.Score
		connSum += float64(s.Connection.Healthy)
		procMsSum += s.Processing.AvgProcessingMs
		dedupRateSum += s.Dedup.rate()

		agg.Totals.EventsProcessed += s.Processing.EventsProcessed
		agg.Totals.EventsFailed += s.Processing.EventsFailed
		agg.Totals.BatchesProcessed += s.Processing.BatchesProcessed
	}
	if agg.SampleCount > 0 {
		n := float64(agg.SampleCount)
		agg.AvgScore = scoreSum / n
		agg.Averages.ConnectionHealthy = connSum / n
		agg.Averages.ProcessingMs = procMsSum / n
		agg.Averages.DedupRate = dedupRateSum / n
	}
	return agg
}
