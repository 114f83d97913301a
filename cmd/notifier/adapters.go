package main

import (
	"wanderer-notifier/internal/analytics"
	"wanderer-notifier/internal/dedup"
	"wanderer-notifier/internal/license"
	"wanderer-notifier/internal/model"
	"wanderer-notifier/internal/sse"
	"wanderer-notifier/internal/telemetry"
)

// featureGate adapts license.Gate's verdict to entities.FeatureGate.
type featureGate struct {
	gate *license.Gate
}

func (f featureGate) FeatureEnabled(name string) bool {
	return f.gate.Verdict().FeatureEnabled(name)
}

// dispatchRecorder feeds C9's delivery outcomes into the event-analytics
// collector (C11), under the "dispatch" source.
type dispatchRecorder struct {
	an *analytics.Analytics
}

func (d dispatchRecorder) RecordDispatchOutcome(kind model.NotificationKind, success bool) {
	d.an.Record(analytics.Event{
		Source:  "dispatch:" + string(kind),
		Success: success,
	})
}

// killmailRecorder feeds C8's per-killmail skip/dispatch outcomes into C11,
// under the "killmail" source, with the skip reason as the error type.
type killmailRecorder struct {
	an *analytics.Analytics
}

func (k killmailRecorder) RecordKillmailOutcome(killmailID uint64, status, reason string) {
	k.an.Record(analytics.Event{
		Source:    "killmail",
		Success:   status == "dispatched",
		ErrorType: reason,
	})
}

// eventRecorder feeds C7's per-event processing outcomes (every system/
// character event the SSE router hands to the handlers) into C11, under a
// source named for the event category.
type eventRecorder struct {
	an *analytics.Analytics
}

func (e eventRecorder) RecordEventProcessed(source string, success bool) {
	e.an.Record(analytics.Event{
		Source:  "event:" + source,
		Success: success,
	})
}

// processingSource adapts C11's cross-source totals to
// telemetry.ProcessingSource, giving C10's highest-weighted sub-score
// (processing, 0.4) real data instead of the nil zero-value it previously
// reported as a perfect score.
type processingSource struct {
	an *analytics.Analytics
}

func (p processingSource) ProcessingStats() telemetry.ProcessingStats {
	total, successful, failed, avgLatency, activeBuckets := p.an.Totals()

	var perSec float64
	if seconds := p.an.Window().Seconds(); seconds > 0 {
		perSec = float64(total) / seconds
	}

	return telemetry.ProcessingStats{
		EventsProcessed:  successful,
		EventsFailed:     failed,
		AvgProcessingMs:  avgLatency,
		EventsPerSec:     perSec,
		BatchesProcessed: activeBuckets,
	}
}

// connectionSource adapts sse.Router's connect/disconnect bookkeeping to
// telemetry.ConnectionSource. One map, one stream: Count is always 1.
type connectionSource struct {
	router *sse.Router
}

func (c connectionSource) ConnectionHealth() telemetry.ConnectionHealth {
	connected, uptimePct, _ := c.router.Health()
	healthy := 0
	if connected {
		healthy = 1
	}
	return telemetry.ConnectionHealth{
		Count:     1,
		Healthy:   healthy,
		UptimePct: uptimePct,
	}
}

// dedupSource adapts dedup.Deduplicator's lifetime counters to
// telemetry.DedupSource.
type dedupSource struct {
	dd *dedup.Deduplicator
}

func (d dedupSource) DedupStats() telemetry.DedupStats {
	total, duplicates := d.dd.Observed()
	return telemetry.DedupStats{
		Total:      total,
		Duplicates: duplicates,
		Strategy:   "fingerprint",
	}
}
