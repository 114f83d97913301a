// Package dedup implements the single-use fingerprint check (C3). It sits
// directly on cache.Cache.GetAndUpdate to guarantee at-most-one :new result
// per (kind,id) fingerprint, per spec.md §4.3 and the open-question note in
// §9 ("only nil → :new, anything else → :duplicate" — no accidental
// "match any map" branch).
package dedup

import (
	"fmt"
	"sync/atomic"
	"time"

	"wanderer-notifier/internal/cache"
)

// Outcome is the result of a duplicate? check.
type Outcome int

const (
	New Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == New {
		return "new"
	}
	return "duplicate"
}

// Status is the optional {status, reason} recorded against a fingerprint by
// MarkKillStatus.
type Status struct {
	Status string
	Reason string
}

type record struct {
	status *Status
}

// Deduplicator checks and records single-use fingerprints in a shared Cache.
type Deduplicator struct {
	cache *cache.Cache
	ttl   time.Duration

	total      atomic.Int64
	duplicates atomic.Int64
}

// New builds a Deduplicator backed by c, with fingerprints expiring after ttl
// (spec.md default is 24h, config key dedup_ttl_seconds).
func New(c *cache.Cache, ttl time.Duration) *Deduplicator {
	return &Deduplicator{cache: c, ttl: ttl}
}

func fingerprint(kind, id string) string {
	return fmt.Sprintf("dedup:%s:%s", kind, id)
}

// Duplicate reports whether (kind,id) has already been observed within the
// TTL window. The first observation sets the fingerprint and returns New;
// every subsequent observation within the TTL returns Duplicate.
func (d *Deduplicator) Duplicate(kind, id string) Outcome {
	key := fingerprint(kind, id)
	ret := d.cache.GetAndUpdate(key, d.ttl, func(current any, present bool) (any, bool, any) {
		if present {
			return current, false, Duplicate
		}
		return record{}, true, New
	})
	d.total.Add(1)
	outcome := ret.(Outcome)
	if outcome == Duplicate {
		d.duplicates.Add(1)
	}
	return outcome
}

// Observed returns the lifetime total and duplicate counts, for C10's
// telemetry sample.
func (d *Deduplicator) Observed() (total, duplicates int64) {
	return d.total.Load(), d.duplicates.Load()
}

// MarkKillStatus records {status, reason} at the fingerprint for id under the
// "kill" kind, without affecting the New/Duplicate outcome already recorded.
func (d *Deduplicator) MarkKillStatus(id string, status, reason string) {
	key := fingerprint("kill", id)
	d.cache.GetAndUpdate(key, d.ttl, func(current any, present bool) (any, bool, any) {
		return record{status: &Status{Status: status, Reason: reason}}, true, nil
	})
}

// DuplicateWithStatus returns the recorded status for a kill fingerprint, if
// any was set via MarkKillStatus.
func (d *Deduplicator) DuplicateWithStatus(id string) (Status, bool) {
	key := fingerprint("kill", id)
	v, ok := d.cache.Get(key)
	if !ok {
		return Status{}, false
	}
	rec, ok := v.(record)
	if !ok || rec.status == nil {
		return Status{}, false
	}
	return *rec.status, true
}
