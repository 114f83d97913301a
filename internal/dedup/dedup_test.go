package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wanderer-notifier/internal/cache"
)

func TestDuplicateFirstObservationIsNew(t *testing.T) {
	d := New(cache.New(), time.Hour)
	assert.Equal(t, New, d.Duplicate("kill", "100"))
	assert.Equal(t, Duplicate, d.Duplicate("kill", "100"))
	assert.Equal(t, Duplicate, d.Duplicate("kill", "100"))
}

func TestDuplicateIndependentFingerprints(t *testing.T) {
	d := New(cache.New(), time.Hour)
	assert.Equal(t, New, d.Duplicate("kill", "1"))
	assert.Equal(t, New, d.Duplicate("kill", "2"))
	assert.Equal(t, New, d.Duplicate("system", "1"))
}

// TestAtMostOneNew is the property test from spec.md §8.2: across repeated
// concurrent observations of the same fingerprint, at most one returns New.
func TestAtMostOneNew(t *testing.T) {
	d := New(cache.New(), time.Hour)

	const n = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	newCount := 0

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if d.Duplicate("kill", "42") == New {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount)
}

func TestMarkAndRetrieveKillStatus(t *testing.T) {
	d := New(cache.New(), time.Hour)
	d.Duplicate("kill", "7")
	d.MarkKillStatus("7", "skipped", "duplicate")

	status, ok := d.DuplicateWithStatus("7")
	assert.True(t, ok)
	assert.Equal(t, "skipped", status.Status)
	assert.Equal(t, "duplicate", status.Reason)
}

func TestDuplicateWithStatusMissing(t *testing.T) {
	d := New(cache.New(), time.Hour)
	_, ok := d.DuplicateWithStatus("nope")
	assert.False(t, ok)
}
