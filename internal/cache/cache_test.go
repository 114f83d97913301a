package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPutDelete(t *testing.T) {
	c := New()

	_, ok := c.Get("k")
	require.False(t, ok)

	c.Put("k", 42, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New()
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.Put("k", "v", 10*time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.now = func() time.Time { return fixed.Add(20 * time.Millisecond) }
	_, ok = c.Get("k")
	require.False(t, ok, "expired entries behave as absent")
}

func TestPrune(t *testing.T) {
	c := New()
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.Put("short", "v", 1*time.Millisecond)
	c.Put("long", "v", time.Hour)

	c.now = func() time.Time { return fixed.Add(time.Second) }
	removed := c.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

// TestGetAndUpdateSerializesSameKey exercises the atomicity contract that
// the dual-index registry depends on: N goroutines incrementing a counter
// stored at the same key must never lose an update.
func TestGetAndUpdateSerializesSameKey(t *testing.T) {
	c := New()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.GetAndUpdate("counter", 0, func(current any, present bool) (any, bool, any) {
				count := 0
				if present {
					count = current.(int)
				}
				return count + 1, true, nil
			})
		}()
	}
	wg.Wait()

	v, ok := c.Get("counter")
	require.True(t, ok)
	assert.Equal(t, n, v)
}

func TestGetAndUpdateReturnValue(t *testing.T) {
	c := New()

	ret := c.GetAndUpdate("k", 0, func(current any, present bool) (any, bool, any) {
		if present {
			return current, false, "existed"
		}
		return "new-value", true, "created"
	})
	assert.Equal(t, "created", ret)

	ret = c.GetAndUpdate("k", 0, func(current any, present bool) (any, bool, any) {
		if present {
			return current, false, "existed"
		}
		return "new-value", true, "created"
	})
	assert.Equal(t, "existed", ret)
}
