package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownWaitsForTasks(t *testing.T) {
	c := New(time.Second)
	var finished int32

	ctx, cancel := context.WithCancel(context.Background())
	c.Go("worker", func() {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})

	cancel()
	c.Shutdown()

	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestShutdownTimesOutOnSlowTask(t *testing.T) {
	c := New(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	c.Go("slow", func() {
		<-ctx.Done()
		time.Sleep(time.Second)
	})

	start := time.Now()
	cancel()
	c.Shutdown()
	assert.Less(t, time.Since(start), 500*time.Millisecond, "Shutdown must return at the grace window, not wait for the slow task")
}

func TestTaskPanicDoesNotHangShutdown(t *testing.T) {
	c := New(time.Second)
	c.Go("panics", func() {
		panic("boom")
	})
	c.Shutdown()
}
