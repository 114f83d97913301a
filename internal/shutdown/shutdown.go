// Package shutdown implements the graceful-drain coordination spec.md §5
// requires ("every task observes a shared shutdown signal and drains its
// bounded queue within a configurable grace window"). Grounded on the
// teacher's RedisQConsumer.Stop() (cancel → wg.Wait() race against a
// timeout), generalised from one consumer to an arbitrary set of
// registered long-lived tasks.
package shutdown

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Coordinator tracks every long-lived task so a single signal can cancel
// and drain all of them within a shared grace window.
type Coordinator struct {
	mu    sync.Mutex
	wg    sync.WaitGroup
	grace time.Duration
}

// New builds a Coordinator with the given drain grace window.
func New(grace time.Duration) *Coordinator {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Coordinator{grace: grace}
}

// Go runs fn in its own goroutine, registered with the Coordinator's
// wait-group so Shutdown can block on its completion.
func (c *Coordinator) Go(name string, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("shutdown: task panicked", "task", name, "recover", r)
			}
		}()
		fn()
	}()
}

// Shutdown waits up to the grace window for every registered task to finish
// draining, logging whether they all finished in time. It does not cancel
// anything itself: the caller cancels the context threaded into every task
// before calling it.
func (c *Coordinator) Shutdown() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("shutdown: all tasks drained")
	case <-time.After(c.grace):
		slog.Warn("shutdown: grace window elapsed before all tasks drained")
	}
}

// Run is a convenience that cancels cancel once sigCtx is done, then calls
// Shutdown. Callers build sigCtx with signal.NotifyContext and pass the
// matching cancel func for the context threaded into every registered task.
func Run(sigCtx context.Context, cancel context.CancelFunc, c *Coordinator) {
	<-sigCtx.Done()
	slog.Info("shutdown: signal received, draining")
	cancel()
	c.Shutdown()
}
