// Package notify implements the Notification Dispatcher (C9): the single
// egress toward chat webhooks, routing per-channel by notification kind
// through a bounded queue with backpressure. The actual HTTP delivery is
// behind the WebhookTransport interface (spec.md §1 scopes the
// chat-webhook transport itself as an external collaborator) — two
// concrete transports are provided: a generic Discord-embed-schema JSON
// transport (the wire format spec.md §6 names) and a Slack transport
// grounded on wisbric-nightowl's pkg/slack/notifier.go, demonstrating the
// interface's pluggability.
package notify

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"wanderer-notifier/internal/errs"
	"wanderer-notifier/internal/model"
)

// WebhookTransport delivers one formatted notification to a concrete chat
// backend for the given channel id.
type WebhookTransport interface {
	Send(ctx context.Context, channelID string, n model.Notification) error
}

// ChannelIDs maps a notification kind to its destination channel id.
type ChannelIDs struct {
	System    string
	Character string
	Kill      string
	Rally     string
	Status    string
}

func (c ChannelIDs) forKind(kind model.NotificationKind) string {
	switch kind {
	case model.KindSystem:
		return c.System
	case model.KindCharacter:
		return c.Character
	case model.KindKill:
		return c.Kill
	case model.KindRally:
		return c.Rally
	case model.KindStatus:
		return c.Status
	default:
		return ""
	}
}

// OutcomeRecorder lets C10 observe sustained dispatch failures (spec.md
// §4.9: "records the outcome under the fingerprint and surfaces to C10").
type OutcomeRecorder interface {
	RecordDispatchOutcome(kind model.NotificationKind, success bool)
}

// Dispatcher is the bounded-queue egress. Construct with New and call Run in
// its own goroutine.
type Dispatcher struct {
	transport WebhookTransport
	channels  ChannelIDs
	recorder  OutcomeRecorder
	queue     chan model.Notification
	maxRetries int
}

// New builds a Dispatcher with a bounded queue of size queueSize (spec.md
// default 500).
func New(transport WebhookTransport, channels ChannelIDs, recorder OutcomeRecorder, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 500
	}
	return &Dispatcher{
		transport:  transport,
		channels:   channels,
		recorder:   recorder,
		queue:      make(chan model.Notification, queueSize),
		maxRetries: 2,
	}
}

// Notify enqueues n for delivery. On a full queue it returns
// errs.ErrBackpressure immediately rather than blocking the producer.
func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		return errs.ErrBackpressure
	}
}

// Run drains the queue until ctx is cancelled, delivering each notification
// with jittered exponential backoff retry (≤3 attempts per spec.md §4.9).
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.Background())
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

// drain flushes whatever remains in the queue within a bounded window once
// shutdown begins, per spec.md §5's graceful-drain policy.
func (d *Dispatcher) drain(ctx context.Context) {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		case <-deadline:
			return
		default:
			if len(d.queue) == 0 {
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	channelID := d.channels.forKind(n.Kind)
	if channelID == "" {
		slog.Warn("notify: no channel configured for kind", "kind", n.Kind)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		err := d.transport.Send(ctx, channelID, n)
		if err == nil {
			if d.recorder != nil {
				d.recorder.RecordDispatchOutcome(n.Kind, true)
			}
			return
		}
		lastErr = err

		if attempt == d.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = d.maxRetries
		case <-time.After(jitteredBackoff(attempt)):
		}
	}

	slog.Error("notify: dispatch failed after retries", "kind", n.Kind, "error", lastErr)
	if d.recorder != nil {
		d.recorder.RecordDispatchOutcome(n.Kind, false)
	}
}

func jitteredBackoff(attempt int) time.Duration {
	base := 200 * time.Millisecond
	max := base << uint(attempt)
	if max > 10*time.Second {
		max = 10 * time.Second
	}
	return time.Duration(rand.Int63n(int64(max)))
}
