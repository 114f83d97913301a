package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderer-notifier/internal/errs"
	"wanderer-notifier/internal/model"
)

var errTransportFailure = errors.New("transport failure")

type stubTransport struct {
	mu       sync.Mutex
	sent     []model.Notification
	failN    int
	attempts int
}

func (s *stubTransport) Send(ctx context.Context, channelID string, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failN {
		return errTransportFailure
	}
	s.sent = append(s.sent, n)
	return nil
}

type stubRecorder struct {
	mu      sync.Mutex
	results []bool
}

func (s *stubRecorder) RecordDispatchOutcome(kind model.NotificationKind, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, success)
}

func TestNotifyRejectsOnFullQueue(t *testing.T) {
	d := New(&stubTransport{}, ChannelIDs{System: "c1"}, nil, 1)
	// fill the queue without a consumer running
	require.NoError(t, d.Notify(context.Background(), model.Notification{Kind: model.KindSystem}))
	err := d.Notify(context.Background(), model.Notification{Kind: model.KindSystem})
	assert.ErrorIs(t, err, errs.ErrBackpressure)
}

func TestDispatcherDeliversToConfiguredChannel(t *testing.T) {
	transport := &stubTransport{}
	recorder := &stubRecorder{}
	d := New(transport, ChannelIDs{System: "chan-system"}, recorder, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	require.NoError(t, d.Notify(ctx, model.Notification{Kind: model.KindSystem, Content: "hi"}))

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.sent) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherRetriesOnTransientFailure(t *testing.T) {
	transport := &stubTransport{failN: 2}
	d := New(transport, ChannelIDs{Kill: "chan-kill"}, nil, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	require.NoError(t, d.Notify(ctx, model.Notification{Kind: model.KindKill}))

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherUnroutableKindIsDropped(t *testing.T) {
	transport := &stubTransport{}
	d := New(transport, ChannelIDs{}, nil, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, d.Notify(ctx, model.Notification{Kind: model.KindRally}))
	time.Sleep(50 * time.Millisecond)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Empty(t, transport.sent)
}
