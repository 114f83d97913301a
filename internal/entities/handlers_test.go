package entities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderer-notifier/internal/cache"
	"wanderer-notifier/internal/dedup"
	"wanderer-notifier/internal/model"
	"wanderer-notifier/internal/registry"
)

type stubNotifier struct {
	calls []model.Notification
}

func (s *stubNotifier) Notify(ctx context.Context, n model.Notification) error {
	s.calls = append(s.calls, n)
	return nil
}

type stubFeatures struct{ enabled bool }

func (s stubFeatures) FeatureEnabled(name string) bool { return s.enabled }

type stubEventRecorder struct {
	calls []struct {
		source  string
		success bool
	}
}

func (s *stubEventRecorder) RecordEventProcessed(source string, success bool) {
	s.calls = append(s.calls, struct {
		source  string
		success bool
	}{source, success})
}

func newTestHandlers(suppression time.Duration, featuresEnabled bool) (*Handlers, *stubNotifier, *registry.Registry) {
	c := cache.New()
	reg := registry.New(c)
	dd := dedup.New(c, time.Hour)
	notifier := &stubNotifier{}
	h := New(reg, dd, notifier, stubFeatures{enabled: featuresEnabled}, nil, suppression)
	return h, notifier, reg
}

func TestAddSystemFirstRunGuardSuppressesNotification(t *testing.T) {
	// suppression window already elapsed, but the collection is empty at
	// read time (initial sync) so no notification should fire.
	h, notifier, _ := newTestHandlers(0, true)

	_, err := h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "add_system",
		Payload: map[string]any{"solar_system_id": float64(31000001), "name": "J123456"},
	})
	require.NoError(t, err)
	assert.Empty(t, notifier.calls, "first-run guard must suppress even post-suppression-window")
}

func TestAddSystemNotifiesAfterSuppressionWhenNotFirstRun(t *testing.T) {
	h, notifier, reg := newTestHandlers(0, true)
	// seed the collection so it is non-empty at the next add's read time
	reg.AddSystem(model.TrackedSystem{SolarSystemID: 1, Name: "seed"})

	_, err := h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "add_system",
		Payload: map[string]any{"solar_system_id": float64(31000001), "name": "J123456"},
	})
	require.NoError(t, err)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, model.KindSystem, notifier.calls[0].Kind)
}

func TestAddSystemSuppressedDuringStartupWindow(t *testing.T) {
	h, notifier, reg := newTestHandlers(time.Hour, true)
	reg.AddSystem(model.TrackedSystem{SolarSystemID: 1, Name: "seed"})

	_, err := h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "add_system",
		Payload: map[string]any{"solar_system_id": float64(31000002), "name": "J999999"},
	})
	require.NoError(t, err)
	assert.Empty(t, notifier.calls)
}

func TestAddSystemIdempotentNoDoubleNotify(t *testing.T) {
	h, notifier, reg := newTestHandlers(0, true)
	reg.AddSystem(model.TrackedSystem{SolarSystemID: 1, Name: "seed"})

	ev := model.Event{Type: "add_system", Payload: map[string]any{"solar_system_id": float64(31000001), "name": "J123456"}}
	h.HandleSystemEvent(context.Background(), ev)
	h.HandleSystemEvent(context.Background(), ev)

	assert.Len(t, notifier.calls, 1, "adding the same system twice must notify at most once")
}

func TestNotificationsDisabledFeatureSuppresses(t *testing.T) {
	h, notifier, reg := newTestHandlers(0, false)
	reg.AddSystem(model.TrackedSystem{SolarSystemID: 1, Name: "seed"})

	h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "add_system",
		Payload: map[string]any{"solar_system_id": float64(31000001), "name": "J123456"},
	})
	assert.Empty(t, notifier.calls)
}

func TestRemoveSystemClearsRegistry(t *testing.T) {
	h, _, reg := newTestHandlers(0, true)
	reg.AddSystem(model.TrackedSystem{SolarSystemID: 31000001, Name: "J123456"})

	_, err := h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "deleted_system",
		Payload: map[string]any{"solar_system_id": float64(31000001)},
	})
	require.NoError(t, err)
	assert.False(t, reg.IsTrackedSystem(31000001))
}

func TestEventRecorderObservesProcessedEvents(t *testing.T) {
	c := cache.New()
	reg := registry.New(c)
	dd := dedup.New(c, time.Hour)
	recorder := &stubEventRecorder{}
	h := New(reg, dd, &stubNotifier{}, stubFeatures{enabled: true}, recorder, 0)

	_, err := h.HandleSystemEvent(context.Background(), model.Event{
		Type:    "add_system",
		Payload: map[string]any{"solar_system_id": float64(31000001), "name": "J123456"},
	})
	require.NoError(t, err)

	_, err = h.HandleCharacterEvent(context.Background(), model.Event{
		Type:    "character_added",
		Payload: map[string]any{"eve_id": float64(123), "name": "Pilot"},
	})
	require.NoError(t, err)

	require.Len(t, recorder.calls, 2)
	assert.Equal(t, "system", recorder.calls[0].source)
	assert.True(t, recorder.calls[0].success)
	assert.Equal(t, "character", recorder.calls[1].source)
	assert.True(t, recorder.calls[1].success)
}
