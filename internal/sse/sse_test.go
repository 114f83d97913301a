package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderer-notifier/internal/model"
)

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
}

func TestRouterDispatchesValidEvent(t *testing.T) {
	events := []string{
		`{"id":"01ARZ3NDEKTSV4RRFFQ69G5FAV","type":"add_system","map_id":"11111111-1111-1111-1111-111111111111","timestamp":"2026-01-01T00:00:00Z","payload":{"solar_system_id":31000001}}`,
	}
	server := sseServer(t, events)
	defer server.Close()

	var mu sync.Mutex
	var seen []model.Event

	r := NewRouter(server.URL, "map-1", http.DefaultClient)
	r.On(model.CategorySystem, func(ctx context.Context, ev model.Event) (HandleResult, error) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
		return Ok, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "add_system", seen[0].Type)
}

func TestRouterDropsUnknownTypeWithoutBreakingStream(t *testing.T) {
	events := []string{
		`{"id":"01ARZ3NDEKTSV4RRFFQ69G5FAV","type":"totally_unknown","map_id":"m","timestamp":"2026-01-01T00:00:00Z","payload":{"x":1}}`,
		`{"id":"01ARZ3NDEKTSV4RRFFQ69G5FAW","type":"add_system","map_id":"m","timestamp":"2026-01-01T00:00:00Z","payload":{"solar_system_id":31000001}}`,
	}
	server := sseServer(t, events)
	defer server.Close()

	var mu sync.Mutex
	count := 0

	r := NewRouter(server.URL, "map-1", http.DefaultClient)
	r.On(model.CategorySystem, func(ctx context.Context, ev model.Event) (HandleResult, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return Ok, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "only the known-type event should reach a handler")
}

func TestValidateEventRejectsEmptyPayload(t *testing.T) {
	r := NewRouter("http://example.invalid", "m", http.DefaultClient)
	err := r.validateEvent(model.Event{
		ID: "1", Type: "add_system", MapID: "m", Timestamp: time.Now(), Payload: map[string]any{},
	})
	assert.Error(t, err)
}

func TestValidateEventRejectsMissingFields(t *testing.T) {
	r := NewRouter("http://example.invalid", "m", http.DefaultClient)
	err := r.validateEvent(model.Event{Type: "add_system", Payload: map[string]any{"a": 1}})
	assert.Error(t, err)
}
