package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderer-notifier/internal/errs"
)

func runGate(t *testing.T, g *Gate) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	return cancel
}

func TestDevModeSelfReportsValid(t *testing.T) {
	g := New("", "", "", time.Hour, true)
	cancel := runGate(t, g)
	defer cancel()

	v := g.Verdict()
	assert.Equal(t, Valid, v.State)
	assert.True(t, v.BotAssigned)
	assert.True(t, v.FeatureEnabled("notifications"))
}

func TestForceRevalidateValidBotAssigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid": true, "bot_assigned": true, "features": []string{"notifications"},
		})
	}))
	defer server.Close()

	g := New(server.URL, "key", "", time.Hour, false)
	cancel := runGate(t, g)
	defer cancel()

	v := g.ForceRevalidate()
	assert.Equal(t, Valid, v.State)
	assert.True(t, v.BotAssigned)
	assert.True(t, v.FeatureEnabled("notifications"))
}

func TestForceRevalidatePartialValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true, "bot_assigned": false})
	}))
	defer server.Close()

	g := New(server.URL, "key", "", time.Hour, false)
	cancel := runGate(t, g)
	defer cancel()

	v := g.ForceRevalidate()
	assert.Equal(t, PartialValid, v.State)
}

func TestRateLimitFreezesPreviousVerdict(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"valid": true, "bot_assigned": true, "features": []string{"notifications"},
			})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := New(server.URL, "key", "", time.Hour, false)
	cancel := runGate(t, g)
	defer cancel()

	first := g.ForceRevalidate()
	require.Equal(t, Valid, first.State)

	second := g.ForceRevalidate()
	assert.Equal(t, Frozen, second.State)
	assert.Equal(t, first.BotAssigned, second.BotAssigned)
	assert.ErrorIs(t, second.Err, errs.ErrRateLimited)
}

func TestCountersSurviveTransitions(t *testing.T) {
	g := New("", "", "", time.Hour, true)
	cancel := runGate(t, g)
	defer cancel()

	g.IncrementCounter("system")
	g.IncrementCounter("system")
	g.IncrementCounter("killmail")

	g.ForceRevalidate()

	assert.Equal(t, 2, g.counters.System)
	assert.Equal(t, 1, g.counters.Killmail)
}
