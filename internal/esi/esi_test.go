package esi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderer-notifier/internal/cache"
	"wanderer-notifier/internal/errs"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(Config{
		BaseURL:   server.URL,
		MaxRetries: 2,
		RateLimit: 1000,
		RateBurst: 1000,
	}, cache.New())
	return c, server
}

func TestGetCharacterSuccessAndMemoisation(t *testing.T) {
	var hits int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"name": "Some Pilot"})
	})

	ctx := context.Background()
	result, err := c.GetCharacter(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "Some Pilot", result["name"])

	_, err = c.GetCharacter(ctx, 12345)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second call must be served from cache")
}

func TestGetSystemNotFoundIsSystemNotFound(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetSystem(context.Background(), 30000999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSystemNotFound))
}

func TestRetryOn5xxThenSucceed(t *testing.T) {
	var attempts int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	result, err := c.GetCorporation(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestRateLimitHeadersTracked(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ESI-Error-Limit-Remain", "5")
		w.Header().Set("X-ESI-Error-Limit-Reset", "60")
		w.Header().Set("X-ESI-Error-Limit-Window", "60")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	_, err := c.GetAlliance(context.Background(), 1)
	require.NoError(t, err)

	err = c.CheckErrorLimits()
	assert.Error(t, err, "low remaining budget should surface a warning error")
}

func TestErrorsNeverCached(t *testing.T) {
	var attempts int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	_, err1 := c.GetType(ctx, 1)
	require.Error(t, err1)
	_, err2 := c.GetType(ctx, 1)
	require.Error(t, err2)

	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts), "errors must never be memoised")
}

func TestFetchDeadlineRespected(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.GetCharacter(ctx, 1)
	require.Error(t, err)
}
