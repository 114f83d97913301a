package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct{ h ConnectionHealth }

func (s stubConn) ConnectionHealth() ConnectionHealth { return s.h }

type stubProc struct{ p ProcessingStats }

func (s stubProc) ProcessingStats() ProcessingStats { return s.p }

type stubDedup struct{ d DedupStats }

func (s stubDedup) DedupStats() DedupStats { return s.d }

func TestTimeScoreBuckets(t *testing.T) {
	assert.Equal(t, 100.0, timeScore(5))
	assert.Equal(t, 80.0, timeScore(20))
	assert.Equal(t, 60.0, timeScore(75))
	assert.Equal(t, 40.0, timeScore(200))
	assert.Equal(t, 20.0, timeScore(5000))
}

func TestDedupScoreBuckets(t *testing.T) {
	assert.Equal(t, 100.0, dedupScore(0.5))
	assert.Equal(t, 90.0, dedupScore(3))
	assert.Equal(t, 50.0, dedupScore(50))
}

func TestCollectorSamplesAndScores(t *testing.T) {
	c := New(
		stubConn{ConnectionHealth{Count: 2, Healthy: 2, UptimePct: 100}},
		stubProc{ProcessingStats{EventsProcessed: 100, EventsFailed: 0, AvgProcessingMs: 5}},
		stubDedup{DedupStats{Total: 100, Duplicates: 1}},
		time.Second, time.Hour,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Greater(t, latest.Score, 80.0)
}

func TestAggregateOverWindow(t *testing.T) {
	c := New(nil, nil, nil, time.Hour, time.Hour)
	c.history = []Sample{
		{Timestamp: time.Now(), Score: 80},
		{Timestamp: time.Now(), Score: 90},
	}
	agg := c.Aggregate(time.Minute)
	assert.Equal(t, 2, agg.SampleCount)
	assert.InDelta(t, 85, agg.AvgScore, 0.01)
}

func TestHistoryCapEnforced(t *testing.T) {
	c := New(nil, nil, nil, time.Hour, 24*time.Hour)
	for i := 0; i < maxHistorySamples+10; i++ {
		c.history = append(c.history, Sample{Timestamp: time.Now()})
	}
	c.pruneLocked()
	assert.Len(t, c.history, maxHistorySamples)
}

type stubArmer struct{ armed string }

func (s *stubArmer) ArmSystem()    { s.armed = "system" }
func (s *stubArmer) ArmCharacter() { s.armed = "character" }

func TestRoutesHealthzAndMetrics(t *testing.T) {
	c := New(nil, nil, nil, time.Hour, time.Hour)
	armer := &stubArmer{}
	handler := Routes(c, armer, 5*time.Minute)
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	body, _ := json.Marshal(map[string]string{"mode": "system"})
	resp3, err := http.Post(server.URL+"/debug/override", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp3.StatusCode)
	assert.Equal(t, "system", armer.armed)
}
