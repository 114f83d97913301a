// Package sse implements the SSE Event Router (C6): a single-threaded,
// cooperative consumer of one event stream per map. It is grounded on the
// reconnect-with-backoff, Last-Event-ID resume and raw bufio.Scanner
// field:value parsing pattern in other_examples' Trading-app SSE client,
// adapted to spec.md §4.6's validate→categorise→route→log pipeline and
// typed Event envelope (internal/model).
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"wanderer-notifier/internal/errs"
	"wanderer-notifier/internal/model"
)

// HandleResult is what a Handler returns: ok, a logged-but-non-fatal error,
// or ignored (unknown/reserved type).
type HandleResult int

const (
	Ok HandleResult = iota
	HandledError
	Ignored
)

// Handler processes one categorised event. Any error is logged with context
// but never aborts the router.
type Handler func(ctx context.Context, ev model.Event) (HandleResult, error)

// Router consumes a single SSE stream and dispatches to per-category
// handlers. One Router per map; no parallelism within a stream.
type Router struct {
	url         string
	mapID       string
	httpClient  *http.Client
	validate    *validator.Validate
	handlers    map[model.EventCategory]Handler
	lastEventID string

	onUnknown func(eventType string)

	health healthState
}

// healthState tracks connect/disconnect transitions so C10's telemetry
// collector can report stream uptime without the router depending on the
// telemetry package.
type healthState struct {
	mu             sync.Mutex
	startedAt      time.Time
	connected      bool
	connectedSince time.Time
	connectedTotal time.Duration
	lastEventAt    time.Time
}

func (h *healthState) markConnected(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() {
		h.startedAt = now
	}
	h.connected = true
	h.connectedSince = now
}

func (h *healthState) markDisconnected(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connected {
		h.connectedTotal += now.Sub(h.connectedSince)
	}
	h.connected = false
}

func (h *healthState) markEvent(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEventAt = now
}

// Snapshot reports whether the stream is currently connected, the fraction
// of wall-clock time since startup spent connected, and the time of the last
// event observed.
func (h *healthState) Snapshot(now time.Time) (connected bool, uptimePct float64, lastEventAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() {
		return false, 0, h.lastEventAt
	}
	total := h.connectedTotal
	if h.connected {
		total += now.Sub(h.connectedSince)
	}
	elapsed := now.Sub(h.startedAt)
	if elapsed <= 0 {
		return h.connected, 0, h.lastEventAt
	}
	pct := float64(total) / float64(elapsed) * 100
	if pct > 100 {
		pct = 100
	}
	return h.connected, pct, h.lastEventAt
}

// Health exposes the router's connection snapshot for telemetry wiring.
func (r *Router) Health() (connected bool, uptimePct float64, lastEventAt time.Time) {
	return r.health.Snapshot(time.Now())
}

// NewRouter builds a Router for one map's SSE endpoint.
func NewRouter(url, mapID string, httpClient *http.Client) *Router {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Router{
		url:        url,
		mapID:      mapID,
		httpClient: httpClient,
		validate:   validator.New(),
		handlers:   make(map[model.EventCategory]Handler),
	}
}

// On registers the handler for a category.
func (r *Router) On(category model.EventCategory, h Handler) {
	r.handlers[category] = h
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff and jitter on transport failure, resuming via
// Last-Event-ID. It never returns an error for a single dropped event —
// only for an unrecoverable setup failure (ctx cancellation).
func (r *Router) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := r.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		backoff := reconnectBackoff(attempt)
		slog.Warn("sse stream disconnected, reconnecting",
			"map_id", r.mapID, "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func reconnectBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	max := 30 * time.Second
	d := base << uint(min(attempt, 6))
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (r *Router) connectAndConsume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if r.lastEventID != "" {
		req.Header.Set("Last-Event-ID", r.lastEventID)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse connect: status %d", resp.StatusCode)
	}

	r.health.markConnected(time.Now())
	defer r.health.markDisconnected(time.Now())

	return r.consumeStream(ctx, resp)
}

// consumeStream performs the field:value SSE parse and dispatches each
// complete event in arrival order (spec.md §4.6/§5: strict FIFO within a
// stream, no ordering guarantee across streams).
func (r *Router) consumeStream(ctx context.Context, resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventType, id, data strings.Builder

	flush := func() {
		if data.Len() == 0 {
			data.Reset()
			eventType.Reset()
			id.Reset()
			return
		}
		if id.Len() > 0 {
			r.lastEventID = id.String()
		}
		r.health.markEvent(time.Now())
		r.handleRaw(ctx, data.String())
		data.Reset()
		eventType.Reset()
		id.Reset()
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment/heartbeat, ignored
		case strings.HasPrefix(line, "event:"):
			eventType.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "id:"):
			id.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "id:")))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
	return scanner.Err()
}

// handleRaw runs validate → categorise → route → log for one raw SSE data
// payload. Per spec.md §4.6, any error is logged with context and the next
// event is processed unconditionally — this function never returns an
// error to its caller.
func (r *Router) handleRaw(ctx context.Context, raw string) {
	var ev model.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		slog.Warn("sse event invalid json, dropping", "map_id", r.mapID, "error", err)
		return
	}

	if err := r.validateEvent(ev); err != nil {
		slog.Warn("sse event failed validation, dropping", "map_id", r.mapID, "type", ev.Type, "error", err)
		return
	}

	if ev.ID != "" {
		if _, err := ulid.ParseStrict(ev.ID); err != nil {
			slog.Debug("sse event id is not a strict ULID, continuing anyway", "id", ev.ID)
		}
	}
	if _, err := uuid.Parse(ev.MapID); err != nil {
		slog.Debug("sse event map_id is not a UUID, continuing anyway", "map_id", ev.MapID)
	}

	category := model.Categorise(ev.Type)
	if category == model.CategoryUnknown {
		slog.Warn("sse event of unknown type, ignored", "map_id", r.mapID, "type", ev.Type)
		if r.onUnknown != nil {
			r.onUnknown(ev.Type)
		}
		return
	}

	handler, ok := r.handlers[category]
	if !ok || category == model.CategoryReserved {
		slog.Debug("sse event category has no handler, ignored", "map_id", r.mapID, "category", category, "type", ev.Type)
		return
	}

	result, err := handler(ctx, ev)
	switch result {
	case HandledError:
		slog.Error("sse event handler error", "map_id", r.mapID, "type", ev.Type, "error", err)
	case Ignored:
		slog.Debug("sse event ignored by handler", "map_id", r.mapID, "type", ev.Type)
	case Ok:
	}
}

func (r *Router) validateEvent(ev model.Event) error {
	if ev.ID == "" || ev.Type == "" || ev.MapID == "" || ev.Timestamp.IsZero() {
		return errs.ErrMissingFields
	}
	if len(ev.Payload) == 0 {
		return errs.ErrInvalidPayload
	}
	return r.validate.Struct(ev)
}
