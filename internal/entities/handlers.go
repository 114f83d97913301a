// Package entities implements the Entity Handlers (C7): the add/remove/update
// policy that mutates the Tracked-Entity Registry and emits notifications
// subject to startup suppression and the first-run guard, per spec.md §4.7.
package entities

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"wanderer-notifier/internal/dedup"
	"wanderer-notifier/internal/model"
	"wanderer-notifier/internal/registry"
	"wanderer-notifier/internal/sse"
)

// Notifier is the minimal egress surface Handlers needs from C9, kept as an
// interface so tests can stub it without standing up the real dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// FeatureGate reports whether a named feature flag is currently enabled
// (backed by the License Gate, C4).
type FeatureGate interface {
	FeatureEnabled(name string) bool
}

// EventRecorder lets C11 observe every system/character event the SSE
// router hands to these handlers, independent of whether it results in a
// notification — the ingest-side half of spec.md §4.10's processing stats.
type EventRecorder interface {
	RecordEventProcessed(source string, success bool)
}

// Handlers wires the Registry, Deduplicator, Notifier and License Gate into
// the per-category SSE handlers.
type Handlers struct {
	registry *registry.Registry
	dedup    *dedup.Deduplicator
	notifier Notifier
	features FeatureGate
	recorder EventRecorder

	startedAt          time.Time
	suppressionWindow  time.Duration
}

// New builds Handlers. suppressionWindow is spec.md's
// startup_suppression_seconds (default 30s).
func New(reg *registry.Registry, dd *dedup.Deduplicator, notifier Notifier, features FeatureGate, recorder EventRecorder, suppressionWindow time.Duration) *Handlers {
	return &Handlers{
		registry:          reg,
		dedup:             dd,
		notifier:          notifier,
		features:          features,
		recorder:          recorder,
		startedAt:         time.Now(),
		suppressionWindow: suppressionWindow,
	}
}

func (h *Handlers) withinSuppressionWindow() bool {
	return time.Since(h.startedAt) < h.suppressionWindow
}

// HandleSystemEvent dispatches an add_system / deleted_system /
// system_metadata_changed event.
func (h *Handlers) HandleSystemEvent(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	result, err := h.dispatchSystemEvent(ctx, ev)
	h.recordProcessed("system", result, err)
	return result, err
}

func (h *Handlers) dispatchSystemEvent(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	switch ev.Type {
	case "add_system":
		return h.addSystem(ctx, ev)
	case "deleted_system":
		return h.removeSystem(ctx, ev)
	case "system_metadata_changed":
		return h.updateSystem(ctx, ev)
	default:
		return sse.Ignored, nil
	}
}

// HandleCharacterEvent dispatches character_added / character_removed /
// character_updated.
func (h *Handlers) HandleCharacterEvent(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	result, err := h.dispatchCharacterEvent(ctx, ev)
	h.recordProcessed("character", result, err)
	return result, err
}

func (h *Handlers) dispatchCharacterEvent(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	switch ev.Type {
	case "character_added":
		return h.addCharacter(ctx, ev)
	case "character_removed":
		return h.removeCharacter(ctx, ev)
	case "character_updated":
		return h.updateCharacter(ctx, ev)
	default:
		return sse.Ignored, nil
	}
}

// recordProcessed feeds C11 with every event actually routed to a handler,
// including events of an unrecognised type within the category: those
// return Ignored and still count as successfully processed, just not
// actionable.
func (h *Handlers) recordProcessed(source string, result sse.HandleResult, err error) {
	if h.recorder == nil {
		return
	}
	h.recorder.RecordEventProcessed(source, result != sse.HandledError && err == nil)
}

func extractTrackedSystem(payload map[string]any) (model.TrackedSystem, error) {
	id, err := registry.ExtractSystemID(payload)
	if err != nil {
		return model.TrackedSystem{}, err
	}
	ts := model.TrackedSystem{SolarSystemID: id}
	if name, ok := payload["name"].(string); ok {
		ts.Name = name
	}
	if cn, ok := payload["custom_name"].(string); ok {
		ts.CustomName = cn
	}
	return ts, nil
}

func extractTrackedCharacter(payload map[string]any) (model.TrackedCharacter, error) {
	id, err := registry.ExtractCharacterID(payload)
	if err != nil {
		return model.TrackedCharacter{}, err
	}
	tc := model.TrackedCharacter{EveID: id}
	if name, ok := payload["name"].(string); ok {
		tc.Name = name
	}
	return tc, nil
}

func (h *Handlers) addSystem(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	entity, err := extractTrackedSystem(ev.Payload)
	if err != nil {
		slog.Warn("add_system: extract failed", "error", err)
		return sse.HandledError, err
	}

	wasEmpty := len(h.registry.ListTrackedSystems()) == 0
	result := h.registry.AddSystem(entity)
	if result == registry.AlreadyTracked {
		return sse.Ok, nil
	}

	h.maybeNotifyAdd(ctx, "system", idString(entity.SolarSystemID), wasEmpty, model.Notification{
		Kind:    model.KindSystem,
		Content: "New system tracked: " + entity.Name,
	})
	return sse.Ok, nil
}

func (h *Handlers) removeSystem(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	id, err := registry.ExtractSystemID(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}
	h.registry.RemoveSystem(id)
	slog.Info("system removed", "solar_system_id", id)
	return sse.Ok, nil
}

func (h *Handlers) updateSystem(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	id, err := registry.ExtractSystemID(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}

	wasPresent := h.registry.IsTrackedSystem(id)
	patch, err := extractTrackedSystem(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}
	wasEmpty := len(h.registry.ListTrackedSystems()) == 0
	h.registry.UpdateSystem(id, patch)

	if !wasPresent {
		// absent → treat as add
		h.maybeNotifyAdd(ctx, "system", idString(id), wasEmpty, model.Notification{
			Kind:    model.KindSystem,
			Content: "New system tracked: " + patch.Name,
		})
	}
	return sse.Ok, nil
}

func (h *Handlers) addCharacter(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	entity, err := extractTrackedCharacter(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}

	wasEmpty := len(h.registry.ListTrackedCharacters()) == 0
	result := h.registry.AddCharacter(entity)
	if result == registry.AlreadyTracked {
		return sse.Ok, nil
	}

	h.maybeNotifyAdd(ctx, "character", idString(entity.EveID), wasEmpty, model.Notification{
		Kind:    model.KindCharacter,
		Content: "New character tracked: " + entity.Name,
	})
	return sse.Ok, nil
}

func (h *Handlers) removeCharacter(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	id, err := registry.ExtractCharacterID(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}
	h.registry.RemoveCharacter(id)
	slog.Info("character removed", "eve_id", id)
	return sse.Ok, nil
}

func (h *Handlers) updateCharacter(ctx context.Context, ev model.Event) (sse.HandleResult, error) {
	id, err := registry.ExtractCharacterID(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}

	wasPresent := h.registry.IsTrackedCharacter(id)
	patch, err := extractTrackedCharacter(ev.Payload)
	if err != nil {
		return sse.HandledError, err
	}
	wasEmpty := len(h.registry.ListTrackedCharacters()) == 0
	h.registry.UpdateCharacter(id, patch)

	if !wasPresent {
		h.maybeNotifyAdd(ctx, "character", idString(id), wasEmpty, model.Notification{
			Kind:    model.KindCharacter,
			Content: "New character tracked: " + patch.Name,
		})
	}
	return sse.Ok, nil
}

// maybeNotifyAdd implements the *_added gate from spec.md §4.7: notify iff
// startup suppression is inactive AND dedup returns :new for (kind,id) AND
// the notifications feature is enabled AND the collection was non-empty at
// read time (first-run guard — an empty collection means this is the
// initial snapshot reconcile, never notify for it).
func (h *Handlers) maybeNotifyAdd(ctx context.Context, kind, id string, wasEmptyAtRead bool, n model.Notification) {
	if h.withinSuppressionWindow() {
		return
	}
	if wasEmptyAtRead {
		return
	}
	if h.dedup.Duplicate(kind, id) != dedup.New {
		return
	}
	if !h.features.FeatureEnabled("notifications") {
		return
	}

	if err := h.notifier.Notify(ctx, n); err != nil {
		slog.Error("notify failed", "kind", kind, "id", id, "error", err)
	}
}

func idString[T ~uint32 | ~uint64](id T) string {
	return strconv.FormatUint(uint64(id), 10)
}
