// Package registry implements the Tracked-Entity Registry (C5): the
// authoritative, dual-indexed set of tracked systems and characters, backed
// entirely by cache.Cache. Every mutation writes the collection key, the
// per-entity key and the presence key atomically through a single
// GetAndUpdate call, per spec.md §4.5's dual-index invariant.
package registry

import (
	"fmt"

	"wanderer-notifier/internal/cache"
	"wanderer-notifier/internal/errs"
	"wanderer-notifier/internal/model"
)

const (
	keySystems       = "map:systems"
	keyCharacters    = "map:characters"
	collectionNoTTL  = 0
)

func systemKey(id uint32) string    { return fmt.Sprintf("map:system:%d", id) }
func systemPresence(id uint32) string { return fmt.Sprintf("tracked:system:%d", id) }
func charKey(id uint64) string      { return fmt.Sprintf("map:character:%d", id) }
func charPresence(id uint64) string { return fmt.Sprintf("tracked:character:%d", id) }

// AddResult distinguishes a genuine insert from the idempotent no-op path.
type AddResult int

const (
	Added AddResult = iota
	AlreadyTracked
)

// Registry is a view over cache.Cache maintaining the tracked-systems and
// tracked-characters dual indexes.
type Registry struct {
	cache *cache.Cache
}

func New(c *cache.Cache) *Registry {
	return &Registry{cache: c}
}

// --- systems ---

// IsTrackedSystem is an O(1) presence check.
func (r *Registry) IsTrackedSystem(id uint32) bool {
	v, ok := r.cache.Get(systemPresence(id))
	if !ok {
		return false
	}
	present, _ := v.(bool)
	return present
}

// ListTrackedSystems returns a snapshot of every tracked system.
func (r *Registry) ListTrackedSystems() []model.TrackedSystem {
	v, ok := r.cache.Get(keySystems)
	if !ok {
		return nil
	}
	coll := v.(map[uint32]model.TrackedSystem)
	out := make([]model.TrackedSystem, 0, len(coll))
	for _, s := range coll {
		out = append(out, s)
	}
	return out
}

// AddSystem inserts entity if not already present. Add is idempotent: an
// already-tracked id returns AlreadyTracked without mutating anything.
func (r *Registry) AddSystem(entity model.TrackedSystem) AddResult {
	result := r.cache.GetAndUpdate(keySystems, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionSystems(current, present)
		if _, exists := coll[entity.SolarSystemID]; exists {
			return coll, false, AlreadyTracked
		}
		coll[entity.SolarSystemID] = entity
		return coll, true, Added
	})

	if result == AlreadyTracked {
		return AlreadyTracked
	}

	r.cache.Put(systemKey(entity.SolarSystemID), entity, collectionNoTTL)
	r.cache.Put(systemPresence(entity.SolarSystemID), true, collectionNoTTL)
	return Added
}

// RemoveSystem clears all three keys for id. Repeated removal is a no-op.
func (r *Registry) RemoveSystem(id uint32) {
	r.cache.GetAndUpdate(keySystems, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionSystems(current, present)
		delete(coll, id)
		return coll, true, nil
	})
	r.cache.Delete(systemKey(id))
	r.cache.Delete(systemPresence(id))
}

// UpdateSystem upserts by id (last-writer-wins on fields). If absent, this is
// equivalent to AddSystem (per spec.md §4.7's *_updated rule).
func (r *Registry) UpdateSystem(id uint32, patch model.TrackedSystem) {
	patch.SolarSystemID = id
	r.cache.GetAndUpdate(keySystems, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionSystems(current, present)
		coll[id] = patch
		return coll, true, nil
	})
	r.cache.Put(systemKey(id), patch, collectionNoTTL)
	r.cache.Put(systemPresence(id), true, collectionNoTTL)
}

// collectionSystems always returns a fresh copy of the stored collection
// (or an empty one), never the stored map itself. ListTrackedSystems reads
// the published map outside the shard lock, so every mutation must swap in
// a brand-new map rather than mutate the one still being ranged by a
// concurrent reader — spec.md §9's "snapshot pointer swap for collection
// keys".
func collectionSystems(current any, present bool) map[uint32]model.TrackedSystem {
	out := make(map[uint32]model.TrackedSystem)
	if present {
		if coll, ok := current.(map[uint32]model.TrackedSystem); ok {
			for id, s := range coll {
				out[id] = s
			}
		}
	}
	return out
}

// --- characters ---

func (r *Registry) IsTrackedCharacter(eveID uint64) bool {
	v, ok := r.cache.Get(charPresence(eveID))
	if !ok {
		return false
	}
	present, _ := v.(bool)
	return present
}

func (r *Registry) ListTrackedCharacters() []model.TrackedCharacter {
	v, ok := r.cache.Get(keyCharacters)
	if !ok {
		return nil
	}
	coll := v.(map[uint64]model.TrackedCharacter)
	out := make([]model.TrackedCharacter, 0, len(coll))
	for _, c := range coll {
		out = append(out, c)
	}
	return out
}

func (r *Registry) AddCharacter(entity model.TrackedCharacter) AddResult {
	result := r.cache.GetAndUpdate(keyCharacters, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionCharacters(current, present)
		if _, exists := coll[entity.EveID]; exists {
			return coll, false, AlreadyTracked
		}
		coll[entity.EveID] = entity
		return coll, true, Added
	})

	if result == AlreadyTracked {
		return AlreadyTracked
	}

	r.cache.Put(charKey(entity.EveID), entity, collectionNoTTL)
	r.cache.Put(charPresence(entity.EveID), true, collectionNoTTL)
	return Added
}

func (r *Registry) RemoveCharacter(eveID uint64) {
	r.cache.GetAndUpdate(keyCharacters, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionCharacters(current, present)
		delete(coll, eveID)
		return coll, true, nil
	})
	r.cache.Delete(charKey(eveID))
	r.cache.Delete(charPresence(eveID))
}

func (r *Registry) UpdateCharacter(eveID uint64, patch model.TrackedCharacter) {
	patch.EveID = eveID
	r.cache.GetAndUpdate(keyCharacters, collectionNoTTL, func(current any, present bool) (any, bool, any) {
		coll := collectionCharacters(current, present)
		coll[eveID] = patch
		return coll, true, nil
	})
	r.cache.Put(charKey(eveID), patch, collectionNoTTL)
	r.cache.Put(charPresence(eveID), true, collectionNoTTL)
}

// collectionCharacters mirrors collectionSystems's copy-on-write: always a
// fresh map, never the one a concurrent ListTrackedCharacters might be
// ranging.
func collectionCharacters(current any, present bool) map[uint64]model.TrackedCharacter {
	out := make(map[uint64]model.TrackedCharacter)
	if present {
		if coll, ok := current.(map[uint64]model.TrackedCharacter); ok {
			for id, c := range coll {
				out[id] = c
			}
		}
	}
	return out
}

// --- id extraction ---

// ExtractSystemID accepts any of solar_system_id | system_id | id from a
// payload map; an ambiguous payload (more than one present, disagreeing) is
// rejected per spec.md §4.5.
func ExtractSystemID(payload map[string]any) (uint32, error) {
	id, err := extractNumericID(payload, "solar_system_id", "system_id", "id")
	if err != nil {
		return 0, err
	}
	return uint32(id), nil
}

// ExtractCharacterID accepts any of eve_id | character_id | id.
func ExtractCharacterID(payload map[string]any) (uint64, error) {
	return extractNumericID(payload, "eve_id", "character_id", "id")
}

func extractNumericID(payload map[string]any, keys ...string) (uint64, error) {
	var found uint64
	var have bool

	for _, k := range keys {
		raw, ok := payload[k]
		if !ok {
			continue
		}
		n, ok := toUint64(raw)
		if !ok {
			continue
		}
		if have && n != found {
			return 0, errs.ErrAmbiguousID
		}
		found, have = n, true
	}

	if !have {
		return 0, errs.ErrMissingFields
	}
	return found, nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	default:
		return 0, false
	}
}
