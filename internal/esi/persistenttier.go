package esi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"wanderer-notifier/pkg/database"
)

// persistentTier is an optional second memoisation layer behind cache.Cache,
// grounded on pkg/evegateway/redis_cache.go's RedisCacheManager. It exists so
// ESI catalog entities survive a process restart; it never replaces C1's
// in-memory dual-index contract — the registry and dedup never touch it.
type persistentTier struct {
	redis *database.Redis
	ttl   time.Duration
}

func newPersistentTier(r *database.Redis, ttl time.Duration) *persistentTier {
	if r == nil {
		return nil
	}
	return &persistentTier{redis: r, ttl: ttl}
}

func (p *persistentTier) get(ctx context.Context, key string) (map[string]any, bool) {
	if p == nil {
		return nil, false
	}

	raw, err := p.redis.Get(ctx, "esi:persist:"+key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("esi persistent cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("esi persistent cache decode failed", "key", key, "error", err)
		return nil, false
	}
	return result, true
}

func (p *persistentTier) set(ctx context.Context, key string, value map[string]any) {
	if p == nil {
		return
	}
	if err := p.redis.SetJSON(ctx, "esi:persist:"+key, value, p.ttl); err != nil {
		slog.Warn("esi persistent cache write failed", "key", key, "error", err)
	}
}
