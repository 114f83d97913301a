package esi

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"wanderer-notifier/internal/errs"
)

// GetCharacter fetches /characters/{id}/, memoised under esi:characters:<id>.
func (c *Client) GetCharacter(ctx context.Context, id uint64) (map[string]any, error) {
	return c.getResource(ctx, "GetCharacter", "characters", id)
}

// GetCorporation fetches /corporations/{id}/.
func (c *Client) GetCorporation(ctx context.Context, id uint64) (map[string]any, error) {
	return c.getResource(ctx, "GetCorporation", "corporations", id)
}

// GetAlliance fetches /alliances/{id}/.
func (c *Client) GetAlliance(ctx context.Context, id uint64) (map[string]any, error) {
	return c.getResource(ctx, "GetAlliance", "alliances", id)
}

// GetSystem fetches /universe/systems/{id}/. A 404 here is reported as
// ErrSystemNotFound, distinct from the generic not-found of other resources
// per spec.md §4.2.
func (c *Client) GetSystem(ctx context.Context, id uint32) (map[string]any, error) {
	result, err := c.getResource(ctx, "GetSystem", "universe/systems", id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", errs.ErrSystemNotFound, id)
	}
	return result, err
}

// GetType fetches /universe/types/{id}/.
func (c *Client) GetType(ctx context.Context, id uint64) (map[string]any, error) {
	return c.getResource(ctx, "GetType", "universe/types", id)
}

func (c *Client) getResource(ctx context.Context, spanName, resource string, id any) (map[string]any, error) {
	u := c.resourceURL(resource, id)
	cacheKey := fmt.Sprintf("esi:%s:%v", resource, id)
	return c.doJSON(ctx, spanName, u, cacheKey)
}

// GetKillmail fetches /killmails/{id}/{hash}/. The hash is required for
// retrieval and is part of the memoisation key.
func (c *Client) GetKillmail(ctx context.Context, id uint64, hash string) (map[string]any, error) {
	u := fmt.Sprintf("%s/killmails/%d/%s/", c.cfg.BaseURL, id, hash)
	cacheKey := fmt.Sprintf("esi:killmail:%d:%s", id, hash)
	return c.doJSON(ctx, "GetKillmail", u, cacheKey)
}

// SearchInventoryType queries /search/?categories=inventory_type&search=q&strict=strict.
func (c *Client) SearchInventoryType(ctx context.Context, q string, strict bool) (map[string]any, error) {
	values := url.Values{}
	values.Set("categories", "inventory_type")
	values.Set("search", q)
	values.Set("strict", fmt.Sprintf("%t", strict))

	u := fmt.Sprintf("%s/search/?%s", c.cfg.BaseURL, values.Encode())
	cacheKey := fmt.Sprintf("esi:search:%s:%t", q, strict)
	return c.doJSON(ctx, "SearchInventoryType", u, cacheKey)
}
