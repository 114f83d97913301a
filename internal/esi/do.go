package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wanderer-notifier/internal/errs"
)

// doJSON performs a rate-limited, circuit-broken, retried GET against url and
// decodes the JSON body into a map. Results are memoised under cacheKey for
// cfg.CacheTTL; errors are never cached per spec.md §4.2.
func (c *Client) doJSON(ctx context.Context, spanName, url, cacheKey string) (map[string]any, error) {
	ctx, span := c.startSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("esi.url", url), attribute.String("esi.cache_key", cacheKey))

	if v, ok := c.cache.Get(cacheKey); ok {
		span.SetAttributes(attribute.Bool("esi.cache_hit", true))
		return v.(map[string]any), nil
	}

	if result, ok := c.persist.get(ctx, cacheKey); ok {
		span.SetAttributes(attribute.Bool("esi.persist_hit", true))
		c.cache.Put(cacheKey, result, c.cfg.CacheTTL)
		return result, nil
	}

	body, err := c.fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode esi response: %w", err)
	}

	c.cache.Put(cacheKey, result, c.cfg.CacheTTL)
	c.persist.set(ctx, cacheKey, result)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// fetch runs the full middleware chain: rate limit -> circuit breaker ->
// retry-with-backoff -> HTTP GET, returning the raw response body on 2xx.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	limiter := c.limiters.forURL(url)
	breaker := c.breakers.forURL(url)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := breaker.Execute(func() (interface{}, error) {
			return c.doOnce(ctx, url)
		})

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.ErrCircuitBreakerOpen
		}

		if err != nil {
			lastErr = err
			if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errNonRetryable) {
				return nil, err
			}
			if attempt == c.cfg.MaxRetries {
				return nil, fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err)
			}
			if sleepErr := sleep(ctx, backoffWithJitter(attempt, 200)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		return body.([]byte), nil
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.updateErrorLimits(resp.Header)

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, readErr
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errs.ErrRateLimited
	case retryableStatus(resp.StatusCode):
		return nil, fmt.Errorf("esi returned status %d", resp.StatusCode)
	default:
		// non-retryable 4xx: wrapped in errNonRetryable so the retry loop
		// returns it at once (the breaker still records it as a failure,
		// which is correct for a misbehaving client).
		return nil, fmt.Errorf("%w: esi returned status %d: %s", errNonRetryable, resp.StatusCode, string(body))
	}
}

// errNonRetryable marks a 4xx response (other than 404 and 429) that fetch
// returns without retrying.
var errNonRetryable = errors.New("non-retryable status")
