package esi

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// updateErrorLimitsFromHeader parses the ESI X-ESI-Error-Limit-* headers,
// grounded on pkg/evegateway/retry.go's updateErrorLimitsWithContext.
func updateErrorLimitsFromHeader(limits *ErrorLimits, h http.Header) {
	if remainStr := h.Get("X-ESI-Error-Limit-Remain"); remainStr != "" {
		if remain, err := strconv.Atoi(remainStr); err == nil {
			limits.Remain = remain
		}
	}
	if resetStr := h.Get("X-ESI-Error-Limit-Reset"); resetStr != "" {
		if reset, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			limits.Reset = time.Now().Add(time.Duration(reset) * time.Second)
		}
	}
	if windowStr := h.Get("X-ESI-Error-Limit-Window"); windowStr != "" {
		if window, err := strconv.Atoi(windowStr); err == nil {
			limits.Window = window
		}
	}
}

// retryableStatus reports whether an HTTP status code is worth retrying per
// spec.md §4.2 ({http_error, 5xx}, 429).
func retryableStatus(status int) bool {
	return status >= 500 || status == 429
}

// backoffWithJitter computes an exponential backoff with full jitter, base
// in [100,1000]ms per spec.md §4.2, capped at 30s.
func backoffWithJitter(attempt int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 200
	}
	maxMs := baseMs << uint(attempt)
	if maxMs > 30_000 || maxMs <= 0 {
		maxMs = 30_000
	}
	return time.Duration(rand.Intn(maxMs)) * time.Millisecond
}

// sleep waits for d or returns ctx.Err() if the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
