// Package esi implements the ESI Adapter (C2): a rate-limited, retried,
// circuit-broken HTTP client over the EVE Online game-catalog API, memoised
// through cache.Cache. It generalises the teacher's pkg/evegateway client —
// same wire shape (GET {esi_base}/latest/<resource>/<id>/, JSON body,
// conditional caching) — narrowed to the resources spec.md §4.2 names, with
// a token-bucket limiter and circuit breaker swapped in for the teacher's
// hand-rolled zkillboard rate limiter.
package esi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"wanderer-notifier/internal/cache"
	"wanderer-notifier/pkg/database"
)

// Config tunes the adapter's middleware stack. Zero-value fields fall back
// to spec.md §4.2's defaults via NewClient.
type Config struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client

	MaxRetries    int
	RateLimit     rate.Limit // requests/sec
	RateBurst     int
	PerHostLimit  bool
	BreakerThreshold uint32 // consecutive failures before opening
	BreakerRecovery  time.Duration

	CacheTTL time.Duration // default 24h, esi:<resource>:<id>

	Redis *database.Redis // optional second-tier persistent cache

	EnableTracing bool // wraps the transport with otelhttp spans, per ENABLE_TELEMETRY
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = "https://esi.evetech.net/latest"
	}
	if out.UserAgent == "" {
		out.UserAgent = "wanderer-notifier/1.0"
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if out.EnableTracing {
		out.HTTPClient.Transport = otelhttp.NewTransport(out.HTTPClient.Transport)
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = 3
	}
	if out.RateLimit == 0 {
		out.RateLimit = 20
	}
	if out.RateBurst == 0 {
		out.RateBurst = 40
	}
	if out.BreakerThreshold == 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerRecovery == 0 {
		out.BreakerRecovery = 30 * time.Second
	}
	if out.CacheTTL == 0 {
		out.CacheTTL = 24 * time.Hour
	}
	return out
}

// ErrorLimits tracks the ESI X-ESI-Error-Limit-* response headers.
type ErrorLimits struct {
	Remain int
	Reset  time.Time
	Window int
}

// Client is the ESI Adapter. Construct with NewClient.
type Client struct {
	cfg    Config
	cache  *cache.Cache
	tracer trace.Tracer

	limiters   *limiterSet
	breakers   *breakerSet
	errLimits  ErrorLimits
	errLimitMu sync.RWMutex

	persist *persistentTier
}

// NewClient builds a Client backed by c for in-memory memoisation and
// optionally a Redis second tier (cfg.Redis).
func NewClient(cfg Config, c *cache.Cache) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		cache:    c,
		tracer:   otel.Tracer("esi"),
		limiters: newLimiterSet(cfg.RateLimit, cfg.RateBurst, cfg.PerHostLimit),
		breakers: newBreakerSet(cfg.BreakerThreshold, cfg.BreakerRecovery),
		persist:  newPersistentTier(cfg.Redis, cfg.CacheTTL),
	}
}

// CheckErrorLimits returns an error when ESI's own error budget is close to
// exhausted, so callers can back off proactively instead of waiting for a
// 420/429.
func (c *Client) CheckErrorLimits() error {
	c.errLimitMu.RLock()
	defer c.errLimitMu.RUnlock()

	if c.errLimits.Remain > 0 && c.errLimits.Remain <= 10 && time.Now().Before(c.errLimits.Reset) {
		return fmt.Errorf("esi error budget low: %d remaining until %s", c.errLimits.Remain, c.errLimits.Reset)
	}
	return nil
}

func (c *Client) updateErrorLimits(h http.Header) {
	c.errLimitMu.Lock()
	defer c.errLimitMu.Unlock()
	updateErrorLimitsFromHeader(&c.errLimits, h)
}

func (c *Client) resourceURL(resource string, id any) string {
	return fmt.Sprintf("%s/%s/%v/", c.cfg.BaseURL, resource, id)
}

// startSpan opens a request span tagged with a fresh request id, threaded
// across request_start/finish/error events per spec.md §3's telemetry note.
func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("request.id", uuid.NewString()))
	return ctx, span
}
