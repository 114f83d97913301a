package esi

import (
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerSet holds one circuit breaker per upstream host, per spec.md
// §4.2's per-host closed→open→half-open state machine. sony/gobreaker
// already implements exactly this automaton; rejections while open surface
// as gobreaker.ErrOpenState, which the retry layer maps to
// errs.ErrCircuitBreakerOpen without counting toward the failure tally.
type breakerSet struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	threshold uint32
	recovery  time.Duration
}

func newBreakerSet(threshold uint32, recovery time.Duration) *breakerSet {
	return &breakerSet{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		threshold: threshold,
		recovery:  recovery,
	}
}

func (s *breakerSet) forURL(rawURL string) *gobreaker.CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[host]
	if !ok {
		threshold := s.threshold
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: s.recovery,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			MaxRequests: 1, // half-open allows exactly one probe
		})
		s.breakers[host] = b
	}
	return b
}
