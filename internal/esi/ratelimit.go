package esi

import (
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet is a token-bucket rate limiter, either one global bucket or one
// bucket per upstream host, per spec.md §4.2's per_host toggle.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	perHost  bool
	global   *rate.Limiter
}

func newLimiterSet(limit rate.Limit, burst int, perHost bool) *limiterSet {
	s := &limiterSet{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		perHost:  perHost,
	}
	if !perHost {
		s.global = rate.NewLimiter(limit, burst)
	}
	return s
}

func (s *limiterSet) forURL(rawURL string) *rate.Limiter {
	if !s.perHost {
		return s.global
	}

	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[host] = l
	}
	return l
}
