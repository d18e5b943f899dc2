package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a caller exceeds a limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit kinds.
const (
	KindRequest     = "request"
	KindGeneration  = "generation"
	KindAuthFailure = "auth_failure"
)

// RateLimitConfig sets the per-caller limits. Zero selects the default; a
// negative value disables the limit.
type RateLimitConfig struct {
	// RequestsPerMin caps authenticated API calls per user.
	RequestsPerMin int `yaml:"requests_per_min"`
	// GenerationsPerHour caps paid model calls per user.
	GenerationsPerHour int `yaml:"generations_per_hour"`
	// AuthFailuresPerMin caps failed admin logins per remote address.
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerMin == 0 {
		c.RequestsPerMin = 120
	}
	if c.GenerationsPerHour == 0 {
		c.GenerationsPerHour = 200
	}
	if c.AuthFailuresPerMin == 0 {
		c.AuthFailuresPerMin = 10
	}
	return c
}

// RateLimiter is a sliding-window limiter keyed by kind and caller.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]window
	events map[string]map[string][]time.Time
	now    func() time.Time
	calls  int
}

type window struct {
	span  time.Duration
	limit int
}

// NewRateLimiter returns a limiter for cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	rl := &RateLimiter{
		limits: make(map[string]window),
		events: make(map[string]map[string][]time.Time),
		now:    time.Now,
	}
	add := func(kind string, span time.Duration, limit int) {
		if limit > 0 {
			rl.limits[kind] = window{span: span, limit: limit}
			rl.events[kind] = make(map[string][]time.Time)
		}
	}
	add(KindRequest, time.Minute, cfg.RequestsPerMin)
	add(KindGeneration, time.Hour, cfg.GenerationsPerHour)
	add(KindAuthFailure, time.Minute, cfg.AuthFailuresPerMin)
	return rl
}

// Allow records one event of kind for key, or returns ErrRateLimited
// without recording it. Kinds with no limit always pass.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.limits[kind]
	if !ok {
		return nil
	}
	now := rl.now()
	rl.calls++
	if rl.calls%1024 == 0 {
		rl.sweep(now)
	}

	byKey := rl.events[kind]
	events := evict(byKey[key], now.Add(-w.span))
	if len(events) >= w.limit {
		byKey[key] = events
		return ErrRateLimited
	}
	byKey[key] = append(events, now)
	return nil
}

// Blocked reports whether key is at its limit for kind, without recording.
func (rl *RateLimiter) Blocked(kind, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.limits[kind]
	if !ok {
		return false
	}
	events := evict(rl.events[kind][key], rl.now().Add(-w.span))
	rl.events[kind][key] = events
	return len(events) >= w.limit
}

// sweep drops callers with no events left in their window.
func (rl *RateLimiter) sweep(now time.Time) {
	for kind, byKey := range rl.events {
		cutoff := now.Add(-rl.limits[kind].span)
		for key, events := range byKey {
			if events = evict(events, cutoff); len(events) == 0 {
				delete(byKey, key)
			} else {
				byKey[key] = events
			}
		}
	}
}

// evict drops events older than cutoff. events is chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
