// Package ratelimit enforces a minimum interval between calls to each
// external service the pipeline talks to.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Service keys known to the pipeline.
const (
	ServiceDiscovery = "discovery"
	ServiceWebsite   = "website"
	ServiceGeocode   = "geocode"
)

// Limiter spaces out calls per service key. Each key gets its own
// token bucket with burst 1, so consecutive waits for the same key are
// separated by at least the configured interval.
type Limiter struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	limiters  map[string]*rate.Limiter
	fallback  time.Duration
}

// New creates a Limiter with per-service minimum intervals. Keys absent
// from intervals fall back to one second.
func New(intervals map[string]time.Duration) *Limiter {
	l := &Limiter{
		intervals: make(map[string]time.Duration, len(intervals)),
		limiters:  make(map[string]*rate.Limiter),
		fallback:  time.Second,
	}
	for k, v := range intervals {
		if v > 0 {
			l.intervals[k] = v
		}
	}
	return l
}

// Wait blocks until the minimum interval since the last acquire for key
// has elapsed, or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.limiter(key).Wait(ctx)
}

// Interval reports the configured minimum interval for a service key.
func (l *Limiter) Interval(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if iv, ok := l.intervals[key]; ok {
		return iv
	}
	return l.fallback
}

func (l *Limiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	iv, ok := l.intervals[key]
	if !ok {
		iv = l.fallback
	}
	lim := rate.NewLimiter(rate.Every(iv), 1)
	l.limiters[key] = lim
	return lim
}
