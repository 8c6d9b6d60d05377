// Package ratelimit caps request volume per hashed client identity
// using fixed-window counting. The core never sees a raw network
// address, only the salted hash the caller derives upstream.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMax    = 5
	defaultWindow = 10 * time.Minute
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long the denied caller should wait before the
	// window resets.
	RetryAfter time.Duration
}

type bucket struct {
	count         int
	windowResetAt time.Time
}

// Limiter is an injectable fixed-window limiter with process-local
// buckets. Each instance counts independently; a distributed deployment
// would need a shared counter store.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	max    int
	window time.Duration
	logger *zerolog.Logger

	now func() time.Time
}

// New builds a limiter; non-positive arguments select the defaults
// (5 requests per 10 minutes).
func New(max int, window time.Duration, logger *zerolog.Logger) *Limiter {
	if max <= 0 {
		max = defaultMax
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow admits or denies one request for the identity. An expired
// bucket is replaced with a fresh one, never incremented.
func (l *Limiter) Allow(identityHash string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[identityHash]
	if !ok || !b.windowResetAt.After(now) {
		l.buckets[identityHash] = &bucket{count: 1, windowResetAt: now.Add(l.window)}
		return Decision{Allowed: true, Remaining: l.max - 1}
	}

	b.count++
	if b.count > l.max {
		return Decision{Allowed: false, RetryAfter: b.windowResetAt.Sub(now)}
	}
	return Decision{Allowed: true, Remaining: l.max - b.count}
}

// Run purges expired buckets until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

func (l *Limiter) purge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if !b.windowResetAt.After(now) {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug().Int("removed", removed).Msg("rate limit buckets purged")
	}
}
