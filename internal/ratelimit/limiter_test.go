package ratelimit

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(max int, window time.Duration) (*Limiter, *time.Time) {
	logger := zerolog.New(io.Discard)
	l := New(max, window, &logger)
	current := time.Date(2025, 9, 22, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestLimiterAllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(5, 10*time.Minute)

	for i := 0; i < 5; i++ {
		decision := l.Allow("client-a")
		assert.True(t, decision.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, decision.Remaining)
	}

	decision := l.Allow("client-a")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 10*time.Minute, decision.RetryAfter)
}

func TestLimiterWindowReset(t *testing.T) {
	l, current := newTestLimiter(5, 10*time.Minute)

	for i := 0; i < 6; i++ {
		l.Allow("client-a")
	}
	assert.False(t, l.Allow("client-a").Allowed)

	// A new window starts with a fresh bucket, not a decremented old
	// one.
	*current = current.Add(10 * time.Minute)
	decision := l.Allow("client-a")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestLimiterRetryAfterShrinks(t *testing.T) {
	l, current := newTestLimiter(1, 10*time.Minute)

	assert.True(t, l.Allow("client-a").Allowed)

	*current = current.Add(3 * time.Minute)
	decision := l.Allow("client-a")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 7*time.Minute, decision.RetryAfter)
}

func TestLimiterIdentitiesIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 10*time.Minute)

	assert.True(t, l.Allow("client-a").Allowed)
	assert.False(t, l.Allow("client-a").Allowed)
	assert.True(t, l.Allow("client-b").Allowed)
}

func TestLimiterPurge(t *testing.T) {
	l, current := newTestLimiter(5, 10*time.Minute)

	l.Allow("stale")
	*current = current.Add(11 * time.Minute)
	l.Allow("fresh")

	l.purge()

	l.mu.Lock()
	_, staleKept := l.buckets["stale"]
	_, freshKept := l.buckets["fresh"]
	l.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, freshKept)
}

func TestLimiterDefaults(t *testing.T) {
	logger := zerolog.New(io.Discard)
	l := New(0, 0, &logger)
	assert.Equal(t, 5, l.max)
	assert.Equal(t, 10*time.Minute, l.window)
}
