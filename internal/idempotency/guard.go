// Package idempotency deduplicates retried write requests by a
// caller-supplied key. State is process-local and bounded by a TTL
// sweep; the guard never talks to the booking stores.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTTL        = 5 * time.Minute
	defaultSweepEvery = time.Minute
)

// Policy decides what happens when a key is reused with a different
// body.
type Policy string

const (
	// PolicyProceed logs a warning and treats the request as fresh.
	PolicyProceed Policy = "proceed"
	// PolicyReject refuses the request with ErrKeyReuse.
	PolicyReject Policy = "reject"
)

// ErrKeyReuse is returned under PolicyReject when a key arrives with a
// body that does not match its original request.
var ErrKeyReuse = errors.New("idempotency key reused with different body")

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool
	RequestID   string
	// Response is the cached final response, nil while the original
	// request is still in flight.
	Response any
}

type record struct {
	bodyHash  string
	requestID string
	response  any
	createdAt time.Time
}

// Guard is an injectable, mutex-guarded idempotency store.
type Guard struct {
	mu      sync.Mutex
	records map[string]*record

	ttl        time.Duration
	sweepEvery time.Duration
	policy     Policy
	logger     *zerolog.Logger

	now func() time.Time
}

// Config tunes the guard; zero values select the defaults (5m TTL, 60s
// sweep, proceed-on-reuse).
type Config struct {
	TTL        time.Duration
	SweepEvery time.Duration
	Policy     Policy
}

// New builds a guard.
func New(cfg Config, logger *zerolog.Logger) *Guard {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = defaultSweepEvery
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyProceed
	}
	return &Guard{
		records:    make(map[string]*record),
		ttl:        cfg.TTL,
		sweepEvery: cfg.SweepEvery,
		policy:     cfg.Policy,
		logger:     logger,
		now:        time.Now,
	}
}

// Check compares the request body against any stored record for the
// key. A matching hash is a duplicate and replays the cached response
// when present. A diverging hash follows the configured policy.
func (g *Guard) Check(key string, body any) (Result, error) {
	hash, err := CanonicalHash(body)
	if err != nil {
		return Result{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[key]
	if !ok || g.expired(rec) {
		return Result{}, nil
	}

	if rec.bodyHash != hash {
		if g.policy == PolicyReject {
			return Result{}, ErrKeyReuse
		}
		g.logger.Warn().Str("key", key).Msg("idempotency key reused with different body, treating as fresh")
		return Result{}, nil
	}

	return Result{IsDuplicate: true, RequestID: rec.requestID, Response: rec.response}, nil
}

// Store inserts a placeholder record immediately after admission so
// concurrent retries of the same key observe the in-flight request.
func (g *Guard) Store(key, requestID string, body any) error {
	hash, err := CanonicalHash(body)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.records[key] = &record{
		bodyHash:  hash,
		requestID: requestID,
		createdAt: g.now(),
	}
	return nil
}

// UpdateResponse attaches the final response so future duplicates can
// replay it verbatim.
func (g *Guard) UpdateResponse(key string, response any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.records[key]; ok {
		rec.response = response
	}
}

// Remove drops a record, freeing the key for a clean retry after the
// original request failed.
func (g *Guard) Remove(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, key)
}

// Run sweeps expired records until ctx is cancelled.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, rec := range g.records {
		if g.expired(rec) {
			delete(g.records, key)
			removed++
		}
	}
	if removed > 0 {
		g.logger.Debug().Int("removed", removed).Msg("idempotency records swept")
	}
}

func (g *Guard) expired(rec *record) bool {
	return g.now().Sub(rec.createdAt) > g.ttl
}
