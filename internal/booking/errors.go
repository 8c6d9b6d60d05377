package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/tabletime/bookingd/internal/store"
)

var (
	// ErrSlotUnavailable means the target date/time is occupied by an
	// active appointment or the date is blocked.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrReferenceGenerationFailed means reference generation exhausted
	// its retry budget without finding a free number.
	ErrReferenceGenerationFailed = errors.New("reference generation failed")

	// ErrStoreUnavailable means both the primary (after a fallback
	// attempt) and the backup store failed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput covers malformed dates or times that slipped past
	// upstream validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRequestInFlight means a duplicate request arrived before the
	// original finished; the caller should retry shortly.
	ErrRequestInFlight = errors.New("request in flight")
)

// RateLimitedError carries the retry-after hint for a denied request.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// isDomainErr reports whether an engine error is a business outcome
// rather than a store failure. Domain errors must not trigger failover.
func isDomainErr(err error) bool {
	return errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrReferenceGenerationFailed) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, store.ErrNotFound)
}
