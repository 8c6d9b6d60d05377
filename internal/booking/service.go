package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabletime/bookingd/internal/idempotency"
	"github.com/tabletime/bookingd/internal/metrics"
	"github.com/tabletime/bookingd/internal/models"
	"github.com/tabletime/bookingd/internal/ratelimit"
)

// BookResult is what the booking path hands back to the request layer.
type BookResult struct {
	ID              int64  `json:"id"`
	ReferenceNumber string `json:"reference_number"`
	// Replayed is true when the result came from the idempotency cache
	// rather than a fresh commit.
	Replayed bool `json:"replayed"`
}

// Service is the booking-path pipeline: rate limiter, idempotency
// guard, then the failover coordinator. It keeps the request ordering
// in the core instead of leaving it to the transport layer.
type Service struct {
	limiter     *ratelimit.Limiter
	guard       *idempotency.Guard
	coordinator *Coordinator
	metrics     *metrics.Metrics
	logger      *zerolog.Logger
}

// NewService wires the pipeline.
func NewService(limiter *ratelimit.Limiter, guard *idempotency.Guard, coordinator *Coordinator, m *metrics.Metrics, logger *zerolog.Logger) *Service {
	return &Service{
		limiter:     limiter,
		guard:       guard,
		coordinator: coordinator,
		metrics:     m,
		logger:      logger,
	}
}

// Book admits, deduplicates and commits one booking request.
// identityHash is the salted client identity; idemKey is the
// caller-supplied idempotency key.
func (s *Service) Book(ctx context.Context, identityHash, idemKey string, req models.AppointmentRequest) (*BookResult, error) {
	decision := s.limiter.Allow(identityHash)
	if !decision.Allowed {
		s.metrics.RateLimited.Inc()
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	check, err := s.guard.Check(idemKey, req)
	if err != nil {
		return nil, err
	}
	if check.IsDuplicate {
		if check.Response == nil {
			// Original request admitted but not finished yet.
			return nil, ErrRequestInFlight
		}
		s.metrics.IdempotentReplays.Inc()
		cached := check.Response.(*BookResult)
		replay := *cached
		replay.Replayed = true
		return &replay, nil
	}

	requestID := uuid.NewString()
	if err := s.guard.Store(idemKey, requestID, req); err != nil {
		return nil, err
	}

	created, err := s.coordinator.CreateAppointment(ctx, req)
	if err != nil {
		// Free the key so a clean retry is not answered with the
		// failed attempt's placeholder.
		s.guard.Remove(idemKey)
		return nil, err
	}

	result := &BookResult{ID: created.ID, ReferenceNumber: created.ReferenceNumber}
	s.guard.UpdateResponse(idemKey, result)
	return result, nil
}

// Cancel passes a cancellation through the coordinator.
func (s *Service) Cancel(ctx context.Context, identityHash, ref string) (bool, error) {
	decision := s.limiter.Allow(identityHash)
	if !decision.Allowed {
		s.metrics.RateLimited.Inc()
		return false, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return s.coordinator.CancelAppointment(ctx, ref)
}
