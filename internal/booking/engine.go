// Package booking owns the slot booking domain logic: availability
// queries, atomic appointment creation, reference numbers, cancellation,
// date blocking and retention cleanup. The same engine drives either
// store adapter; the failover coordinator decides which one serves a
// request.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabletime/bookingd/internal/models"
	"github.com/tabletime/bookingd/internal/store"
)

const defaultReferenceAttempts = 10

// CreateResult is the booking-path success payload.
type CreateResult struct {
	ID              int64  `json:"id"`
	ReferenceNumber string `json:"reference_number"`
}

// Engine implements the booking operations over one store adapter.
type Engine struct {
	store        store.Store
	logger       *zerolog.Logger
	refAttempts  int
	catalogSlots []models.TimeSlot

	now func() time.Time
}

// NewEngine builds an engine over the given adapter. refAttempts
// bounds reference-collision retries; zero selects the default.
func NewEngine(st store.Store, refAttempts int, logger *zerolog.Logger) *Engine {
	if refAttempts <= 0 {
		refAttempts = defaultReferenceAttempts
	}
	return &Engine{
		store:        st,
		logger:       logger,
		refAttempts:  refAttempts,
		catalogSlots: DefaultTimeSlots(),
		now:          time.Now,
	}
}

// Store exposes the underlying adapter for health probes.
func (e *Engine) Store() store.Store { return e.store }

// Bootstrap creates the schema and seeds the time-slot catalog. Safe to
// run repeatedly; it is also the repair path when the health check
// detects a short catalog.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s: ensure schema: %w", e.store.Name(), err)
	}
	if err := e.store.SeedTimeSlots(ctx, e.catalogSlots); err != nil {
		return fmt.Errorf("%s: seed time slots: %w", e.store.Name(), err)
	}
	return nil
}

// AvailableSlots returns the full weekday catalog for the date with
// per-slot availability. A slot is unavailable when the date is blocked
// or an active appointment occupies it.
func (e *Engine) AvailableSlots(ctx context.Context, date string) ([]models.SlotAvailability, error) {
	day, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}

	slots, err := e.store.TimeSlotsForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	blocked, err := e.store.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, err
	}

	var occupied map[string]bool
	if !blocked {
		occupied, err = e.store.OccupiedTimes(ctx, date)
		if err != nil {
			return nil, err
		}
	}

	result := make([]models.SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		result = append(result, models.SlotAvailability{
			Time:        slot.StartTime,
			IsAvailable: !blocked && !occupied[slot.StartTime],
		})
	}
	return result, nil
}

// IsSlotAvailable applies the same rule to a single slot. It is the
// optimistic pre-check before a create; the insert itself still runs
// under the store uniqueness constraint.
func (e *Engine) IsSlotAvailable(ctx context.Context, date, startTime string) (bool, error) {
	slot, err := e.catalogSlot(ctx, date, startTime)
	if err != nil {
		return false, err
	}
	if slot == nil {
		return false, nil
	}

	blocked, err := e.store.IsDateBlocked(ctx, date)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	occupied, err := e.store.OccupiedTimes(ctx, date)
	if err != nil {
		return false, err
	}
	return !occupied[startTime], nil
}

// CreateAppointment re-validates availability, generates a unique
// reference and inserts the confirmed row atomically. A lost race on
// the slot constraint surfaces as ErrSlotUnavailable; reference
// collisions are retried up to the attempt budget.
func (e *Engine) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*CreateResult, error) {
	slot, err := e.catalogSlot(ctx, req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, ErrSlotUnavailable
	}

	available, err := e.IsSlotAvailable(ctx, req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrSlotUnavailable
	}

	endTime, err := addMinutes(req.Time, slot.DurationMinutes)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < e.refAttempts; attempt++ {
		ref, err := NewReference(req.Date)
		if err != nil {
			return nil, err
		}

		exists, err := e.store.ReferenceExists(ctx, ref)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		appt := &models.Appointment{
			ReferenceNumber: ref,
			Date:            req.Date,
			StartTime:       req.Time,
			EndTime:         endTime,
			RestaurantName:  req.RestaurantName,
			Status:          models.StatusConfirmed,
		}

		err = e.store.InsertAppointment(ctx, appt)
		switch {
		case err == nil:
			e.logger.Info().
				Str("store", e.store.Name()).
				Str("reference", ref).
				Str("date", req.Date).
				Str("time", req.Time).
				Msg("appointment created")
			return &CreateResult{ID: appt.ID, ReferenceNumber: ref}, nil
		case errors.Is(err, store.ErrReferenceTaken):
			// Lost the reference race between the existence check and
			// the insert; pick a new suffix.
			continue
		case errors.Is(err, store.ErrSlotTaken):
			return nil, ErrSlotUnavailable
		default:
			return nil, err
		}
	}

	e.logger.Error().
		Str("store", e.store.Name()).
		Int("attempts", e.refAttempts).
		Msg("reference generation exhausted")
	return nil, ErrReferenceGenerationFailed
}

// CancelAppointment moves a confirmed appointment to cancelled. A
// missing or already-terminal appointment returns false, not an error.
func (e *Engine) CancelAppointment(ctx context.Context, ref string) (bool, error) {
	cancelled, err := e.store.CancelByReference(ctx, ref)
	if err != nil {
		return false, err
	}
	if cancelled {
		e.logger.Info().Str("store", e.store.Name()).Str("reference", ref).Msg("appointment cancelled")
	}
	return cancelled, nil
}

// AvailableDates enumerates weekdays of the month that are not in the
// past and still have at least one available slot.
func (e *Engine) AvailableDates(ctx context.Context, year int, month time.Month) ([]string, error) {
	today := e.now().Format(models.DateFormat)

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var dates []string
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		date := d.Format(models.DateFormat)
		if date < today {
			continue
		}

		slots, err := e.AvailableSlots(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if slot.IsAvailable {
				dates = append(dates, date)
				break
			}
		}
	}
	return dates, nil
}

// BlockDate marks a date unavailable. Blocking twice updates the reason.
func (e *Engine) BlockDate(ctx context.Context, date, reason string) error {
	if _, err := time.Parse(models.DateFormat, date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidInput, date)
	}
	return e.store.UpsertBlockedDate(ctx, date, reason)
}

// UnblockDate removes the block if present.
func (e *Engine) UnblockDate(ctx context.Context, date string) (bool, error) {
	return e.store.DeleteBlockedDate(ctx, date)
}

// CleanupExpired removes terminal appointments older than the retention
// window and returns the deleted count.
func (e *Engine) CleanupExpired(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := e.now().AddDate(0, 0, -daysToKeep).Format(models.DateFormat)
	deleted, err := e.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		e.logger.Info().
			Str("store", e.store.Name()).
			Int64("deleted", deleted).
			Str("cutoff", cutoff).
			Msg("expired appointments removed")
	}
	return deleted, nil
}

// AppointmentsByDateRange lists non-deleted appointments between two
// dates inclusive, ordered by date and time.
func (e *Engine) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	return e.store.AppointmentsByDateRange(ctx, from, to)
}

// AppointmentByReference looks up a single appointment.
func (e *Engine) AppointmentByReference(ctx context.Context, ref string) (*models.Appointment, error) {
	return e.store.AppointmentByReference(ctx, ref)
}

// catalogSlot returns the catalog entry matching the date's weekday and
// start time, or nil when the time is outside business hours.
func (e *Engine) catalogSlot(ctx context.Context, date, startTime string) (*models.TimeSlot, error) {
	day, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(models.TimeFormat, startTime); err != nil {
		return nil, fmt.Errorf("%w: bad time %q", ErrInvalidInput, startTime)
	}

	slots, err := e.store.TimeSlotsForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].StartTime == startTime {
			return &slots[i], nil
		}
	}
	return nil, nil
}

func weekdayOf(date string) (time.Weekday, error) {
	d, err := time.Parse(models.DateFormat, date)
	if err != nil {
		return 0, fmt.Errorf("%w: bad date %q", ErrInvalidInput, date)
	}
	return d.Weekday(), nil
}

func addMinutes(startTime string, minutes int) (string, error) {
	t, err := time.Parse(models.TimeFormat, startTime)
	if err != nil {
		return "", fmt.Errorf("%w: bad time %q", ErrInvalidInput, startTime)
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format(models.TimeFormat), nil
}
