// Package store defines the adapter contract shared by the primary and
// backup relational backends. Both adapters present the same logical
// schema: appointments, blocked_dates and the seeded time_slots catalog.
package store

import (
	"context"
	"time"

	"github.com/tabletime/bookingd/internal/models"
)

// Store is implemented once per backend. The booking engine contains
// the shared domain logic and drives either implementation through this
// interface; the coordinator decides which one handles a request.
type Store interface {
	// Name identifies the backend in logs and metrics ("postgres", "sqlite").
	Name() string

	// EnsureSchema creates the schema if it does not exist. Safe to
	// call repeatedly.
	EnsureSchema(ctx context.Context) error

	// SeedTimeSlots inserts the reference catalog, skipping rows that
	// already exist.
	SeedTimeSlots(ctx context.Context, slots []models.TimeSlot) error

	// CountTimeSlots returns the size of the seeded catalog. Used by
	// the health check to detect silent data loss.
	CountTimeSlots(ctx context.Context) (int, error)

	// TimeSlotsForDay returns catalog entries for a weekday, ordered by
	// start time.
	TimeSlotsForDay(ctx context.Context, day time.Weekday) ([]models.TimeSlot, error)

	// OccupiedTimes returns the start times on a date held by an
	// appointment in an occupying status.
	OccupiedTimes(ctx context.Context, date string) (map[string]bool, error)

	IsDateBlocked(ctx context.Context, date string) (bool, error)

	// InsertAppointment atomically inserts the row. A violation of the
	// active-slot uniqueness constraint returns ErrSlotTaken; a
	// reference_number collision returns ErrReferenceTaken. On success
	// the ID, CreatedAt and UpdatedAt fields are populated.
	InsertAppointment(ctx context.Context, appt *models.Appointment) error

	ReferenceExists(ctx context.Context, ref string) (bool, error)

	AppointmentByReference(ctx context.Context, ref string) (*models.Appointment, error)

	// CancelByReference moves a confirmed appointment to cancelled.
	// Returns false when no confirmed row matches.
	CancelByReference(ctx context.Context, ref string) (bool, error)

	AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error)

	// UpsertBlockedDate is idempotent; blocking an already blocked date
	// updates the reason.
	UpsertBlockedDate(ctx context.Context, date, reason string) error

	// DeleteBlockedDate returns false when the date was not blocked.
	DeleteBlockedDate(ctx context.Context, date string) (bool, error)

	// DeleteTerminalBefore removes terminal-status appointments dated
	// strictly before the cutoff date and returns the count.
	DeleteTerminalBefore(ctx context.Context, cutoffDate string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
