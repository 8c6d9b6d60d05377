// Package postgres implements the primary store adapter on top of a
// pgx connection pool. Schema management runs through goose migrations
// embedded in the binary.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/tabletime/bookingd/internal/models"
	"github.com/tabletime/bookingd/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store is the postgres-backed adapter.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// New wraps an existing pool. The pool's lifetime belongs to the
// caller; Close releases it.
func New(pool *pgxpool.Pool, logger *zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) EnsureSchema(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) SeedTimeSlots(ctx context.Context, slots []models.TimeSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, slot := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (day_of_week, start_time, end_time, duration_minutes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (day_of_week, start_time) DO NOTHING`,
			int(slot.DayOfWeek), slot.StartTime, slot.EndTime, slot.DurationMinutes,
		)
		if err != nil {
			return fmt.Errorf("seed time slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) CountTimeSlots(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM time_slots`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count time slots: %w", err)
	}
	return count, nil
}

func (s *Store) TimeSlotsForDay(ctx context.Context, day time.Weekday) ([]models.TimeSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time, duration_minutes
		FROM time_slots
		WHERE day_of_week = $1
		ORDER BY start_time`, int(day))
	if err != nil {
		return nil, fmt.Errorf("time slots for day: %w", err)
	}
	defer rows.Close()

	var slots []models.TimeSlot
	for rows.Next() {
		var slot models.TimeSlot
		var dow int
		if err := rows.Scan(&dow, &slot.StartTime, &slot.EndTime, &slot.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan time slot: %w", err)
		}
		slot.DayOfWeek = time.Weekday(dow)
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *Store) OccupiedTimes(ctx context.Context, date string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE appointment_date = $1
		  AND status IN ('pending', 'confirmed')
		  AND deleted_at IS NULL`, date)
	if err != nil {
		return nil, fmt.Errorf("occupied times: %w", err)
	}
	defer rows.Close()

	occupied := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan occupied time: %w", err)
		}
		occupied[t] = true
	}
	return occupied, rows.Err()
}

func (s *Store) IsDateBlocked(ctx context.Context, date string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM blocked_dates WHERE blocked_date = $1`, date).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check blocked date: %w", err)
	}
	return true, nil
}

func (s *Store) InsertAppointment(ctx context.Context, appt *models.Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (
			reference_number, appointment_date, appointment_time,
			appointment_end_time, restaurant_name, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		appt.ReferenceNumber, appt.Date, appt.StartTime,
		appt.EndTime, appt.RestaurantName, string(appt.Status),
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return translateUnique(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM appointments WHERE reference_number = $1`, ref).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return true, nil
}

func (s *Store) AppointmentByReference(ctx context.Context, ref string) (*models.Appointment, error) {
	var appt models.Appointment
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, reference_number, appointment_date, appointment_time,
		       appointment_end_time, restaurant_name, status, created_at, updated_at, deleted_at
		FROM appointments WHERE reference_number = $1`, ref,
	).Scan(
		&appt.ID, &appt.ReferenceNumber, &appt.Date, &appt.StartTime,
		&appt.EndTime, &appt.RestaurantName, &status,
		&appt.CreatedAt, &appt.UpdatedAt, &appt.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment by reference: %w", err)
	}
	appt.Status = models.Status(status)
	return &appt, nil
}

func (s *Store) CancelByReference(ctx context.Context, ref string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE reference_number = $1 AND status = 'confirmed' AND deleted_at IS NULL`, ref)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, reference_number, appointment_date, appointment_time,
		       appointment_end_time, restaurant_name, status, created_at, updated_at, deleted_at
		FROM appointments
		WHERE appointment_date >= $1 AND appointment_date <= $2 AND deleted_at IS NULL
		ORDER BY appointment_date, appointment_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments by range: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var appt models.Appointment
		var status string
		if err := rows.Scan(
			&appt.ID, &appt.ReferenceNumber, &appt.Date, &appt.StartTime,
			&appt.EndTime, &appt.RestaurantName, &status,
			&appt.CreatedAt, &appt.UpdatedAt, &appt.DeletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appt.Status = models.Status(status)
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (s *Store) UpsertBlockedDate(ctx context.Context, date, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocked_dates (blocked_date, reason) VALUES ($1, $2)
		ON CONFLICT (blocked_date) DO UPDATE SET reason = EXCLUDED.reason`,
		date, reason,
	)
	if err != nil {
		return fmt.Errorf("block date: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlockedDate(ctx context.Context, date string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM blocked_dates WHERE blocked_date = $1`, date)
	if err != nil {
		return false, fmt.Errorf("unblock date: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoffDate string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE appointment_date < $1
		  AND status IN ('completed', 'cancelled', 'no-show')`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// translateUnique maps postgres unique violations onto the store
// sentinels by constraint name.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == "idx_appointments_active_slot" {
			return store.ErrSlotTaken
		}
		return store.ErrReferenceTaken
	}
	return fmt.Errorf("insert appointment: %w", err)
}
