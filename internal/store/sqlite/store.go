// Package sqlite implements the embedded backup store. It carries the
// same logical schema as the primary and keeps working when the network
// store is down.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/tabletime/bookingd/internal/models"
	"github.com/tabletime/bookingd/internal/store"
)

// Store is the sqlite-backed adapter.
type Store struct {
	db     *sql.DB
	path   string
	logger *zerolog.Logger
}

// New opens (creating if needed) the embedded database in WAL mode.
func New(path string, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	logger.Info().Str("path", path).Msg("backup store opened")
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Path returns the database file location, used by the snapshot service.
func (s *Store) Path() string { return s.path }

func (s *Store) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference_number TEXT NOT NULL UNIQUE,
			appointment_date TEXT NOT NULL,
			appointment_time TEXT NOT NULL,
			appointment_end_time TEXT NOT NULL,
			restaurant_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME
		)`,
		// The store-level booking invariant: at most one occupying
		// appointment per (date, time).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot
			ON appointments(appointment_date, appointment_time)
			WHERE status IN ('pending', 'confirmed') AND deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(appointment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,

		`CREATE TABLE IF NOT EXISTS blocked_dates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			blocked_date TEXT NOT NULL UNIQUE,
			reason TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS time_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			UNIQUE(day_of_week, start_time)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SeedTimeSlots(ctx context.Context, slots []models.TimeSlot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, slot := range slots {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO time_slots (day_of_week, start_time, end_time, duration_minutes)
			VALUES (?, ?, ?, ?)`,
			int(slot.DayOfWeek), slot.StartTime, slot.EndTime, slot.DurationMinutes,
		)
		if err != nil {
			return fmt.Errorf("seed time slot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) CountTimeSlots(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM time_slots`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count time slots: %w", err)
	}
	return count, nil
}

func (s *Store) TimeSlotsForDay(ctx context.Context, day time.Weekday) ([]models.TimeSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, start_time, end_time, duration_minutes
		FROM time_slots
		WHERE day_of_week = ?
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT appointment_time FROM appointments
		WHERE appointment_date = ?
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
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocked_dates WHERE blocked_date = ?`, date).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check blocked date: %w", err)
	}
	return true, nil
}

func (s *Store) InsertAppointment(ctx context.Context, appt *models.Appointment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (
			reference_number, appointment_date, appointment_time,
			appointment_end_time, restaurant_name, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ReferenceNumber, appt.Date, appt.StartTime,
		appt.EndTime, appt.RestaurantName, string(appt.Status), now, now,
	)
	if err != nil {
		return translateUnique(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

func (s *Store) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM appointments WHERE reference_number = ?`, ref).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference_number, appointment_date, appointment_time,
		       appointment_end_time, restaurant_name, status, created_at, updated_at, deleted_at
		FROM appointments WHERE reference_number = ?`, ref,
	).Scan(
		&appt.ID, &appt.ReferenceNumber, &appt.Date, &appt.StartTime,
		&appt.EndTime, &appt.RestaurantName, &status,
		&appt.CreatedAt, &appt.UpdatedAt, &appt.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment by reference: %w", err)
	}
	appt.Status = models.Status(status)
	return &appt, nil
}

func (s *Store) CancelByReference(ctx context.Context, ref string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = ?
		WHERE reference_number = ? AND status = 'confirmed' AND deleted_at IS NULL`,
		time.Now().UTC(), ref,
	)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_number, appointment_date, appointment_time,
		       appointment_end_time, restaurant_name, status, created_at, updated_at, deleted_at
		FROM appointments
		WHERE appointment_date >= ? AND appointment_date <= ? AND deleted_at IS NULL
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_dates (blocked_date, reason) VALUES (?, ?)
		ON CONFLICT(blocked_date) DO UPDATE SET reason = excluded.reason`,
		date, reason,
	)
	if err != nil {
		return fmt.Errorf("block date: %w", err)
	}
	return nil
}

func (s *Store) DeleteBlockedDate(ctx context.Context, date string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_dates WHERE blocked_date = ?`, date)
	if err != nil {
		return false, fmt.Errorf("unblock date: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoffDate string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM appointments
		WHERE appointment_date < ?
		  AND status IN ('completed', 'cancelled', 'no-show')`, cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// translateUnique maps sqlite unique-constraint violations onto the
// store sentinels so the engine can tell a lost slot race from a
// reference collision.
func translateUnique(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(err.Error(), "reference_number") {
			return store.ErrReferenceTaken
		}
		return store.ErrSlotTaken
	}
	return fmt.Errorf("insert appointment: %w", err)
}
