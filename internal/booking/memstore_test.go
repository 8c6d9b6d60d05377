package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabletime/bookingd/internal/models"
	"github.com/tabletime/bookingd/internal/store"
)

var errOffline = errors.New("store offline")

// memStore is an in-memory store.Store that enforces the same
// uniqueness rules as the real adapters, with failure injection for
// failover tests.
type memStore struct {
	name string

	mu           sync.Mutex
	seeded       []models.TimeSlot
	appointments map[string]*models.Appointment // by reference
	blocked      map[string]string
	nextID       int64

	failing        atomic.Bool
	refsExhausted  atomic.Bool
	bootstrapCalls atomic.Int32
	slowBootstrap  time.Duration
}

func newMemStore(name string) *memStore {
	return &memStore{
		name:         name,
		appointments: make(map[string]*models.Appointment),
		blocked:      make(map[string]string),
	}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) EnsureSchema(ctx context.Context) error {
	if m.failing.Load() {
		return errOffline
	}
	if m.slowBootstrap > 0 {
		time.Sleep(m.slowBootstrap)
	}
	m.bootstrapCalls.Add(1)
	return nil
}

func (m *memStore) SeedTimeSlots(ctx context.Context, slots []models.TimeSlot) error {
	if m.failing.Load() {
		return errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range slots {
		exists := false
		for _, have := range m.seeded {
			if have.DayOfWeek == slot.DayOfWeek && have.StartTime == slot.StartTime {
				exists = true
				break
			}
		}
		if !exists {
			m.seeded = append(m.seeded, slot)
		}
	}
	return nil
}

func (m *memStore) CountTimeSlots(ctx context.Context) (int, error) {
	if m.failing.Load() {
		return 0, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seeded), nil
}

func (m *memStore) dropSeed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeded = nil
}

func (m *memStore) TimeSlotsForDay(ctx context.Context, day time.Weekday) ([]models.TimeSlot, error) {
	if m.failing.Load() {
		return nil, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var slots []models.TimeSlot
	for _, slot := range m.seeded {
		if slot.DayOfWeek == day {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (m *memStore) OccupiedTimes(ctx context.Context, date string) (map[string]bool, error) {
	if m.failing.Load() {
		return nil, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	occupied := make(map[string]bool)
	for _, appt := range m.appointments {
		if appt.Date == date && models.Occupies(appt.Status) && appt.DeletedAt == nil {
			occupied[appt.StartTime] = true
		}
	}
	return occupied, nil
}

func (m *memStore) IsDateBlocked(ctx context.Context, date string) (bool, error) {
	if m.failing.Load() {
		return false, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[date]
	return ok, nil
}

func (m *memStore) InsertAppointment(ctx context.Context, appt *models.Appointment) error {
	if m.failing.Load() {
		return errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.appointments[appt.ReferenceNumber]; ok {
		return store.ErrReferenceTaken
	}
	for _, have := range m.appointments {
		if have.Date == appt.Date && have.StartTime == appt.StartTime &&
			models.Occupies(have.Status) && have.DeletedAt == nil {
			return store.ErrSlotTaken
		}
	}

	m.nextID++
	appt.ID = m.nextID
	now := time.Now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	clone := *appt
	m.appointments[appt.ReferenceNumber] = &clone
	return nil
}

func (m *memStore) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	if m.failing.Load() {
		return false, errOffline
	}
	if m.refsExhausted.Load() {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.appointments[ref]
	return ok, nil
}

func (m *memStore) AppointmentByReference(ctx context.Context, ref string) (*models.Appointment, error) {
	if m.failing.Load() {
		return nil, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *appt
	return &clone, nil
}

func (m *memStore) CancelByReference(ctx context.Context, ref string) (bool, error) {
	if m.failing.Load() {
		return false, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[ref]
	if !ok || appt.Status != models.StatusConfirmed || appt.DeletedAt != nil {
		return false, nil
	}
	appt.Status = models.StatusCancelled
	appt.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	if m.failing.Load() {
		return nil, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var appts []models.Appointment
	for _, appt := range m.appointments {
		if appt.Date >= from && appt.Date <= to && appt.DeletedAt == nil {
			appts = append(appts, *appt)
		}
	}
	return appts, nil
}

func (m *memStore) UpsertBlockedDate(ctx context.Context, date, reason string) error {
	if m.failing.Load() {
		return errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[date] = reason
	return nil
}

func (m *memStore) DeleteBlockedDate(ctx context.Context, date string) (bool, error) {
	if m.failing.Load() {
		return false, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[date]
	delete(m.blocked, date)
	return ok, nil
}

func (m *memStore) DeleteTerminalBefore(ctx context.Context, cutoffDate string) (int64, error) {
	if m.failing.Load() {
		return 0, errOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for ref, appt := range m.appointments {
		if appt.Date < cutoffDate && models.IsTerminal(appt.Status) {
			delete(m.appointments, ref)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memStore) Ping(ctx context.Context) error {
	if m.failing.Load() {
		return errOffline
	}
	return nil
}

func (m *memStore) Close() error { return nil }
