package booking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tabletime/bookingd/internal/metrics"
	"github.com/tabletime/bookingd/internal/models"
)

// CoordinatorConfig tunes failover and health-check behaviour.
type CoordinatorConfig struct {
	// RecoveryBackoff is the delay before a recovery attempt after a
	// primary failure.
	RecoveryBackoff time.Duration

	// HealthInterval is the period of the primary health check.
	HealthInterval time.Duration

	// StartupProbeDelay is how soon after Run the first check fires.
	StartupProbeDelay time.Duration

	// ExpectedSlotCount is the seeded catalog size; a smaller count on
	// the primary is treated as silent data loss and repaired.
	ExpectedSlotCount int
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.RecoveryBackoff <= 0 {
		c.RecoveryBackoff = 5 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Minute
	}
	if c.StartupProbeDelay <= 0 {
		c.StartupProbeDelay = 10 * time.Second
	}
	if c.ExpectedSlotCount <= 0 {
		c.ExpectedSlotCount = DefaultExpectedSlotCount
	}
	return c
}

// StoreStatus is the read-only observability summary.
type StoreStatus struct {
	Primary       string    `json:"primary"`
	Backup        string    `json:"backup"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Coordinator wraps the primary- and backup-backed engines, tracks
// primary availability and routes every public operation. Primary
// failures fall through to the backup transparently; backup failures
// surface as ErrStoreUnavailable.
type Coordinator struct {
	primary *Engine
	backup  *Engine
	cfg     CoordinatorConfig
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	primaryDown      atomic.Bool
	recoveryInFlight atomic.Bool
	initGroup        singleflight.Group

	mu        sync.Mutex
	lastCheck time.Time
}

// NewCoordinator wires the engine pair.
func NewCoordinator(primary, backup *Engine, cfg CoordinatorConfig, m *metrics.Metrics, logger *zerolog.Logger) *Coordinator {
	c := &Coordinator{
		primary: primary,
		backup:  backup,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
	}
	m.PrimaryUp.Set(1)
	return c
}

// Initialize bootstraps both stores exactly once even under concurrent
// callers; later callers share the in-flight result. A failed primary
// bootstrap degrades to backup-only operation instead of failing.
func (c *Coordinator) Initialize(ctx context.Context) error {
	_, err, _ := c.initGroup.Do("initialize", func() (any, error) {
		if err := c.primary.Bootstrap(ctx); err != nil {
			c.markPrimaryDown("initialize", err)
		}
		if err := c.backup.Bootstrap(ctx); err != nil {
			return nil, fmt.Errorf("%w: backup bootstrap: %v", ErrStoreUnavailable, err)
		}
		return nil, nil
	})
	return err
}

// do runs the operation on the primary when it is considered available,
// falling through to the backup on a store failure. Domain outcomes
// (slot conflicts, reference exhaustion) are returned as-is and never
// trigger failover.
func (c *Coordinator) do(ctx context.Context, op string, fn func(*Engine) error) (*Engine, error) {
	if !c.primaryDown.Load() {
		err := fn(c.primary)
		if err == nil || isDomainErr(err) {
			return c.primary, err
		}
		c.markPrimaryDown(op, err)
	}

	c.metrics.Failovers.Inc()
	err := fn(c.backup)
	if err == nil || isDomainErr(err) {
		return c.backup, err
	}

	c.logger.Error().Str("op", op).Err(err).Msg("backup store failed")
	return c.backup, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// markPrimaryDown flips availability and schedules a single delayed
// recovery attempt. The request path never waits on recovery.
func (c *Coordinator) markPrimaryDown(op string, err error) {
	if c.primaryDown.CompareAndSwap(false, true) {
		c.metrics.PrimaryUp.Set(0)
		c.logger.Warn().Str("op", op).Err(err).Msg("primary store marked unavailable")
	}

	if c.recoveryInFlight.CompareAndSwap(false, true) {
		time.AfterFunc(c.cfg.RecoveryBackoff, c.attemptRecovery)
	}
}

// attemptRecovery re-runs the primary bootstrap. A failed attempt is
// logged and left to the next health-check interval.
func (c *Coordinator) attemptRecovery() {
	defer c.recoveryInFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.primary.Bootstrap(ctx); err != nil {
		c.metrics.RecoveryAttempts.WithLabelValues("failure").Inc()
		c.logger.Warn().Err(err).Msg("primary recovery attempt failed")
		return
	}

	c.primaryDown.Store(false)
	c.metrics.PrimaryUp.Set(1)
	c.metrics.RecoveryAttempts.WithLabelValues("success").Inc()
	c.logger.Info().Msg("primary store recovered")
}

// Run drives the periodic health check until ctx is cancelled. The
// first probe fires shortly after startup.
func (c *Coordinator) Run(ctx context.Context) {
	startup := time.NewTimer(c.cfg.StartupProbeDelay)
	defer startup.Stop()

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			c.CheckPrimary(ctx)
		case <-ticker.C:
			c.CheckPrimary(ctx)
		}
	}
}

// CheckPrimary probes the primary's seeded catalog. A query failure
// marks the primary down; a short count is treated as silent data loss
// and repaired through the seeding path. A clean probe while the
// primary is marked down restores it.
func (c *Coordinator) CheckPrimary(ctx context.Context) {
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	count, err := c.primary.Store().CountTimeSlots(ctx)
	if err != nil {
		c.markPrimaryDown("health_check", err)
		return
	}

	if count < c.cfg.ExpectedSlotCount {
		c.logger.Warn().
			Int("count", count).
			Int("expected", c.cfg.ExpectedSlotCount).
			Msg("time slot catalog short, reseeding")
		if err := c.primary.Bootstrap(ctx); err != nil {
			c.markPrimaryDown("health_reseed", err)
			return
		}
	}

	if c.primaryDown.CompareAndSwap(true, false) {
		c.metrics.PrimaryUp.Set(1)
		c.logger.Info().Msg("primary store available again")
	}
}

// Status reports the current routing state. The backup has no health
// tracking of its own: it either serves a request or the request fails.
func (c *Coordinator) Status() StoreStatus {
	c.mu.Lock()
	last := c.lastCheck
	c.mu.Unlock()

	primary := "available"
	if c.primaryDown.Load() {
		primary = "unavailable"
	}
	return StoreStatus{Primary: primary, Backup: "available", LastCheckedAt: last}
}

// CreateAppointment books a slot through whichever store is serving.
func (c *Coordinator) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*CreateResult, error) {
	var result *CreateResult
	served, err := c.do(ctx, "create_appointment", func(eng *Engine) error {
		r, err := eng.CreateAppointment(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			c.metrics.SlotConflicts.Inc()
		}
		return nil, err
	}
	c.metrics.BookingsCreated.WithLabelValues(served.Store().Name()).Inc()
	return result, nil
}

// AvailableSlots lists the catalog with availability for a date.
func (c *Coordinator) AvailableSlots(ctx context.Context, date string) ([]models.SlotAvailability, error) {
	var slots []models.SlotAvailability
	_, err := c.do(ctx, "available_slots", func(eng *Engine) error {
		s, err := eng.AvailableSlots(ctx, date)
		if err != nil {
			return err
		}
		slots = s
		return nil
	})
	return slots, err
}

// IsSlotAvailable checks a single slot.
func (c *Coordinator) IsSlotAvailable(ctx context.Context, date, startTime string) (bool, error) {
	var available bool
	_, err := c.do(ctx, "is_slot_available", func(eng *Engine) error {
		a, err := eng.IsSlotAvailable(ctx, date, startTime)
		if err != nil {
			return err
		}
		available = a
		return nil
	})
	return available, err
}

// CancelAppointment cancels a confirmed appointment by reference.
func (c *Coordinator) CancelAppointment(ctx context.Context, ref string) (bool, error) {
	var cancelled bool
	_, err := c.do(ctx, "cancel_appointment", func(eng *Engine) error {
		ok, err := eng.CancelAppointment(ctx, ref)
		if err != nil {
			return err
		}
		cancelled = ok
		return nil
	})
	return cancelled, err
}

// AvailableDates enumerates bookable dates in a month.
func (c *Coordinator) AvailableDates(ctx context.Context, year int, month time.Month) ([]string, error) {
	var dates []string
	_, err := c.do(ctx, "available_dates", func(eng *Engine) error {
		d, err := eng.AvailableDates(ctx, year, month)
		if err != nil {
			return err
		}
		dates = d
		return nil
	})
	return dates, err
}

// BlockDate makes every slot on the date unavailable.
func (c *Coordinator) BlockDate(ctx context.Context, date, reason string) error {
	_, err := c.do(ctx, "block_date", func(eng *Engine) error {
		return eng.BlockDate(ctx, date, reason)
	})
	return err
}

// UnblockDate removes an administrative block.
func (c *Coordinator) UnblockDate(ctx context.Context, date string) (bool, error) {
	var removed bool
	_, err := c.do(ctx, "unblock_date", func(eng *Engine) error {
		ok, err := eng.UnblockDate(ctx, date)
		if err != nil {
			return err
		}
		removed = ok
		return nil
	})
	return removed, err
}

// CleanupExpired removes terminal appointments past retention.
func (c *Coordinator) CleanupExpired(ctx context.Context, daysToKeep int) (int64, error) {
	var deleted int64
	_, err := c.do(ctx, "cleanup_expired", func(eng *Engine) error {
		n, err := eng.CleanupExpired(ctx, daysToKeep)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err == nil && deleted > 0 {
		c.metrics.CleanupDeleted.Add(float64(deleted))
	}
	return deleted, err
}

// AppointmentByReference looks up one appointment; a miss surfaces as
// store.ErrNotFound without triggering failover.
func (c *Coordinator) AppointmentByReference(ctx context.Context, ref string) (*models.Appointment, error) {
	var appt *models.Appointment
	_, err := c.do(ctx, "appointment_by_reference", func(eng *Engine) error {
		a, err := eng.AppointmentByReference(ctx, ref)
		if err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// AppointmentsByDateRange lists appointments for reporting.
func (c *Coordinator) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	var appts []models.Appointment
	_, err := c.do(ctx, "appointments_by_range", func(eng *Engine) error {
		a, err := eng.AppointmentsByDateRange(ctx, from, to)
		if err != nil {
			return err
		}
		appts = a
		return nil
	})
	return appts, err
}
