package booking

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletime/bookingd/internal/metrics"
	"github.com/tabletime/bookingd/internal/models"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore, *memStore) {
	t.Helper()
	primary := newMemStore("primary")
	backup := newMemStore("backup")
	logger := zerolog.New(io.Discard)

	coordinator := NewCoordinator(
		NewEngine(primary, 0, &logger),
		NewEngine(backup, 0, &logger),
		// Backoff long enough that timers never fire mid-test.
		CoordinatorConfig{RecoveryBackoff: time.Hour},
		metrics.New("test", prometheus.NewRegistry()),
		&logger,
	)
	require.NoError(t, coordinator.Initialize(context.Background()))
	return coordinator, primary, backup
}

func TestCoordinatorPrimarySuccess(t *testing.T) {
	coordinator, primary, backup := newTestCoordinator(t)
	ctx := context.Background()

	result, err := coordinator.CreateAppointment(ctx, models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	require.NoError(t, err)

	_, err = primary.AppointmentByReference(ctx, result.ReferenceNumber)
	assert.NoError(t, err)
	_, err = backup.AppointmentByReference(ctx, result.ReferenceNumber)
	assert.Error(t, err)
	assert.Equal(t, "available", coordinator.Status().Primary)
}

func TestCoordinatorPrimaryFailFallback(t *testing.T) {
	coordinator, primary, backup := newTestCoordinator(t)
	ctx := context.Background()
	primary.failing.Store(true)

	result, err := coordinator.CreateAppointment(ctx, models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	require.NoError(t, err)
	assert.Regexp(t, ReferencePattern, result.ReferenceNumber)

	_, err = backup.AppointmentByReference(ctx, result.ReferenceNumber)
	assert.NoError(t, err)
	assert.Equal(t, "unavailable", coordinator.Status().Primary)

	// Later calls route straight to the backup without touching the
	// failed primary.
	slots, err := coordinator.AvailableSlots(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, slots, 8)
}

func TestCoordinatorDomainErrorNoFailover(t *testing.T) {
	coordinator, _, backup := newTestCoordinator(t)
	ctx := context.Background()
	req := models.AppointmentRequest{Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme"}

	_, err := coordinator.CreateAppointment(ctx, req)
	require.NoError(t, err)

	// A slot conflict is a business outcome, not a store failure: the
	// primary stays available and the backup is never consulted.
	_, err = coordinator.CreateAppointment(ctx, req)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, "available", coordinator.Status().Primary)

	appts, err := backup.AppointmentsByDateRange(ctx, testDate, testDate)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestCoordinatorBothStoresFail(t *testing.T) {
	coordinator, primary, backup := newTestCoordinator(t)
	primary.failing.Store(true)
	backup.failing.Store(true)

	_, err := coordinator.CreateAppointment(context.Background(), models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCoordinatorHealthCheckRecovers(t *testing.T) {
	coordinator, primary, _ := newTestCoordinator(t)
	ctx := context.Background()
	primary.failing.Store(true)

	_, err := coordinator.AvailableSlots(ctx, testDate)
	require.NoError(t, err)
	require.Equal(t, "unavailable", coordinator.Status().Primary)

	// A clean probe flips the primary back and the next write lands
	// on it.
	primary.failing.Store(false)
	coordinator.CheckPrimary(ctx)
	assert.Equal(t, "available", coordinator.Status().Primary)

	result, err := coordinator.CreateAppointment(ctx, models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	require.NoError(t, err)
	_, err = primary.AppointmentByReference(ctx, result.ReferenceNumber)
	assert.NoError(t, err)
}

func TestCoordinatorHealthCheckReseeds(t *testing.T) {
	coordinator, primary, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Simulate silent data loss in the reference catalog.
	primary.dropSeed()
	count, err := primary.CountTimeSlots(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	coordinator.CheckPrimary(ctx)

	count, err = primary.CountTimeSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultExpectedSlotCount, count)
}

func TestCoordinatorRecoveryAttempt(t *testing.T) {
	coordinator, primary, _ := newTestCoordinator(t)
	primary.failing.Store(true)

	_, err := coordinator.AvailableSlots(context.Background(), testDate)
	require.NoError(t, err)
	require.Equal(t, "unavailable", coordinator.Status().Primary)

	primary.failing.Store(false)
	coordinator.attemptRecovery()
	assert.Equal(t, "available", coordinator.Status().Primary)
	assert.False(t, coordinator.recoveryInFlight.Load())
}

func TestCoordinatorInitializeSingleFlight(t *testing.T) {
	primary := newMemStore("primary")
	primary.slowBootstrap = 50 * time.Millisecond
	backup := newMemStore("backup")
	logger := zerolog.New(io.Discard)

	coordinator := NewCoordinator(
		NewEngine(primary, 0, &logger),
		NewEngine(backup, 0, &logger),
		CoordinatorConfig{RecoveryBackoff: time.Hour},
		metrics.New("test", prometheus.NewRegistry()),
		&logger,
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, coordinator.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	// Concurrent callers share the one in-flight bootstrap.
	assert.Equal(t, int32(1), primary.bootstrapCalls.Load())
	assert.Equal(t, int32(1), backup.bootstrapCalls.Load())
}

func TestCoordinatorInitializePrimaryDownDegrades(t *testing.T) {
	primary := newMemStore("primary")
	primary.failing.Store(true)
	backup := newMemStore("backup")
	logger := zerolog.New(io.Discard)

	coordinator := NewCoordinator(
		NewEngine(primary, 0, &logger),
		NewEngine(backup, 0, &logger),
		CoordinatorConfig{RecoveryBackoff: time.Hour},
		metrics.New("test", prometheus.NewRegistry()),
		&logger,
	)

	require.NoError(t, coordinator.Initialize(context.Background()))
	assert.Equal(t, "unavailable", coordinator.Status().Primary)

	result, err := coordinator.CreateAppointment(context.Background(), models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ReferenceNumber)
}

func TestCoordinatorCancelAndBlockThroughFallback(t *testing.T) {
	coordinator, primary, _ := newTestCoordinator(t)
	ctx := context.Background()

	result, err := coordinator.CreateAppointment(ctx, models.AppointmentRequest{
		Date: testDate, Time: testTime, RestaurantName: "Basil & Thyme",
	})
	require.NoError(t, err)

	cancelled, err := coordinator.CancelAppointment(ctx, result.ReferenceNumber)
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, coordinator.BlockDate(ctx, testDate, "private event"))
	available, err := coordinator.IsSlotAvailable(ctx, testDate, testTime)
	require.NoError(t, err)
	assert.False(t, available)

	removed, err := coordinator.UnblockDate(ctx, testDate)
	require.NoError(t, err)
	assert.True(t, removed)

	// Block on the primary persists even while cancel ran there too.
	blocked, err := primary.IsDateBlocked(ctx, testDate)
	require.NoError(t, err)
	assert.False(t, blocked)
}
