package noshow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parktayo/internal/bookings"
	"parktayo/internal/shared/apperr"
)

type fakeRepository struct {
	entries map[uuid.UUID]*ScheduledNoShow
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{entries: make(map[uuid.UUID]*ScheduledNoShow)}
}

func (f *fakeRepository) Create(ctx context.Context, entry *ScheduledNoShow) error {
	if _, exists := f.entries[entry.BookingID]; exists {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	copied := *entry
	f.entries[entry.BookingID] = &copied
	return nil
}

func (f *fakeRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*ScheduledNoShow, error) {
	entry, ok := f.entries[bookingID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeRepository) Save(ctx context.Context, entry *ScheduledNoShow) error {
	copied := *entry
	f.entries[entry.BookingID] = &copied
	return nil
}

func (f *fakeRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledNoShow, error) {
	var due []ScheduledNoShow
	for _, entry := range f.entries {
		if entry.Status == StatusPending && !entry.FireAt.After(now) {
			due = append(due, *entry)
		}
	}
	return due, nil
}

func (f *fakeRepository) ListPending(ctx context.Context) ([]ScheduledNoShow, error) {
	var pending []ScheduledNoShow
	for _, entry := range f.entries {
		if entry.Status == StatusPending {
			pending = append(pending, *entry)
		}
	}
	return pending, nil
}

func (f *fakeRepository) Clear(ctx context.Context, bookingID uuid.UUID, reason string) error {
	entry, ok := f.entries[bookingID]
	if !ok || entry.Status != StatusPending {
		return nil
	}
	entry.Status = StatusCleared
	entry.ClearedReason = reason
	return nil
}

type fakeBookingService struct {
	bookings    map[uuid.UUID]*bookings.Booking
	commitErr   error
	commitCalls int
}

func newFakeBookingService() *fakeBookingService {
	return &fakeBookingService{bookings: make(map[uuid.UUID]*bookings.Booking)}
}

func (f *fakeBookingService) LoadBooking(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error) {
	booking, ok := f.bookings[bookingID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingService) CommitNoShow(ctx context.Context, bookingID uuid.UUID) (*bookings.NoShowOutcome, error) {
	f.commitCalls++
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	booking := f.bookings[bookingID]
	booking.Status = bookings.StatusNoShow
	return &bookings.NoShowOutcome{BookingID: bookingID, PenaltyCaptured: 25}, nil
}

func newTestScheduler(repo Repository, svc BookingService, now time.Time) *Scheduler {
	sched := NewScheduler(repo, svc, nil, DefaultPolicy())
	sched.now = func() time.Time { return now }
	return sched
}

func acceptedBooking(checkTime time.Time) *bookings.Booking {
	return &bookings.Booking{
		ID:              uuid.New(),
		Status:          bookings.StatusAccepted,
		NoShowCheckTime: &checkTime,
	}
}

func TestScheduleThenClearDisarms(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	bookingID := uuid.New()
	require.NoError(t, sched.Schedule(ctx, bookingID, now.Add(30*time.Minute)))
	require.NoError(t, sched.Clear(ctx, bookingID, "arrived"))

	entry, err := repo.GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, entry.Status)
	assert.Equal(t, "arrived", entry.ClearedReason)

	// Clearing again is a no-op.
	require.NoError(t, sched.Clear(ctx, bookingID, "duplicate"))
	entry, err = repo.GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, "arrived", entry.ClearedReason)
}

func TestScheduleIsIdempotentPerBooking(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	bookingID := uuid.New()
	first := now.Add(20 * time.Minute)
	require.NoError(t, sched.Schedule(ctx, bookingID, first))
	require.NoError(t, sched.Schedule(ctx, bookingID, now.Add(2*time.Hour)))

	entry, err := repo.GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.True(t, entry.FireAt.Equal(first), "retried arm must not move the deadline")
}

func TestTickFiresElapsedDeadline(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	deadline := now.Add(-1 * time.Minute)
	booking := acceptedBooking(deadline)
	svc.bookings[booking.ID] = booking
	require.NoError(t, sched.Schedule(ctx, booking.ID, deadline))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.Fired)
	assert.Equal(t, 1, svc.commitCalls)

	entry, err := repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, entry.Status)

	// A second pass finds nothing due.
	stats = sched.Tick(ctx)
	assert.Equal(t, 0, stats.Evaluated)
	assert.Equal(t, 1, svc.commitCalls)
}

func TestTickClearsWhenDriverArrived(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	deadline := now.Add(-1 * time.Minute)
	booking := acceptedBooking(deadline)
	booking.Status = bookings.StatusParked
	svc.bookings[booking.ID] = booking
	require.NoError(t, sched.Schedule(ctx, booking.ID, deadline))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Cleared)
	assert.Equal(t, 0, svc.commitCalls)

	entry, err := repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, entry.Status)
}

func TestTickClearsWhenApproachZoneEntered(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	deadline := now.Add(-1 * time.Minute)
	booking := acceptedBooking(deadline)
	booking.HasEnteredApproachZone = true
	svc.bookings[booking.ID] = booking
	require.NoError(t, sched.Schedule(ctx, booking.ID, deadline))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Cleared)
	assert.Equal(t, 0, svc.commitCalls)
}

func TestEarlyWakeReArmsToBookingDeadline(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	// Entry is due but the booking's deadline moved 10 minutes out (ETA
	// refresh). First two evaluations re-arm; the third proceeds.
	deadline := now.Add(10 * time.Minute)
	booking := acceptedBooking(deadline)
	svc.bookings[booking.ID] = booking
	require.NoError(t, sched.Schedule(ctx, booking.ID, now.Add(-1*time.Minute)))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.ReArmed)
	assert.Equal(t, 0, svc.commitCalls)

	entry, err := repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ReArmCount)
	assert.True(t, entry.FireAt.Equal(deadline))

	// Force it due again twice without the deadline arriving.
	entry.FireAt = now.Add(-1 * time.Minute)
	require.NoError(t, repo.Save(ctx, entry))
	sched.Tick(ctx)

	entry, err = repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.ReArmCount)

	entry.FireAt = now.Add(-1 * time.Minute)
	require.NoError(t, repo.Save(ctx, entry))
	stats = sched.Tick(ctx)

	assert.Equal(t, 1, stats.Fired)
	assert.Equal(t, 1, svc.commitCalls)
}

func TestConcurrentTransitionClearsInsteadOfFiring(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	deadline := now.Add(-1 * time.Minute)
	booking := acceptedBooking(deadline)
	svc.bookings[booking.ID] = booking
	svc.commitErr = apperr.New(apperr.KindConflict, "booking no longer accepted")
	require.NoError(t, sched.Schedule(ctx, booking.ID, deadline))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Cleared)
	assert.Equal(t, 0, stats.Fired)

	entry, err := repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, entry.Status)
}

func TestEvaluationFailureBacksOffThenFails(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	deadline := now.Add(-1 * time.Minute)
	booking := acceptedBooking(deadline)
	svc.bookings[booking.ID] = booking
	svc.commitErr = errors.New("wallet service unavailable")
	require.NoError(t, sched.Schedule(ctx, booking.ID, deadline))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Retried)

	entry, err := repo.GetByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempt)
	assert.Equal(t, StatusPending, entry.Status)
	assert.True(t, entry.FireAt.After(now), "retry must be deferred")
	assert.Contains(t, entry.LastError, "unavailable")

	// Exhaust the remaining attempts.
	for i := 0; i < sched.policy.MaxAttempts-1; i++ {
		entry.FireAt = now.Add(-1 * time.Second)
		require.NoError(t, repo.Save(ctx, entry))
		sched.Tick(ctx)
		entry, err = repo.GetByBookingID(ctx, booking.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, sched.policy.MaxAttempts, entry.Attempt)

	// A failed entry is never picked up again.
	stats = sched.Tick(ctx)
	assert.Equal(t, 0, stats.Evaluated)
}

func TestMissingBookingClearsEntry(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	svc := newFakeBookingService()
	now := time.Now()
	sched := newTestScheduler(repo, svc, now)

	bookingID := uuid.New()
	require.NoError(t, sched.Schedule(ctx, bookingID, now.Add(-1*time.Minute)))

	stats := sched.Tick(ctx)
	assert.Equal(t, 1, stats.Cleared)

	entry, err := repo.GetByBookingID(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, StatusCleared, entry.Status)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	sched := NewScheduler(newFakeRepository(), newFakeBookingService(), nil, DefaultPolicy())

	assert.Equal(t, 15*time.Second, sched.backoff(1))
	assert.Equal(t, 30*time.Second, sched.backoff(2))
	assert.Equal(t, 60*time.Second, sched.backoff(3))
	assert.Equal(t, 2*time.Minute, sched.backoff(4))
	assert.Equal(t, 4*time.Minute, sched.backoff(5))
	assert.Equal(t, 5*time.Minute, sched.backoff(6))
	assert.Equal(t, 5*time.Minute, sched.backoff(10))
}
