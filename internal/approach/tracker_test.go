package approach

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktayo/internal/bookings"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/spaces"
)

// Rizal Park, Manila. One degree of latitude is roughly 111 km.
const (
	spaceLat = 14.5826
	spaceLng = 120.9787
)

type fakeBookingService struct {
	bookings    map[uuid.UUID]*bookings.Booking
	markedAt    map[uuid.UUID]time.Time
	markedCalls int
}

func newFakeBookingService() *fakeBookingService {
	return &fakeBookingService{
		bookings: make(map[uuid.UUID]*bookings.Booking),
		markedAt: make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeBookingService) LoadBooking(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error) {
	booking, ok := f.bookings[bookingID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "booking not found")
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingService) MarkApproachEntered(ctx context.Context, bookingID uuid.UUID, at time.Time) (*bookings.Booking, error) {
	f.markedCalls++
	booking := f.bookings[bookingID]
	booking.HasEnteredApproachZone = true
	booking.FirstApproachAt = &at
	f.markedAt[bookingID] = at
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingService) ListAcceptedBookings(ctx context.Context) ([]bookings.Booking, error) {
	var accepted []bookings.Booking
	for _, booking := range f.bookings {
		if booking.Status == bookings.StatusAccepted {
			accepted = append(accepted, *booking)
		}
	}
	return accepted, nil
}

type fakeSpaceLocator struct {
	spaces map[uuid.UUID]*spaces.ParkingSpace
}

func (f *fakeSpaceLocator) GetSpace(ctx context.Context, id uuid.UUID) (*spaces.ParkingSpace, error) {
	space, ok := f.spaces[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "space not found")
	}
	return space, nil
}

type fakeClearer struct {
	cleared map[uuid.UUID]string
	onClear func(uuid.UUID)
}

func (f *fakeClearer) Clear(ctx context.Context, bookingID uuid.UUID, reason string) error {
	f.cleared[bookingID] = reason
	if f.onClear != nil {
		f.onClear(bookingID)
	}
	return nil
}

type trackerFixture struct {
	tracker   *Tracker
	svc       *fakeBookingService
	clearer   *fakeClearer
	publisher *realtime.CapturingPublisher
	booking   *bookings.Booking
	now       time.Time
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()

	svc := newFakeBookingService()
	clearer := &fakeClearer{cleared: make(map[uuid.UUID]string)}
	publisher := &realtime.CapturingPublisher{}

	spaceID := uuid.New()
	locator := &fakeSpaceLocator{spaces: map[uuid.UUID]*spaces.ParkingSpace{
		spaceID: {ID: spaceID, Latitude: spaceLat, Longitude: spaceLng},
	}}

	booking := &bookings.Booking{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		LandlordID: uuid.New(),
		SpaceID:    spaceID,
		Status:     bookings.StatusAccepted,
	}
	svc.bookings[booking.ID] = booking

	now := time.Now()
	tracker := NewTracker(svc, locator, clearer, publisher, DefaultConfig())
	tracker.now = func() time.Time { return now }

	return &trackerFixture{
		tracker:   tracker,
		svc:       svc,
		clearer:   clearer,
		publisher: publisher,
		booking:   booking,
		now:       now,
	}
}

func TestIngestDetectsZoneEntryOnce(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)

	// ~1.1 km out, then ~100 m out.
	far := LocationUpdate{Latitude: spaceLat + 0.01, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}
	near := LocationUpdate{Latitude: spaceLat + 0.0009, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(30 * time.Second)}

	result, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{far, near})
	require.NoError(t, err)

	assert.True(t, result.Entered)
	assert.Equal(t, 2, result.Accepted)
	assert.InDelta(t, 100, result.MinDistanceMeters, 10)
	assert.Equal(t, 1, fx.svc.markedCalls)
	assert.Equal(t, "entered approach zone", fx.clearer.cleared[fx.booking.ID])
	assert.Equal(t,
		[]realtime.EventType{realtime.EventApproachEntered, realtime.EventApproachEntered},
		fx.publisher.Types())

	// More in-zone samples never re-fire the entry.
	later := LocationUpdate{Latitude: spaceLat + 0.0005, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(time.Minute)}
	result, err = fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{later})
	require.NoError(t, err)
	assert.True(t, result.Entered)
	assert.Equal(t, 1, fx.svc.markedCalls)
	assert.Len(t, fx.publisher.Events, 2)
}

func TestIngestDiscardsInaccurateAndStaleSamples(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)

	first := LocationUpdate{Latitude: spaceLat + 0.01, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}
	result, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{first})
	require.NoError(t, err)
	require.Equal(t, 1, result.Accepted)

	blurry := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 250, Timestamp: fx.now.Add(10 * time.Second)}
	backfill := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(-10 * time.Second)}
	duplicate := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}

	result, err = fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{blurry, backfill, duplicate})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Accepted)
	assert.Equal(t, 3, result.Discarded)
	assert.False(t, result.Entered, "discarded in-zone samples must not trigger entry")
	assert.Equal(t, 0, fx.svc.markedCalls)
}

func TestZoneEntryReleasesLockBeforeCollaborators(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)

	// The scheduler drops the presence record when it clears; that call
	// re-enters the tracker and must not find the lock still held.
	fx.clearer.onClear = func(id uuid.UUID) { fx.tracker.Forget(id) }

	done := make(chan *IngestResult, 1)
	go func() {
		sample := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}
		result, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{sample})
		assert.NoError(t, err)
		done <- result
	}()

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.True(t, result.Entered)
	case <-time.After(2 * time.Second):
		t.Fatal("zone entry deadlocked against a re-entrant tracker call")
	}

	assert.Equal(t, 1, fx.svc.markedCalls)
	assert.Equal(t, "entered approach zone", fx.clearer.cleared[fx.booking.ID])
	assert.Len(t, fx.publisher.Events, 2)
}

func TestIngestRejectsAnotherUsersBooking(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)

	sample := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}
	_, err := fx.tracker.Ingest(ctx, uuid.New(), fx.booking.ID, []LocationUpdate{sample})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestIngestRejectsBookingNotAwaitingArrival(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)
	fx.booking.Status = bookings.StatusParked

	sample := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now}
	_, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{sample})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestProbeEmitsStalePresenceOnce(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)

	sample := LocationUpdate{Latitude: spaceLat + 0.01, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(-2 * time.Minute)}
	_, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{sample})
	require.NoError(t, err)

	fx.tracker.probe(ctx)
	fx.tracker.probe(ctx)

	require.Len(t, fx.publisher.Events, 1, "stale presence fires once per silence")
	event := fx.publisher.Events[0]
	assert.Equal(t, realtime.EventStalePresence, event.Type)
	assert.Equal(t, realtime.AudienceLandlord, event.Audience)
	assert.Equal(t, fx.booking.LandlordID, event.RecipientID)

	// Booking state is untouched; the scheduler stays authoritative.
	assert.Equal(t, 0, fx.svc.markedCalls)

	// A fresh sample re-arms the stale probe.
	fresh := LocationUpdate{Latitude: spaceLat + 0.01, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(-100 * time.Second)}
	_, err = fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{fresh})
	require.NoError(t, err)
	fx.tracker.probe(ctx)
	assert.Len(t, fx.publisher.Events, 2)
}

func TestRehydrateRestoresEnteredState(t *testing.T) {
	ctx := context.Background()
	fx := newTrackerFixture(t)
	fx.booking.HasEnteredApproachZone = true

	require.NoError(t, fx.tracker.Rehydrate(ctx))

	// In-zone sample after restart: no duplicate entry event.
	sample := LocationUpdate{Latitude: spaceLat, Longitude: spaceLng, Accuracy: 10, Timestamp: fx.now.Add(time.Second)}
	result, err := fx.tracker.Ingest(ctx, fx.booking.UserID, fx.booking.ID, []LocationUpdate{sample})
	require.NoError(t, err)

	assert.True(t, result.Entered)
	assert.Equal(t, 0, fx.svc.markedCalls)
	assert.Empty(t, fx.publisher.Events)
}

func TestHaversineKnownDistances(t *testing.T) {
	// Rizal Park to Manila City Hall is roughly 750 m.
	d := haversineMeters(14.5826, 120.9787, 14.5896, 120.9810)
	assert.InDelta(t, 750, d, 100)

	// Same point.
	assert.InDelta(t, 0, haversineMeters(spaceLat, spaceLng, spaceLat, spaceLng), 0.001)

	// One degree of latitude.
	d = haversineMeters(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
}
