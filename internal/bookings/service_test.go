package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parktayo/internal/eta"
	"parktayo/internal/pricing"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
)

// fakeRepository keeps bookings and spot counts in memory. WithTx runs the
// callback against the same store; writes are copied in and out so only
// Save-ed mutations stick, like rows in a real database.
type fakeRepository struct {
	bookings map[uuid.UUID]*Booking
	spots    map[uuid.UUID]*spotCount
}

type spotCount struct {
	available int
	total     int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		bookings: make(map[uuid.UUID]*Booking),
		spots:    make(map[uuid.UUID]*spotCount),
	}
}

func (f *fakeRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) Create(ctx context.Context, booking *Booking) error {
	cp := *booking
	cp.CreatedAt = time.Now()
	booking.CreatedAt = cp.CreatedAt
	f.bookings[cp.ID] = &cp
	return nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRepository) Save(ctx context.Context, booking *Booking) error {
	cp := *booking
	f.bookings[cp.ID] = &cp
	return nil
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID, status Status, limit, offset int) ([]Booking, int64, error) {
	var out []Booking
	for _, b := range f.bookings {
		if b.UserID == userID && (status == "" || b.Status == status) {
			out = append(out, *b)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepository) ListByStatus(ctx context.Context, status Status) ([]Booking, error) {
	var out []Booking
	for _, b := range f.bookings {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListParkedPastHardExpiry(ctx context.Context, ceilingHours int) ([]Booking, error) {
	return nil, nil
}

func (f *fakeRepository) TakeSpot(ctx context.Context, spaceID uuid.UUID) (bool, error) {
	sc, ok := f.spots[spaceID]
	if !ok || sc.available <= 0 {
		return false, nil
	}
	sc.available--
	return true, nil
}

func (f *fakeRepository) ReturnSpot(ctx context.Context, spaceID uuid.UUID) error {
	if sc, ok := f.spots[spaceID]; ok && sc.available < sc.total {
		sc.available++
	}
	return nil
}

// fakeWallet records holds, releases, and captures keyed by reference id.
type fakeWallet struct {
	holds    map[string]float64
	releases []string
	captures []string
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{holds: make(map[string]float64)}
}

func (f *fakeWallet) Hold(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error) {
	if _, ok := f.holds[refID]; ok {
		return &walletEntry{Amount: amount, Replayed: true}, nil
	}
	f.holds[refID] = amount
	return &walletEntry{Amount: amount}, nil
}

func (f *fakeWallet) Release(ctx context.Context, holdRef, reason string) (*walletEntry, error) {
	amount := f.holds[holdRef]
	delete(f.holds, holdRef)
	f.releases = append(f.releases, holdRef)
	return &walletEntry{Amount: amount}, nil
}

func (f *fakeWallet) Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*captureOutcome, error) {
	held := f.holds[holdRef]
	delete(f.holds, holdRef)
	f.captures = append(f.captures, refID)
	fee := pricing.Round2(amount * platformFeeRate)
	return &captureOutcome{
		Captured:         amount,
		Fee:              fee,
		Payout:           pricing.Round2(amount - fee),
		ReleasedResidual: pricing.Round2(held - amount),
	}, nil
}

// fakeSpaces serves one listing and counts live-counter mirror calls.
type fakeSpaces struct {
	space    *spaces.ParkingSpace
	taken    int
	returned int
}

func (f *fakeSpaces) GetSpace(ctx context.Context, id uuid.UUID) (*spaces.ParkingSpace, error) {
	if f.space == nil || f.space.ID != id {
		return nil, apperr.New(apperr.KindNotFound, "parking space not found")
	}
	cp := *f.space
	return &cp, nil
}

func (f *fakeSpaces) SpotTaken(ctx context.Context, spaceID uuid.UUID)    { f.taken++ }
func (f *fakeSpaces) SpotReturned(ctx context.Context, spaceID uuid.UUID) { f.returned++ }

type fakeVehicles struct {
	vehicles map[uuid.UUID]*users.Vehicle
}

func (f *fakeVehicles) GetVehicle(ctx context.Context, id uuid.UUID) (*users.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return v, nil
}

type fakeOracle struct {
	minutes int
}

func (f *fakeOracle) Estimate(ctx context.Context, origin, destination eta.Point) eta.Estimate {
	return eta.Estimate{Minutes: f.minutes, Confidence: eta.ConfidenceHigh, Source: eta.SourceGoogleMaps}
}

type fakeScheduler struct {
	scheduled map[uuid.UUID]time.Time
	cleared   map[uuid.UUID]string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		scheduled: make(map[uuid.UUID]time.Time),
		cleared:   make(map[uuid.UUID]string),
	}
}

func (f *fakeScheduler) Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error {
	f.scheduled[bookingID] = fireAt
	return nil
}

func (f *fakeScheduler) Clear(ctx context.Context, bookingID uuid.UUID, reason string) error {
	f.cleared[bookingID] = reason
	return nil
}

type bookingFixture struct {
	svc       *service
	repo      *fakeRepository
	wallet    *fakeWallet
	spaces    *fakeSpaces
	scheduler *fakeScheduler
	publisher *realtime.CapturingPublisher
	userID    uuid.UUID
	landlord  uuid.UUID
	vehicleID uuid.UUID
	spaceID   uuid.UUID
	now       time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	fx := &bookingFixture{
		repo:      newFakeRepository(),
		wallet:    newFakeWallet(),
		scheduler: newFakeScheduler(),
		publisher: &realtime.CapturingPublisher{},
		userID:    uuid.New(),
		landlord:  uuid.New(),
		vehicleID: uuid.New(),
		spaceID:   uuid.New(),
		now:       time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
	}

	fx.spaces = &fakeSpaces{space: &spaces.ParkingSpace{
		ID:              fx.spaceID,
		LandlordID:      fx.landlord,
		Name:            "Escolta Covered Lot",
		Latitude:        14.5826,
		Longitude:       120.9787,
		TotalSpots:      2,
		AvailableSpots:  2,
		PricePer3Hours:  50,
		SurgeMultiplier: 1.0,
		OperatingHours:  spaces.OperatingHours{Is24Hours: true},
		Timezone:        "Asia/Manila",
		IsActive:        true,
	}}
	fx.repo.spots[fx.spaceID] = &spotCount{available: 2, total: 2}

	vehicles := &fakeVehicles{vehicles: map[uuid.UUID]*users.Vehicle{
		fx.vehicleID: {ID: fx.vehicleID, UserID: fx.userID, Plate: "NDA1234"},
	}}

	policy := Policy{
		GracePeriodMinutes:  15,
		FallbackETAMinutes:  30,
		NoShowPenaltyRate:   0.5,
		PlatformFeeRate:     0.10,
		SurgePlatformShare:  0.5,
		MaxOvertimeCeilingH: 24,
	}

	svc := NewService(fx.repo, vehicles, fx.wallet, fx.spaces, &fakeOracle{minutes: 10}, fx.publisher, policy).(*service)
	svc.now = func() time.Time { return fx.now }
	svc.SetScheduler(fx.scheduler)
	fx.svc = svc
	return fx
}

func (fx *bookingFixture) request() CreateBookingRequest {
	start := fx.now.Add(5 * time.Minute)
	return CreateBookingRequest{
		SpaceID:          fx.spaceID,
		VehicleID:        fx.vehicleID,
		StartTime:        start,
		EndTime:          start.Add(2 * time.Hour),
		CurrentLatitude:  14.6091,
		CurrentLongitude: 121.0223,
	}
}

func TestCreateSmartBookingAcceptsAndArmsNoShow(t *testing.T) {
	fx := newBookingFixture(t)
	req := fx.request()

	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, req)
	require.NoError(t, err)

	stored := fx.repo.bookings[resp.Booking.ID]
	require.NotNil(t, stored)
	assert.Equal(t, StatusAccepted, stored.Status)
	assert.Equal(t, ModeBookNow, stored.Mode)

	// Escrow covers the standard window at the base rate.
	assert.Equal(t, 50.0, stored.HeldAmount)
	assert.Equal(t, 50.0, fx.wallet.holds[stored.HoldRef()])

	// noShowCheckTime = startTime + eta + grace, computed exactly once.
	wantCheck := req.StartTime.Add(25 * time.Minute)
	require.NotNil(t, stored.NoShowCheckTime)
	assert.True(t, stored.NoShowCheckTime.Equal(wantCheck))
	assert.True(t, fx.scheduler.scheduled[stored.ID].Equal(wantCheck))

	assert.Equal(t, 10, stored.ETAMinutes)
	assert.Equal(t, string(eta.SourceGoogleMaps), stored.ETASource)

	// Capacity decremented in the database and mirrored to the live counter.
	assert.Equal(t, 1, fx.repo.spots[fx.spaceID].available)
	assert.Equal(t, 1, fx.spaces.taken)

	assert.Equal(t,
		[]realtime.EventType{realtime.EventBookingCreated, realtime.EventBookingCreated},
		fx.publisher.Types())
	assert.Equal(t, realtime.AudienceUser, fx.publisher.Events[0].Audience)
	assert.Equal(t, realtime.AudienceLandlord, fx.publisher.Events[1].Audience)

	assert.Equal(t, 10, resp.ETA.Minutes)
	assert.Equal(t, eta.SourceGoogleMaps, resp.ETA.Source)
}

func TestCreateSmartBookingRejectsForeignVehicle(t *testing.T) {
	fx := newBookingFixture(t)
	req := fx.request()

	_, err := fx.svc.CreateSmartBooking(context.Background(), uuid.New(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Empty(t, fx.wallet.holds)
}

func TestCreateSmartBookingNoCapacityReleasesHold(t *testing.T) {
	fx := newBookingFixture(t)
	fx.repo.spots[fx.spaceID].available = 0

	_, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNoCapacity, apperr.KindOf(err))

	// The escrow hold is compensated, nothing is persisted, no events leak.
	assert.Empty(t, fx.wallet.holds)
	assert.Len(t, fx.wallet.releases, 1)
	assert.Empty(t, fx.repo.bookings)
	assert.Empty(t, fx.publisher.Events)
	assert.Zero(t, fx.spaces.taken)
}

func TestCreateSmartBookingRejectsInactiveSpace(t *testing.T) {
	fx := newBookingFixture(t)
	fx.spaces.space.IsActive = false

	_, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCreateSmartBookingRejectsInvertedWindow(t *testing.T) {
	fx := newBookingFixture(t)
	req := fx.request()
	req.EndTime = req.StartTime

	_, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestAcceptReservationArmsFallbackWindow(t *testing.T) {
	fx := newBookingFixture(t)
	req := fx.request()

	resp, err := fx.svc.CreateReservation(context.Background(), fx.userID, req)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Booking.Status)
	assert.Empty(t, fx.wallet.holds, "reservation must not hold funds before approval")

	booking, err := fx.svc.AcceptReservation(context.Background(), fx.landlord, resp.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, booking.Status)

	// Driver position is unknown at approval; the fallback estimate arms the
	// window.
	assert.Equal(t, 30, booking.ETAMinutes)
	assert.Equal(t, string(eta.SourceFallback), booking.ETASource)
	wantCheck := req.StartTime.Add(45 * time.Minute)
	require.NotNil(t, booking.NoShowCheckTime)
	assert.True(t, booking.NoShowCheckTime.Equal(wantCheck))

	assert.Equal(t, 50.0, fx.wallet.holds[booking.HoldRef()])
	assert.Equal(t, 1, fx.repo.spots[fx.spaceID].available)
}

func TestAcceptReservationForbiddenForOtherLandlord(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateReservation(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	_, err = fx.svc.AcceptReservation(context.Background(), uuid.New(), resp.Booking.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestRejectReservation(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateReservation(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	require.NoError(t, fx.svc.RejectReservation(context.Background(), fx.landlord, resp.Booking.ID))

	stored := fx.repo.bookings[resp.Booking.ID]
	assert.Equal(t, StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	assert.Empty(t, fx.wallet.holds)
	assert.Contains(t, fx.publisher.Types(), realtime.EventBookingRejected)

	// Rejecting twice is an illegal edge.
	err = fx.svc.RejectReservation(context.Background(), fx.landlord, resp.Booking.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCancelAcceptedReleasesHoldAndSpot(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)
	id := resp.Booking.ID

	require.NoError(t, fx.svc.Cancel(context.Background(), fx.userID, id))

	stored := fx.repo.bookings[id]
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Empty(t, fx.wallet.holds)
	assert.Contains(t, fx.wallet.releases, stored.HoldRef())
	assert.Equal(t, "cancelled", fx.scheduler.cleared[id])
	assert.Equal(t, 2, fx.repo.spots[fx.spaceID].available)
	assert.Equal(t, 1, fx.spaces.returned)

	types := fx.publisher.Types()
	assert.Equal(t, realtime.EventBookingCancelled, types[len(types)-2])
	assert.Equal(t, realtime.EventBookingCancelled, types[len(types)-1])
}

func TestCancelAfterStartIsRejected(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	fx.now = resp.Booking.StartTime.Add(time.Minute)
	err = fx.svc.Cancel(context.Background(), fx.userID, resp.Booking.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	stored := fx.repo.bookings[resp.Booking.ID]
	assert.Equal(t, StatusAccepted, stored.Status)
	assert.NotEmpty(t, fx.wallet.holds, "hold must survive a refused cancellation")
}

func TestCancelForbiddenForOtherUser(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	err = fx.svc.Cancel(context.Background(), uuid.New(), resp.Booking.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestArriveConfirmStartsSession(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	fx.now = resp.Booking.StartTime.Add(10 * time.Minute)
	booking, err := fx.svc.ArriveConfirm(context.Background(), fx.userID, resp.Booking.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusParked, booking.Status)
	require.NotNil(t, booking.SessionStartTime)
	assert.True(t, booking.SessionStartTime.Equal(fx.now))
	assert.True(t, booking.IsWithinWindow)
	assert.Equal(t, "arrived", fx.scheduler.cleared[booking.ID])
	assert.Contains(t, fx.publisher.Types(), realtime.EventBookingParked)
}

func TestArriveConfirmAfterWindowFlagsLate(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)
	stored := fx.repo.bookings[resp.Booking.ID]

	// Arriving after windowEndTime still parks; the flag records lateness.
	fx.now = stored.WindowEndTime.Add(time.Minute)
	booking, err := fx.svc.ArriveConfirm(context.Background(), fx.userID, resp.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusParked, booking.Status)
	assert.False(t, booking.IsWithinWindow)
}

func TestCommitNoShowSplitsHeldFunds(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)
	id := resp.Booking.ID

	outcome, err := fx.svc.CommitNoShow(context.Background(), id)
	require.NoError(t, err)

	// Half the hold compensates the landlord, the rest returns to the driver.
	assert.Equal(t, 25.0, outcome.PenaltyCaptured)
	assert.Equal(t, 25.0, outcome.Released)
	assert.Contains(t, fx.wallet.captures, fx.repo.bookings[id].PenaltyRef())

	stored := fx.repo.bookings[id]
	assert.Equal(t, StatusNoShow, stored.Status)
	assert.Equal(t, 25.0, stored.FinalAmount)
	assert.Equal(t, 2, fx.repo.spots[fx.spaceID].available)
	assert.Contains(t, fx.publisher.Types(), realtime.EventBookingNoShow)

	// A second commit finds a terminal booking.
	_, err = fx.svc.CommitNoShow(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCommitNoShowBlockedByZoneEntry(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	_, err = fx.svc.MarkApproachEntered(context.Background(), resp.Booking.ID, fx.now)
	require.NoError(t, err)

	_, err = fx.svc.CommitNoShow(context.Background(), resp.Booking.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, fx.wallet.captures, "no penalty may move once the driver is nearby")
}

func TestMarkApproachEnteredIsIdempotent(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	first := fx.now.Add(2 * time.Minute)
	b1, err := fx.svc.MarkApproachEntered(context.Background(), resp.Booking.ID, first)
	require.NoError(t, err)
	assert.True(t, b1.HasEnteredApproachZone)
	require.NotNil(t, b1.FirstApproachAt)

	b2, err := fx.svc.MarkApproachEntered(context.Background(), resp.Booking.ID, first.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, b2.FirstApproachAt.Equal(first), "first entry timestamp must not move")
}

func TestGetBookingRestrictedToParticipants(t *testing.T) {
	fx := newBookingFixture(t)
	resp, err := fx.svc.CreateSmartBooking(context.Background(), fx.userID, fx.request())
	require.NoError(t, err)

	_, err = fx.svc.GetBooking(context.Background(), fx.landlord, resp.Booking.ID)
	assert.NoError(t, err)

	_, err = fx.svc.GetBooking(context.Background(), uuid.New(), resp.Booking.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
