package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parktayo/internal/bookings"
	"parktayo/internal/pricing"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
)

type fakeBookingRepo struct {
	store       map[uuid.UUID]*bookings.Booking
	spotReturns int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{store: make(map[uuid.UUID]*bookings.Booking)}
}

func (f *fakeBookingRepo) WithTx(ctx context.Context, fn func(tx bookings.Repository) error) error {
	return fn(f)
}

func (f *fakeBookingRepo) Create(ctx context.Context, booking *bookings.Booking) error {
	copied := *booking
	f.store[booking.ID] = &copied
	return nil
}

func (f *fakeBookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	booking, ok := f.store[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeBookingRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*bookings.Booking, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeBookingRepo) Save(ctx context.Context, booking *bookings.Booking) error {
	copied := *booking
	f.store[booking.ID] = &copied
	return nil
}

func (f *fakeBookingRepo) ListByUser(ctx context.Context, userID uuid.UUID, status bookings.Status, limit, offset int) ([]bookings.Booking, int64, error) {
	return nil, 0, nil
}

func (f *fakeBookingRepo) ListByStatus(ctx context.Context, status bookings.Status) ([]bookings.Booking, error) {
	var out []bookings.Booking
	for _, booking := range f.store {
		if booking.Status == status {
			out = append(out, *booking)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) ListParkedPastHardExpiry(ctx context.Context, ceilingHours int) ([]bookings.Booking, error) {
	cutoff := time.Now()
	var out []bookings.Booking
	for _, booking := range f.store {
		if booking.Status == bookings.StatusParked &&
			booking.EndTime.Add(time.Duration(ceilingHours)*time.Hour).Before(cutoff) {
			out = append(out, *booking)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) TakeSpot(ctx context.Context, spaceID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeBookingRepo) ReturnSpot(ctx context.Context, spaceID uuid.UUID) error {
	f.spotReturns++
	return nil
}

type capturedCall struct {
	holdRef string
	amount  float64
	refID   string
}

type fakeWallet struct {
	captures   []capturedCall
	shortfalls []capturedCall
	debts      []capturedCall
	heldAmount float64
	available  float64
}

func (f *fakeWallet) Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*captureOutcome, error) {
	f.captures = append(f.captures, capturedCall{holdRef: holdRef, amount: amount, refID: refID})
	fee := pricing.Round2(amount * platformFeeRate)
	residual := 0.0
	if f.heldAmount > amount {
		residual = pricing.Round2(f.heldAmount - amount)
	}
	return &captureOutcome{
		Captured:         amount,
		Fee:              fee,
		Payout:           pricing.Round2(amount - fee),
		ReleasedResidual: residual,
	}, nil
}

func (f *fakeWallet) CollectShortfall(ctx context.Context, userID uuid.UUID, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*shortfallOutcome, error) {
	collected := amount
	if collected > f.available {
		collected = pricing.Round2(f.available)
	}
	outcome := &shortfallOutcome{
		Collected:   collected,
		Outstanding: pricing.Round2(amount - collected),
	}
	if collected > 0 {
		f.available = pricing.Round2(f.available - collected)
		f.shortfalls = append(f.shortfalls, capturedCall{amount: collected, refID: refID})
		outcome.Fee = pricing.Round2(collected * platformFeeRate)
		outcome.Payout = pricing.Round2(collected - outcome.Fee)
	}
	return outcome, nil
}

func (f *fakeWallet) RecordDebt(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error) {
	f.debts = append(f.debts, capturedCall{amount: amount, refID: refID})
	return &walletEntry{Amount: amount}, nil
}

type fakeSpaces struct {
	returned int
}

func (f *fakeSpaces) SpotReturned(ctx context.Context, spaceID uuid.UUID) {
	f.returned++
}

type fakeNonces struct {
	store map[string]uuid.UUID
}

func (f *fakeNonces) Put(ctx context.Context, nonce string, bookingID uuid.UUID, ttl time.Duration) error {
	f.store[nonce] = bookingID
	return nil
}

func (f *fakeNonces) Take(ctx context.Context, nonce string) (uuid.UUID, error) {
	bookingID, ok := f.store[nonce]
	if !ok {
		return uuid.Nil, apperr.New(apperr.KindInvalidInput, "QR code expired or already used")
	}
	delete(f.store, nonce)
	return bookingID, nil
}

type sessionFixture struct {
	svc       *service
	repo      *fakeBookingRepo
	wallet    *fakeWallet
	spaces    *fakeSpaces
	nonces    *fakeNonces
	publisher *realtime.CapturingPublisher
	booking   *bookings.Booking
	now       time.Time
}

// parkedBooking: held 50.00 against a 50/3h space, session started two
// hours ago, plenty of available balance for shortfalls.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	repo := newFakeBookingRepo()
	walletSvc := &fakeWallet{heldAmount: 50, available: 1000}
	spaceSvc := &fakeSpaces{}
	nonces := &fakeNonces{store: make(map[string]uuid.UUID)}
	publisher := &realtime.CapturingPublisher{}

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	sessionStart := now.Add(-2 * time.Hour)

	booking := &bookings.Booking{
		ID:                  uuid.New(),
		UserID:              uuid.New(),
		LandlordID:          uuid.New(),
		SpaceID:             uuid.New(),
		Mode:                bookings.ModeBookNow,
		Status:              bookings.StatusParked,
		StartTime:           sessionStart,
		EndTime:             sessionStart.Add(3 * time.Hour),
		SessionStartTime:    &sessionStart,
		IsWithinWindow:      true,
		BasePricePer3Hours:  50,
		OvertimeRatePerHour: 50.0 / 3, // unrounded, as spaces quote it
		SurgeMultiplier:     1,
		PlatformFeeRate:     0.10,
		PricingTimezone:     "Asia/Manila",
		QuotedAmount:        50,
		HeldAmount:          50,
	}
	require.NoError(t, repo.Create(context.Background(), booking))

	svc := NewService(repo, walletSvc, spaceSvc, nonces, publisher, DefaultPolicy()).(*service)
	svc.now = func() time.Time { return now }

	return &sessionFixture{
		svc:       svc,
		repo:      repo,
		wallet:    walletSvc,
		spaces:    spaceSvc,
		nonces:    nonces,
		publisher: publisher,
		booking:   booking,
		now:       now,
	}
}

func TestCheckoutWithinHeldAmount(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	result, err := fx.svc.Checkout(ctx, fx.booking.UserID, fx.booking.ID)
	require.NoError(t, err)

	assert.Equal(t, TriggerClient, result.Trigger)
	assert.Equal(t, 120, result.ActualDurationMinutes)
	assert.Equal(t, 0, result.OvertimeMinutes)
	assert.Equal(t, 50.0, result.FinalAmount)
	assert.Equal(t, 50.0, result.CapturedAmount)
	assert.Equal(t, 5.0, result.PlatformFee)
	assert.Equal(t, 45.0, result.LandlordPayout)
	assert.Zero(t, result.ShortfallDebited)
	assert.Zero(t, result.OutstandingDebt)

	require.Len(t, fx.wallet.captures, 1)
	assert.Equal(t, fx.booking.HoldRef(), fx.wallet.captures[0].holdRef)
	assert.Equal(t, fx.booking.CaptureRef(), fx.wallet.captures[0].refID)

	saved, err := fx.repo.GetByID(ctx, fx.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, saved.Status)
	assert.NotNil(t, saved.SessionEndTime)
	assert.Equal(t, 120, saved.ActualDurationMinutes)
	assert.Equal(t, 50.0, saved.FinalAmount)

	assert.Equal(t, 1, fx.repo.spotReturns)
	assert.Equal(t, 1, fx.spaces.returned)
	assert.Equal(t,
		[]realtime.EventType{realtime.EventBookingCompleted, realtime.EventBookingCompleted},
		fx.publisher.Types())
}

func TestCheckoutOvertimeShortfallDebited(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	// Five hours parked: 2 whole overtime hours past the 3-hour window.
	fiveHoursAgo := fx.now.Add(-5 * time.Hour)
	fx.booking.SessionStartTime = &fiveHoursAgo
	require.NoError(t, fx.repo.Save(ctx, fx.booking))

	result, err := fx.svc.Checkout(ctx, fx.booking.UserID, fx.booking.ID)
	require.NoError(t, err)

	// 50.00 + 2 × 50/3 = 83.33 after rounding
	assert.Equal(t, 300, result.ActualDurationMinutes)
	assert.Equal(t, 120, result.OvertimeMinutes)
	assert.Equal(t, 83.33, result.FinalAmount)
	assert.Equal(t, 50.0, result.CapturedAmount, "capture is capped at the hold")
	assert.Equal(t, 33.33, result.ShortfallDebited)
	assert.Zero(t, result.OutstandingDebt)

	// The fee applies to everything actually collected, not just the hold.
	assert.Equal(t, 8.33, result.PlatformFee)
	assert.Equal(t, 75.0, result.LandlordPayout)

	require.Len(t, fx.wallet.shortfalls, 1)
	assert.Equal(t, fx.booking.ShortfallRef(), fx.wallet.shortfalls[0].refID)
	assert.Empty(t, fx.wallet.debts)
}

func TestCheckoutPartialShortfallCollection(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)
	fx.wallet.available = 10

	fiveHoursAgo := fx.now.Add(-5 * time.Hour)
	fx.booking.SessionStartTime = &fiveHoursAgo
	require.NoError(t, fx.repo.Save(ctx, fx.booking))

	result, err := fx.svc.Checkout(ctx, fx.booking.UserID, fx.booking.ID)
	require.NoError(t, err)

	// Charge 83.33 against a 50.00 hold and 10.00 available: the hold is
	// captured in full, the 10.00 is drained, only the rest becomes debt.
	assert.Equal(t, 50.0, result.CapturedAmount)
	assert.Equal(t, 10.0, result.ShortfallDebited)
	assert.Equal(t, 23.33, result.OutstandingDebt)
	assert.Equal(t, 0.0, fx.wallet.available, "available balance drained")
	assert.Equal(t, 6.0, result.PlatformFee)
	assert.Equal(t, 54.0, result.LandlordPayout)

	require.Len(t, fx.wallet.shortfalls, 1)
	require.Len(t, fx.wallet.debts, 1)
	assert.Equal(t, fx.booking.DebtRef(), fx.wallet.debts[0].refID)
	assert.Equal(t, 23.33, fx.wallet.debts[0].amount)
}

func TestCheckoutShortfallBecomesOpenDebt(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)
	fx.wallet.available = 0

	fiveHoursAgo := fx.now.Add(-5 * time.Hour)
	fx.booking.SessionStartTime = &fiveHoursAgo
	require.NoError(t, fx.repo.Save(ctx, fx.booking))

	result, err := fx.svc.Checkout(ctx, fx.booking.UserID, fx.booking.ID)
	require.NoError(t, err, "an empty wallet must not block checkout")

	assert.Equal(t, 33.33, result.OutstandingDebt)
	assert.Zero(t, result.ShortfallDebited)
	require.Len(t, fx.wallet.debts, 1)
	assert.Equal(t, fx.booking.DebtRef(), fx.wallet.debts[0].refID)

	saved, err := fx.repo.GetByID(ctx, fx.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, saved.Status)
}

func TestCheckoutRejectsSessionlessBooking(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)
	fx.booking.Status = bookings.StatusAccepted
	fx.booking.SessionStartTime = nil
	require.NoError(t, fx.repo.Save(ctx, fx.booking))

	_, err := fx.svc.Checkout(ctx, fx.booking.UserID, fx.booking.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Empty(t, fx.wallet.captures)
}

func TestCheckoutForbiddenForAnotherUser(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	_, err := fx.svc.Checkout(ctx, uuid.New(), fx.booking.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestQRRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	ticket, err := fx.svc.GenerateQR(ctx, fx.booking.LandlordID, fx.booking.ID)
	require.NoError(t, err)
	assert.Len(t, ticket.Nonce, 32)
	assert.NotEmpty(t, ticket.Image)
	assert.Equal(t, fx.booking.ID, fx.nonces.store[ticket.Nonce])

	result, err := fx.svc.RedeemQR(ctx, fx.booking.UserID, ticket.Nonce)
	require.NoError(t, err)
	assert.Equal(t, TriggerQR, result.Trigger)
	assert.Equal(t, 50.0, result.CapturedAmount)

	// The nonce is single-use.
	_, err = fx.svc.RedeemQR(ctx, fx.booking.UserID, ticket.Nonce)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestQRIssueRequiresOwningLandlord(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	_, err := fx.svc.GenerateQR(ctx, uuid.New(), fx.booking.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestQRRedeemRequiresBookingOwner(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	ticket, err := fx.svc.GenerateQR(ctx, fx.booking.LandlordID, fx.booking.ID)
	require.NoError(t, err)

	_, err = fx.svc.RedeemQR(ctx, uuid.New(), ticket.Nonce)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Empty(t, fx.wallet.captures)
}

func TestSweepForcesCheckoutAtCeiling(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	// Session started 30 hours ago; endTime passed 27 hours ago, which is
	// beyond the 24-hour ceiling.
	start := time.Now().Add(-30 * time.Hour)
	fx.booking.SessionStartTime = &start
	fx.booking.StartTime = start
	fx.booking.EndTime = start.Add(3 * time.Hour)
	require.NoError(t, fx.repo.Save(ctx, fx.booking))

	swept, err := fx.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	saved, err := fx.repo.GetByID(ctx, fx.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, saved.Status)
	require.NotNil(t, saved.SessionEndTime)

	// Settled at endTime + ceiling, not at sweep time.
	expectedEnd := fx.booking.EndTime.Add(24 * time.Hour)
	assert.True(t, saved.SessionEndTime.Equal(expectedEnd))
	assert.Equal(t, 27*60, saved.ActualDurationMinutes)
}

func TestProjectDurationIsDisplayOnly(t *testing.T) {
	ctx := context.Background()
	fx := newSessionFixture(t)

	projection, err := fx.svc.ProjectDuration(ctx, fx.booking.UserID, fx.booking.ID)
	require.NoError(t, err)

	assert.Equal(t, 120, projection.ElapsedMinutes)
	assert.Equal(t, 0, projection.OvertimeMinutes)
	assert.Equal(t, 50.0, projection.ProjectedAmount)
	assert.Zero(t, projection.ProjectedShortfall)

	// Nothing moved: no capture, booking still parked.
	assert.Empty(t, fx.wallet.captures)
	saved, err := fx.repo.GetByID(ctx, fx.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusParked, saved.Status)

	// The landlord can read the projection too.
	_, err = fx.svc.ProjectDuration(ctx, fx.booking.LandlordID, fx.booking.ID)
	require.NoError(t, err)

	// Strangers cannot.
	_, err = fx.svc.ProjectDuration(ctx, uuid.New(), fx.booking.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}
