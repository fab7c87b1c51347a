package sessions

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"parktayo/internal/bookings"
	"parktayo/internal/pricing"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
	"parktayo/pkg/logger"
)

// WalletService is the slice of the ledger the settlement path needs.
type WalletService interface {
	Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*captureOutcome, error)
	CollectShortfall(ctx context.Context, userID uuid.UUID, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*shortfallOutcome, error)
	RecordDebt(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error)
}

type walletEntry struct {
	Amount   float64
	Replayed bool
}

type captureOutcome struct {
	Captured         float64
	Fee              float64
	Payout           float64
	ReleasedResidual float64
}

type shortfallOutcome struct {
	Collected   float64
	Outstanding float64
	Fee         float64
	Payout      float64
}

// SpaceProvider refreshes the live availability counter after checkout.
type SpaceProvider interface {
	SpotReturned(ctx context.Context, spaceID uuid.UUID)
}

// Policy tunes checkout behavior.
type Policy struct {
	// MaxOvertimeCeiling bounds a session past endTime. Beyond it the
	// sweeper forces checkout at endTime + ceiling.
	MaxOvertimeCeiling time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxOvertimeCeiling: 24 * time.Hour}
}

// CheckoutTrigger records which path ended the session.
type CheckoutTrigger string

const (
	TriggerClient     CheckoutTrigger = "client"
	TriggerQR         CheckoutTrigger = "qr"
	TriggerHardExpiry CheckoutTrigger = "hard_expiry"
)

// CheckoutResult is the settled outcome of one checkout.
type CheckoutResult struct {
	BookingID             uuid.UUID       `json:"booking_id"`
	Trigger               CheckoutTrigger `json:"trigger"`
	ActualDurationMinutes int             `json:"actual_duration_minutes"`
	OvertimeMinutes       int             `json:"overtime_minutes"`
	IsWithinWindow        bool            `json:"is_within_window"`
	FinalAmount           float64         `json:"final_amount"`
	CapturedAmount        float64         `json:"captured_amount"`
	PlatformFee           float64         `json:"platform_fee"`
	LandlordPayout        float64         `json:"landlord_payout"`
	ReleasedResidual      float64         `json:"released_residual"`
	ShortfallDebited      float64         `json:"shortfall_debited"`
	OutstandingDebt       float64         `json:"outstanding_debt"`
	CompletedAt           time.Time       `json:"completed_at"`
}

// DurationProjection is the display-only session clock. It never mutates
// booking state.
type DurationProjection struct {
	BookingID              uuid.UUID `json:"booking_id"`
	SessionStartTime       time.Time `json:"session_start_time"`
	ElapsedMinutes         int       `json:"elapsed_minutes"`
	OvertimeMinutes        int       `json:"overtime_minutes"`
	ProjectedAmount        float64   `json:"projected_amount"`
	HeldAmount             float64   `json:"held_amount"`
	ProjectedShortfall     float64   `json:"projected_shortfall"`
	HardExpiryAt           time.Time `json:"hard_expiry_at"`
	MinutesUntilHardExpiry int       `json:"minutes_until_hard_expiry"`
}

type Service interface {
	ProjectDuration(ctx context.Context, requesterID, bookingID uuid.UUID) (*DurationProjection, error)
	Checkout(ctx context.Context, userID, bookingID uuid.UUID) (*CheckoutResult, error)
	GenerateQR(ctx context.Context, landlordID, bookingID uuid.UUID) (*QRTicket, error)
	RedeemQR(ctx context.Context, userID uuid.UUID, nonce string) (*CheckoutResult, error)

	// SweepExpired force-completes every parked session past the overtime
	// ceiling, settled at endTime + ceiling. Returns the number swept.
	SweepExpired(ctx context.Context) (int, error)
}

type service struct {
	repo      bookings.Repository
	wallet    WalletService
	spaceSvc  SpaceProvider
	nonces    NonceStore
	publisher realtime.Publisher
	policy    Policy
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	repo bookings.Repository,
	walletSvc WalletService,
	spaceSvc SpaceProvider,
	nonces NonceStore,
	publisher realtime.Publisher,
	policy Policy,
) Service {
	return &service{
		repo:      repo,
		wallet:    walletSvc,
		spaceSvc:  spaceSvc,
		nonces:    nonces,
		publisher: publisher,
		policy:    policy,
		log:       logger.GetDefault(),
		now:       time.Now,
	}
}

func (s *service) ProjectDuration(ctx context.Context, requesterID, bookingID uuid.UUID) (*DurationProjection, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "booking not found", err)
	}
	if booking.UserID != requesterID && booking.LandlordID != requesterID {
		return nil, apperr.New(apperr.KindForbidden, "not a participant of this booking")
	}
	if booking.Status != bookings.StatusParked || booking.SessionStartTime == nil {
		return nil, apperr.Newf(apperr.KindConflict, "booking is %s, no running session", booking.Status)
	}

	now := s.now()
	elapsed := durationMinutes(*booking.SessionStartTime, now)
	quote := pricing.QuoteFor(booking.PricingSnapshot(), elapsed, *booking.SessionStartTime)
	hardExpiry := booking.EndTime.Add(s.policy.MaxOvertimeCeiling)

	projection := &DurationProjection{
		BookingID:        booking.ID,
		SessionStartTime: *booking.SessionStartTime,
		ElapsedMinutes:   elapsed,
		OvertimeMinutes:  overtimeMinutes(elapsed),
		ProjectedAmount:  quote.QuotedAmount,
		HeldAmount:       booking.HeldAmount,
		HardExpiryAt:     hardExpiry,
	}
	if quote.QuotedAmount > booking.HeldAmount {
		projection.ProjectedShortfall = pricing.Round2(quote.QuotedAmount - booking.HeldAmount)
	}
	if hardExpiry.After(now) {
		projection.MinutesUntilHardExpiry = int(hardExpiry.Sub(now).Minutes())
	}
	return projection, nil
}

func (s *service) Checkout(ctx context.Context, userID, bookingID uuid.UUID) (*CheckoutResult, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "booking not found", err)
	}
	if booking.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "booking belongs to another user")
	}
	return s.settle(ctx, bookingID, s.now(), TriggerClient)
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	ceilingHours := int(s.policy.MaxOvertimeCeiling.Hours())
	expired, err := s.repo.ListParkedPastHardExpiry(ctx, ceilingHours)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range expired {
		booking := &expired[i]
		forcedEnd := booking.EndTime.Add(s.policy.MaxOvertimeCeiling)
		if _, err := s.settle(ctx, booking.ID, forcedEnd, TriggerHardExpiry); err != nil {
			s.log.Error("hard-expiry checkout failed", "booking_id", booking.ID, "error", err)
			continue
		}
		s.log.Info("session force-completed at overtime ceiling", "booking_id", booking.ID, "forced_end", forcedEnd)
		swept++
	}
	return swept, nil
}

// settle is the single settlement path shared by all three checkout
// triggers. Funds move first: the capture is idempotent on the hold's
// reference id, so a crash between capture and the booking update settles
// identically on retry.
func (s *service) settle(ctx context.Context, bookingID uuid.UUID, endedAt time.Time, trigger CheckoutTrigger) (*CheckoutResult, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "booking not found", err)
	}
	if booking.Status != bookings.StatusParked || booking.SessionStartTime == nil {
		return nil, apperr.Newf(apperr.KindConflict, "booking is %s, no running session", booking.Status)
	}

	sessionStart := *booking.SessionStartTime
	if endedAt.Before(sessionStart) {
		endedAt = sessionStart
	}
	actual := durationMinutes(sessionStart, endedAt)
	quote := pricing.QuoteFor(booking.PricingSnapshot(), actual, sessionStart)
	final := quote.QuotedAmount

	captureAmount := final
	if captureAmount > booking.HeldAmount {
		captureAmount = booking.HeldAmount
	}

	outcome, err := s.wallet.Capture(ctx, booking.HoldRef(), captureAmount, booking.LandlordID, booking.PlatformFeeRate, booking.CaptureRef())
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		BookingID:             booking.ID,
		Trigger:               trigger,
		ActualDurationMinutes: actual,
		OvertimeMinutes:       overtimeMinutes(actual),
		IsWithinWindow:        booking.IsWithinWindow,
		FinalAmount:           final,
		CapturedAmount:        outcome.Captured,
		PlatformFee:           outcome.Fee,
		LandlordPayout:        outcome.Payout,
		ReleasedResidual:      outcome.ReleasedResidual,
		CompletedAt:           endedAt,
	}

	if final > booking.HeldAmount {
		shortfall := pricing.Round2(final - booking.HeldAmount)
		collection, err := s.wallet.CollectShortfall(ctx, booking.UserID, shortfall, booking.LandlordID, booking.PlatformFeeRate, booking.ShortfallRef())
		if err != nil {
			return nil, err
		}
		result.ShortfallDebited = collection.Collected
		result.PlatformFee = pricing.Round2(result.PlatformFee + collection.Fee)
		result.LandlordPayout = pricing.Round2(result.LandlordPayout + collection.Payout)
		if collection.Outstanding > 0 {
			// Checkout never blocks on an empty wallet; the uncollected
			// remainder becomes an open debt and collection happens
			// elsewhere.
			if _, err := s.wallet.RecordDebt(ctx, booking.UserID, collection.Outstanding, booking.DebtRef(), "uncollected overtime shortfall"); err != nil {
				return nil, err
			}
			result.OutstandingDebt = collection.Outstanding
		}
	}

	err = s.repo.WithTx(ctx, func(tx bookings.Repository) error {
		locked, err := tx.GetByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		if locked.Status != bookings.StatusParked {
			return apperr.Newf(apperr.KindConflict, "booking is %s, no running session", locked.Status)
		}

		locked.Status = bookings.StatusCompleted
		locked.SessionEndTime = &endedAt
		locked.ActualDurationMinutes = actual
		locked.OvertimeMinutes = result.OvertimeMinutes
		locked.FinalAmount = final
		if err := tx.Save(ctx, locked); err != nil {
			return err
		}
		return tx.ReturnSpot(ctx, locked.SpaceID)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogBookingTransition(ctx, booking.ID.String(), string(bookings.StatusParked), string(bookings.StatusCompleted))
	s.log.LogWalletMutation(ctx, booking.UserID.String(), "capture", booking.CaptureRef(), outcome.Captured)

	s.spaceSvc.SpotReturned(ctx, booking.SpaceID)
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCompleted, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID).WithPayload(map[string]interface{}{
		"final_amount": bookings.FormatAmount(final),
		"trigger":      string(trigger),
	}))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCompleted, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID).WithPayload(map[string]interface{}{
		"landlord_payout": bookings.FormatAmount(outcome.Payout),
		"trigger":         string(trigger),
	}))

	return result, nil
}

func (s *service) publish(ctx context.Context, event *realtime.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish session event", "type", event.Type, "error", err)
	}
}

// durationMinutes is the billed wall-clock span, rounded up to whole
// minutes so a started minute is a billed minute.
func durationMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Ceil(end.Sub(start).Minutes()))
}

func overtimeMinutes(actual int) int {
	if actual <= pricing.StandardWindowMinutes {
		return 0
	}
	return actual - pricing.StandardWindowMinutes
}
