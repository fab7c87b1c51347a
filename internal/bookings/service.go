package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parktayo/internal/eta"
	"parktayo/internal/pricing"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/spaces"
	"parktayo/internal/users"
	"parktayo/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletService is the funds contract the state machine needs. Declared
// locally so tests can fake it without touching the ledger package.
type WalletService interface {
	Hold(ctx context.Context, userID uuid.UUID, amount float64, refID, description string) (*walletEntry, error)
	Release(ctx context.Context, holdRef, reason string) (*walletEntry, error)
	Capture(ctx context.Context, holdRef string, amount float64, recipientUserID uuid.UUID, platformFeeRate float64, refID string) (*captureOutcome, error)
}

// walletEntry and captureOutcome mirror the ledger package's result shapes.
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

// SpaceProvider is the capacity/pricing surface the state machine reads.
type SpaceProvider interface {
	GetSpace(ctx context.Context, id uuid.UUID) (*spaces.ParkingSpace, error)
	SpotTaken(ctx context.Context, spaceID uuid.UUID)
	SpotReturned(ctx context.Context, spaceID uuid.UUID)
}

// NoShowScheduler arms and clears the deferred no-show evaluation for a
// booking. Implemented by the scheduler package; injected via setter to
// break the mutual dependency.
type NoShowScheduler interface {
	Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error
	Clear(ctx context.Context, bookingID uuid.UUID, reason string) error
}

// VehicleDirectory validates vehicle ownership.
type VehicleDirectory interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*users.Vehicle, error)
}

// Policy carries the booking-core tunables frozen into each booking.
type Policy struct {
	GracePeriodMinutes  int
	FallbackETAMinutes  int
	NoShowPenaltyRate   float64
	PlatformFeeRate     float64
	SurgePlatformShare  float64
	MaxOvertimeCeilingH int
}

// NoShowOutcome reports the funds movement of a committed no-show.
type NoShowOutcome struct {
	BookingID       uuid.UUID `json:"booking_id"`
	PenaltyCaptured float64   `json:"penalty_captured"`
	Released        float64   `json:"released"`
}

type Service interface {
	// SetScheduler wires the no-show scheduler after both services exist.
	SetScheduler(scheduler NoShowScheduler)

	CreateSmartBooking(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*CreateBookingResponse, error)
	CreateReservation(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*CreateBookingResponse, error)
	AcceptReservation(ctx context.Context, landlordID, bookingID uuid.UUID) (*Booking, error)
	RejectReservation(ctx context.Context, landlordID, bookingID uuid.UUID) error
	Cancel(ctx context.Context, userID, bookingID uuid.UUID) error
	ArriveConfirm(ctx context.Context, userID, bookingID uuid.UUID) (*Booking, error)
	GetBooking(ctx context.Context, requesterID, bookingID uuid.UUID) (*Booking, error)
	ListUserBookings(ctx context.Context, userID uuid.UUID, status Status, page, limit int) (*PaginatedBookings, error)

	// CommitNoShow forces the terminal no-show transition. Called only by
	// the scheduler's evaluator; idempotent per booking.
	CommitNoShow(ctx context.Context, bookingID uuid.UUID) (*NoShowOutcome, error)

	// MarkApproachEntered persists zone entry exactly once.
	MarkApproachEntered(ctx context.Context, bookingID uuid.UUID, at time.Time) (*Booking, error)

	// ListAcceptedBookings feeds approach-tracker rehydration.
	ListAcceptedBookings(ctx context.Context) ([]Booking, error)

	// LoadBooking fetches a booking without a participant check; for
	// internal collaborators only.
	LoadBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
}

type service struct {
	repo      Repository
	vehicles  VehicleDirectory
	wallet    WalletService
	spaceSvc  SpaceProvider
	oracle    eta.Oracle
	publisher realtime.Publisher
	scheduler NoShowScheduler
	policy    Policy
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	vehicles VehicleDirectory,
	walletSvc WalletService,
	spaceSvc SpaceProvider,
	oracle eta.Oracle,
	publisher realtime.Publisher,
	policy Policy,
) Service {
	return &service{
		repo:      repo,
		vehicles:  vehicles,
		wallet:    walletSvc,
		spaceSvc:  spaceSvc,
		oracle:    oracle,
		publisher: publisher,
		policy:    policy,
		log:       logger.GetDefault(),
		now:       time.Now,
	}
}

func (s *service) SetScheduler(scheduler NoShowScheduler) {
	s.scheduler = scheduler
}

func (s *service) CreateSmartBooking(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*CreateBookingResponse, error) {
	space, err := s.validateBookingInputs(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	estimate := s.oracle.Estimate(ctx,
		eta.Point{Latitude: req.CurrentLatitude, Longitude: req.CurrentLongitude},
		eta.Point{Latitude: space.Latitude, Longitude: space.Longitude},
	)

	booking := s.buildBooking(userID, space, req, ModeBookNow)
	s.applyArrivalPrediction(booking, estimate.Minutes, string(estimate.Source))

	if err := s.acceptBooking(ctx, booking, space); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCreated, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCreated, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID))

	return &CreateBookingResponse{
		Booking: NewBookingView(booking),
		ETA:     estimate,
	}, nil
}

func (s *service) CreateReservation(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*CreateBookingResponse, error) {
	space, err := s.validateBookingInputs(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	booking := s.buildBooking(userID, space, req, ModeReservation)
	booking.Status = StatusPending

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCreated, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID))

	return &CreateBookingResponse{Booking: NewBookingView(booking)}, nil
}

func (s *service) AcceptReservation(ctx context.Context, landlordID, bookingID uuid.UUID) (*Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.LandlordID != landlordID {
		return nil, apperr.New(apperr.KindForbidden, "booking belongs to another landlord")
	}
	if booking.Status != StatusPending {
		return nil, transitionError(booking.Status, StatusAccepted)
	}

	space, err := s.spaceSvc.GetSpace(ctx, booking.SpaceID)
	if err != nil {
		return nil, err
	}

	// The driver's position is unknown at approval time; arm the no-show
	// window from the fallback estimate.
	s.applyArrivalPrediction(booking, s.policy.FallbackETAMinutes, string(eta.SourceFallback))

	if err := s.acceptBooking(ctx, booking, space); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.NewEvent(realtime.EventBookingAccepted, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	return booking, nil
}

func (s *service) RejectReservation(ctx context.Context, landlordID, bookingID uuid.UUID) error {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.LandlordID != landlordID {
		return apperr.New(apperr.KindForbidden, "booking belongs to another landlord")
	}
	if booking.Status != StatusPending {
		return transitionError(booking.Status, StatusCancelled)
	}

	now := s.now()
	booking.Status = StatusCancelled
	booking.CancelledAt = &now
	if err := s.repo.Save(ctx, booking); err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}

	s.log.LogBookingTransition(ctx, booking.ID.String(), string(StatusPending), string(StatusCancelled))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingRejected, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	return nil
}

func (s *service) Cancel(ctx context.Context, userID, bookingID uuid.UUID) error {
	var released bool
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		booking, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.UserID != userID {
			return apperr.New(apperr.KindForbidden, "booking belongs to another user")
		}

		switch booking.Status {
		case StatusPending, StatusAccepted:
		default:
			return transitionError(booking.Status, StatusCancelled)
		}
		if !s.now().Before(booking.StartTime) {
			return apperr.New(apperr.KindConflict,
				"cancellation window closed: booking already started")
		}

		from := booking.Status
		now := s.now()
		booking.Status = StatusCancelled
		booking.CancelledAt = &now
		if err := tx.Save(ctx, booking); err != nil {
			return err
		}

		if from == StatusAccepted {
			released = true
			if err := tx.ReturnSpot(ctx, booking.SpaceID); err != nil {
				return err
			}
		}

		s.log.LogBookingTransition(ctx, booking.ID.String(), string(from), string(StatusCancelled))
		return nil
	})
	if err != nil {
		return err
	}

	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if released {
		if _, err := s.wallet.Release(ctx, booking.HoldRef(), "booking cancelled"); err != nil {
			s.log.LogIncident(ctx, booking.ID.String(), "hold release after cancel failed", err)
		}
		if s.scheduler != nil {
			if err := s.scheduler.Clear(ctx, booking.ID, "cancelled"); err != nil {
				s.log.Warn("failed to clear no-show entry", "booking_id", booking.ID, "error", err)
			}
		}
		s.spaceSvc.SpotReturned(ctx, booking.SpaceID)
	}

	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCancelled, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingCancelled, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID))
	return nil
}

func (s *service) ArriveConfirm(ctx context.Context, userID, bookingID uuid.UUID) (*Booking, error) {
	var booking *Booking
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return apperr.New(apperr.KindForbidden, "booking belongs to another user")
		}
		if b.Status != StatusAccepted {
			return transitionError(b.Status, StatusParked)
		}

		now := s.now()
		b.Status = StatusParked
		b.SessionStartTime = &now
		b.IsWithinWindow = !now.After(b.WindowEndTime)
		if err := tx.Save(ctx, b); err != nil {
			return err
		}

		s.log.LogBookingTransition(ctx, b.ID.String(), string(StatusAccepted), string(StatusParked))
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		if err := s.scheduler.Clear(ctx, booking.ID, "arrived"); err != nil {
			s.log.Warn("failed to clear no-show entry", "booking_id", booking.ID, "error", err)
		}
	}

	s.publish(ctx, realtime.NewEvent(realtime.EventBookingParked, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingParked, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID))
	return booking, nil
}

func (s *service) GetBooking(ctx context.Context, requesterID, bookingID uuid.UUID) (*Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != requesterID && booking.LandlordID != requesterID {
		return nil, apperr.New(apperr.KindForbidden, "not a participant of this booking")
	}
	return booking, nil
}

func (s *service) ListUserBookings(ctx context.Context, userID uuid.UUID, status Status, page, limit int) (*PaginatedBookings, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	bookings, total, err := s.repo.ListByUser(ctx, userID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	views := make([]BookingView, 0, len(bookings))
	for i := range bookings {
		views = append(views, *NewBookingView(&bookings[i]))
	}
	return &PaginatedBookings{
		Bookings:   views,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *service) CommitNoShow(ctx context.Context, bookingID uuid.UUID) (*NoShowOutcome, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != StatusAccepted {
		return nil, apperr.Newf(apperr.KindConflict,
			"booking is %s, not eligible for no-show", booking.Status)
	}
	if booking.HasEnteredApproachZone {
		return nil, apperr.New(apperr.KindConflict, "driver already entered the approach zone")
	}

	penalty := pricing.Round2(booking.HeldAmount * s.policy.NoShowPenaltyRate)

	// Capture first: the capture is idempotent on the hold, so a crash
	// between funds and status is healed by the scheduler's retry.
	outcome, err := s.wallet.Capture(ctx, booking.HoldRef(), penalty, booking.LandlordID, booking.PlatformFeeRate, booking.PenaltyRef())
	if err != nil {
		return nil, fmt.Errorf("penalty capture failed: %w", err)
	}

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != StatusAccepted {
			// Funds already settled by a concurrent commit; nothing to do.
			return nil
		}
		b.Status = StatusNoShow
		b.FinalAmount = penalty
		if err := tx.Save(ctx, b); err != nil {
			return err
		}
		if err := tx.ReturnSpot(ctx, b.SpaceID); err != nil {
			return err
		}
		s.log.LogBookingTransition(ctx, b.ID.String(), string(StatusAccepted), string(StatusNoShow))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.spaceSvc.SpotReturned(ctx, booking.SpaceID)
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingNoShow, realtime.AudienceUser, booking.UserID, booking.ID).WithSpace(booking.SpaceID))
	s.publish(ctx, realtime.NewEvent(realtime.EventBookingNoShow, realtime.AudienceLandlord, booking.LandlordID, booking.ID).WithSpace(booking.SpaceID))

	return &NoShowOutcome{
		BookingID:       bookingID,
		PenaltyCaptured: outcome.Captured,
		Released:        outcome.ReleasedResidual,
	}, nil
}

func (s *service) MarkApproachEntered(ctx context.Context, bookingID uuid.UUID, at time.Time) (*Booking, error) {
	var booking *Booking
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		b, err := lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.HasEnteredApproachZone {
			booking = b
			return nil
		}
		if b.Status != StatusAccepted {
			return apperr.Newf(apperr.KindConflict, "booking is %s, approach not tracked", b.Status)
		}
		b.HasEnteredApproachZone = true
		b.FirstApproachAt = &at
		if err := tx.Save(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) ListAcceptedBookings(ctx context.Context) ([]Booking, error) {
	return s.repo.ListByStatus(ctx, StatusAccepted)
}

func (s *service) LoadBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return s.loadBooking(ctx, bookingID)
}

// validateBookingInputs checks vehicle ownership, space existence, and the
// operating-hours contract.
func (s *service) validateBookingInputs(ctx context.Context, userID uuid.UUID, req CreateBookingRequest) (*spaces.ParkingSpace, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, apperr.New(apperr.KindInvalidInput, "end time must be after start time")
	}

	vehicle, err := s.vehicles.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "vehicle not found")
		}
		return nil, fmt.Errorf("failed to load vehicle: %w", err)
	}
	if vehicle.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "vehicle belongs to another user")
	}

	space, err := s.spaceSvc.GetSpace(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if !space.IsActive {
		return nil, apperr.New(apperr.KindConflict, "space is not accepting bookings")
	}
	if err := space.ValidateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	return space, nil
}

// buildBooking assembles the aggregate with its frozen pricing snapshot.
func (s *service) buildBooking(userID uuid.UUID, space *spaces.ParkingSpace, req CreateBookingRequest, mode Mode) *Booking {
	snapshot := space.PricingSnapshot(s.policy.PlatformFeeRate, s.policy.SurgePlatformShare)
	planned := int(req.EndTime.Sub(req.StartTime).Minutes())
	quote := pricing.QuoteFor(snapshot, planned, req.StartTime)

	// The escrow covers the standard window at effective rates; overtime is
	// settled at checkout.
	standard := pricing.QuoteFor(snapshot, pricing.StandardWindowMinutes, req.StartTime)
	held := standard.QuotedAmount
	if base := pricing.Round2(snapshot.PricePer3Hours); base > held {
		held = base
	}

	return &Booking{
		ID:                  uuid.New(),
		UserID:              userID,
		SpaceID:             space.ID,
		LandlordID:          space.LandlordID,
		VehicleID:           req.VehicleID,
		Mode:                mode,
		Status:              StatusPending,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		GracePeriodMinutes:  s.policy.GracePeriodMinutes,
		BasePricePer3Hours:  snapshot.PricePer3Hours,
		OvertimeRatePerHour: snapshot.OvertimeRatePerHour,
		DailyRate:           snapshot.DailyRate,
		SurgeMultiplier:     snapshot.SurgeMultiplier,
		PlatformFeeRate:     snapshot.PlatformFeeRate,
		SurgePlatformShare:  snapshot.SurgePlatformShare,
		PricingTimezone:     snapshot.Timezone,
		QuotedAmount:        quote.QuotedAmount,
		HeldAmount:          held,
	}
}

// applyArrivalPrediction stamps the arrival contract. noShowCheckTime is
// startTime + eta + grace, computed here and nowhere else.
func (s *service) applyArrivalPrediction(b *Booking, etaMinutes int, source string) {
	b.ETAMinutes = etaMinutes
	b.ETASource = source
	b.EstimatedDurationMinutes = etaMinutes + b.GracePeriodMinutes
	b.WindowEndTime = b.StartTime.Add(time.Duration(b.EstimatedDurationMinutes) * time.Minute)
	checkAt := b.StartTime.Add(time.Duration(etaMinutes+b.GracePeriodMinutes) * time.Minute)
	b.NoShowCheckTime = &checkAt
}

// acceptBooking is the shared acceptance step: escrow hold, conditional
// spot decrement, persist as accepted, arm the scheduler. The hold happens
// before the transaction; its reference id makes the compensating release
// safe if the transaction fails.
func (s *service) acceptBooking(ctx context.Context, booking *Booking, space *spaces.ParkingSpace) error {
	if _, err := s.wallet.Hold(ctx, booking.UserID, booking.HeldAmount, booking.HoldRef(), "parking escrow"); err != nil {
		return err
	}

	booking.Status = StatusAccepted
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		taken, err := tx.TakeSpot(ctx, booking.SpaceID)
		if err != nil {
			return err
		}
		if !taken {
			return apperr.New(apperr.KindNoCapacity, "no spots available")
		}

		if booking.CreatedAt.IsZero() {
			return tx.Create(ctx, booking)
		}
		return tx.Save(ctx, booking)
	})
	if err != nil {
		if _, relErr := s.wallet.Release(ctx, booking.HoldRef(), "booking not persisted"); relErr != nil {
			s.log.LogIncident(ctx, booking.ID.String(), "compensating release failed", relErr)
		}
		return err
	}

	s.log.LogBookingTransition(ctx, booking.ID.String(), string(StatusPending), string(StatusAccepted))
	s.spaceSvc.SpotTaken(ctx, booking.SpaceID)

	if s.scheduler != nil && booking.NoShowCheckTime != nil {
		if err := s.scheduler.Schedule(ctx, booking.ID, *booking.NoShowCheckTime); err != nil {
			s.log.LogIncident(ctx, booking.ID.String(), "failed to arm no-show entry", err)
		}
	}
	return nil
}

func (s *service) loadBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "booking not found")
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return booking, nil
}

func lockBooking(ctx context.Context, tx Repository, bookingID uuid.UUID) (*Booking, error) {
	booking, err := tx.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "booking not found")
		}
		return nil, err
	}
	return booking, nil
}

func (s *service) publish(ctx context.Context, event *realtime.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", "type", event.Type, "booking_id", event.BookingID, "error", err)
	}
}
