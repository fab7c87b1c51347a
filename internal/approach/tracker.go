package approach

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"parktayo/internal/bookings"
	"parktayo/internal/realtime"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/spaces"
	"parktayo/pkg/logger"
)

// BookingService is the slice of the bookings service the tracker needs.
type BookingService interface {
	LoadBooking(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error)
	MarkApproachEntered(ctx context.Context, bookingID uuid.UUID, at time.Time) (*bookings.Booking, error)
	ListAcceptedBookings(ctx context.Context) ([]bookings.Booking, error)
}

// SpaceLocator resolves a space's centroid.
type SpaceLocator interface {
	GetSpace(ctx context.Context, id uuid.UUID) (*spaces.ParkingSpace, error)
}

// NoShowClearer disarms the pending no-show evaluation once the driver is
// in the zone.
type NoShowClearer interface {
	Clear(ctx context.Context, bookingID uuid.UUID, reason string) error
}

// Config tunes approach detection.
type Config struct {
	ZoneRadiusMeters  float64
	MaxAccuracyMeters float64
	StaleAfter        time.Duration
	ProbeInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ZoneRadiusMeters:  150,
		MaxAccuracyMeters: 100,
		StaleAfter:        90 * time.Second,
		ProbeInterval:     30 * time.Second,
	}
}

// LocationUpdate is one GPS sample from the driver's device.
type LocationUpdate struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Timestamp time.Time
}

// IngestResult summarizes one batch.
type IngestResult struct {
	BookingID         uuid.UUID  `json:"booking_id"`
	Accepted          int        `json:"accepted"`
	Discarded         int        `json:"discarded"`
	Entered           bool       `json:"entered_approach_zone"`
	MinDistanceMeters float64    `json:"min_distance_meters"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
}

// presence is the in-memory per-booking record. Loss on restart is fine:
// zone entry is persisted on the booking and Rehydrate reloads the rest.
type presence struct {
	bookingID  uuid.UUID
	userID     uuid.UUID
	landlordID uuid.UUID
	spaceID    uuid.UUID

	destLat float64
	destLng float64

	lastSeenAt      time.Time
	minDistanceSeen float64
	entered         bool
	staleNotified   bool
}

// Tracker watches driver positions for accepted bookings and detects the
// first entry into the approach zone. Arrival state lives on the booking;
// the tracker only holds ephemeral presence.
type Tracker struct {
	bookingSvc BookingService
	spaces     SpaceLocator
	clearer    NoShowClearer
	publisher  realtime.Publisher
	config     Config

	mu      sync.Mutex
	records map[uuid.UUID]*presence

	stopProbe chan struct{}
	log       *logger.Logger
	now       func() time.Time
}

func NewTracker(bookingSvc BookingService, spaceLocator SpaceLocator, clearer NoShowClearer, publisher realtime.Publisher, config Config) *Tracker {
	return &Tracker{
		bookingSvc: bookingSvc,
		spaces:     spaceLocator,
		clearer:    clearer,
		publisher:  publisher,
		config:     config,
		records:    make(map[uuid.UUID]*presence),
		stopProbe:  make(chan struct{}),
		log:        logger.GetDefault(),
		now:        time.Now,
	}
}

// Ingest processes a batch of location samples for one booking. Samples with
// poor accuracy or timestamps at or before the last processed sample are
// discarded; there is no backfill.
func (t *Tracker) Ingest(ctx context.Context, userID, bookingID uuid.UUID, updates []LocationUpdate) (*IngestResult, error) {
	rec, err := t.recordFor(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	sorted := make([]LocationUpdate, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	result := &IngestResult{BookingID: bookingID}

	// Update presence under the lock; the first in-zone sample is only
	// noted here, the persist/clear/publish side effects run after the
	// lock is released.
	var crossed bool
	var entryAt time.Time
	var entryDistance float64

	t.mu.Lock()
	for _, update := range sorted {
		if update.Accuracy > t.config.MaxAccuracyMeters || !update.Timestamp.After(rec.lastSeenAt) {
			result.Discarded++
			continue
		}

		rec.lastSeenAt = update.Timestamp
		rec.staleNotified = false
		result.Accepted++

		distance := haversineMeters(update.Latitude, update.Longitude, rec.destLat, rec.destLng)
		if rec.minDistanceSeen == 0 || distance < rec.minDistanceSeen {
			rec.minDistanceSeen = distance
		}

		if !rec.entered && !crossed && distance <= t.config.ZoneRadiusMeters {
			crossed = true
			entryAt = update.Timestamp
			entryDistance = distance
		}
	}
	entered := rec.entered
	result.MinDistanceMeters = rec.minDistanceSeen
	if !rec.lastSeenAt.IsZero() {
		seen := rec.lastSeenAt
		result.LastSeenAt = &seen
	}
	t.mu.Unlock()

	if crossed && !entered {
		if err := t.enterZone(ctx, rec, entryAt, entryDistance); err != nil {
			return nil, err
		}
		entered = true
	}

	result.Entered = entered
	return result, nil
}

// enterZone persists zone entry, disarms the no-show evaluation, and tells
// both sides. Runs without the tracker lock: MarkApproachEntered is
// idempotent, and the entered flag is re-checked after the persist so two
// racing batches converge on one clear and one event pair.
func (t *Tracker) enterZone(ctx context.Context, rec *presence, at time.Time, distance float64) error {
	if _, err := t.bookingSvc.MarkApproachEntered(ctx, rec.bookingID, at); err != nil {
		return err
	}

	t.mu.Lock()
	already := rec.entered
	rec.entered = true
	t.mu.Unlock()
	if already {
		return nil
	}

	if t.clearer != nil {
		if err := t.clearer.Clear(ctx, rec.bookingID, "entered approach zone"); err != nil {
			t.log.Warn("failed to clear no-show entry on zone entry", "booking_id", rec.bookingID, "error", err)
		}
	}

	payload := map[string]interface{}{"distance_meters": distance}
	t.publish(ctx, realtime.NewEvent(realtime.EventApproachEntered, realtime.AudienceUser, rec.userID, rec.bookingID).WithSpace(rec.spaceID).WithPayload(payload))
	t.publish(ctx, realtime.NewEvent(realtime.EventApproachEntered, realtime.AudienceLandlord, rec.landlordID, rec.bookingID).WithSpace(rec.spaceID).WithPayload(payload))

	t.log.Info("approach zone entered", "booking_id", rec.bookingID, "distance_meters", distance)
	return nil
}

// recordFor returns the presence record, creating it from the booking
// aggregate on first contact.
func (t *Tracker) recordFor(ctx context.Context, userID, bookingID uuid.UUID) (*presence, error) {
	t.mu.Lock()
	if rec, ok := t.records[bookingID]; ok {
		t.mu.Unlock()
		if rec.userID != userID {
			return nil, apperr.New(apperr.KindForbidden, "booking belongs to another user")
		}
		return rec, nil
	}
	t.mu.Unlock()

	booking, err := t.bookingSvc.LoadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "booking belongs to another user")
	}
	if booking.Status != bookings.StatusAccepted {
		return nil, apperr.Newf(apperr.KindConflict, "booking is %s, not awaiting arrival", booking.Status)
	}

	space, err := t.spaces.GetSpace(ctx, booking.SpaceID)
	if err != nil {
		return nil, err
	}

	rec := &presence{
		bookingID:  booking.ID,
		userID:     booking.UserID,
		landlordID: booking.LandlordID,
		spaceID:    booking.SpaceID,
		destLat:    space.Latitude,
		destLng:    space.Longitude,
		entered:    booking.HasEnteredApproachZone,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.records[bookingID]; ok {
		return existing, nil
	}
	t.records[bookingID] = rec
	return rec, nil
}

// Forget drops the presence record, typically after a terminal transition.
func (t *Tracker) Forget(bookingID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, bookingID)
}

// Rehydrate rebuilds presence records for every accepted booking. Run once
// on startup; bookings already in the zone come back with entered set so
// the event does not re-fire.
func (t *Tracker) Rehydrate(ctx context.Context) error {
	accepted, err := t.bookingSvc.ListAcceptedBookings(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for i := range accepted {
		booking := &accepted[i]
		space, err := t.spaces.GetSpace(ctx, booking.SpaceID)
		if err != nil {
			t.log.Warn("skipping rehydration, space unavailable", "booking_id", booking.ID, "error", err)
			continue
		}

		t.mu.Lock()
		t.records[booking.ID] = &presence{
			bookingID:  booking.ID,
			userID:     booking.UserID,
			landlordID: booking.LandlordID,
			spaceID:    booking.SpaceID,
			destLat:    space.Latitude,
			destLng:    space.Longitude,
			entered:    booking.HasEnteredApproachZone,
			lastSeenAt: t.now(),
		}
		t.mu.Unlock()
		restored++
	}

	t.log.Info("approach tracker rehydrated", "bookings", restored)
	return nil
}

// StartProbe launches the staleness loop. A booking with no sample for the
// stale window gets one stale_presence event; booking state is untouched,
// the no-show scheduler stays authoritative.
func (t *Tracker) StartProbe(ctx context.Context) {
	ticker := time.NewTicker(t.config.ProbeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.probe(ctx)
			case <-t.stopProbe:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *Tracker) StopProbe() {
	close(t.stopProbe)
}

func (t *Tracker) probe(ctx context.Context) {
	now := t.now()

	t.mu.Lock()
	var stale []*presence
	for _, rec := range t.records {
		if rec.entered || rec.staleNotified || rec.lastSeenAt.IsZero() {
			continue
		}
		if now.Sub(rec.lastSeenAt) > t.config.StaleAfter {
			rec.staleNotified = true
			stale = append(stale, rec)
		}
	}
	t.mu.Unlock()

	for _, rec := range stale {
		payload := map[string]interface{}{"last_seen_at": rec.lastSeenAt}
		t.publish(ctx, realtime.NewEvent(realtime.EventStalePresence, realtime.AudienceLandlord, rec.landlordID, rec.bookingID).WithSpace(rec.spaceID).WithPayload(payload))
		t.log.Debug("stale presence", "booking_id", rec.bookingID, "last_seen_at", rec.lastSeenAt)
	}
}

func (t *Tracker) publish(ctx context.Context, event *realtime.Event) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(ctx, event); err != nil {
		t.log.Warn("failed to publish approach event", "type", event.Type, "error", err)
	}
}
