package noshow

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"parktayo/internal/bookings"
	"parktayo/internal/shared/apperr"
	"parktayo/internal/shared/constants"
	"parktayo/pkg/logger"
)

// BookingService is the slice of the bookings service the evaluator needs.
type BookingService interface {
	LoadBooking(ctx context.Context, bookingID uuid.UUID) (*bookings.Booking, error)
	CommitNoShow(ctx context.Context, bookingID uuid.UUID) (*bookings.NoShowOutcome, error)
}

// Policy tunes the evaluation loop.
type Policy struct {
	TickInterval     time.Duration
	EarlyFireSlack   time.Duration
	MaxReArms        int
	MaxAttempts      int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	EvaluationBudget time.Duration
	BatchSize        int
}

func DefaultPolicy() Policy {
	return Policy{
		TickInterval:     15 * time.Second,
		EarlyFireSlack:   30 * time.Second,
		MaxReArms:        2,
		MaxAttempts:      5,
		RetryBackoffBase: 15 * time.Second,
		RetryBackoffCap:  5 * time.Minute,
		EvaluationBudget: 30 * time.Second,
		BatchSize:        100,
	}
}

// TickStats summarizes one scheduler pass.
type TickStats struct {
	Evaluated int  `json:"evaluated"`
	Fired     int  `json:"fired"`
	Cleared   int  `json:"cleared"`
	ReArmed   int  `json:"re_armed"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped,omitempty"`
}

// Scheduler arms deferred no-show evaluations and fires the due ones. It
// implements bookings.NoShowScheduler. Only one instance evaluates at a
// time; a Redis advisory lock elects the leader per tick.
type Scheduler struct {
	repo       Repository
	bookingSvc BookingService
	redis      *redis.Client
	policy     Policy
	instanceID string

	cron gocron.Scheduler
	log  *logger.Logger
	now  func() time.Time
}

func NewScheduler(repo Repository, bookingSvc BookingService, redisClient *redis.Client, policy Policy) *Scheduler {
	return &Scheduler{
		repo:       repo,
		bookingSvc: bookingSvc,
		redis:      redisClient,
		policy:     policy,
		instanceID: uuid.New().String(),
		log:        logger.GetDefault(),
		now:        time.Now,
	}
}

// Schedule arms the evaluation for a booking. Re-arming an already armed
// booking is a no-op; the original deadline stands.
func (s *Scheduler) Schedule(ctx context.Context, bookingID uuid.UUID, fireAt time.Time) error {
	entry := &ScheduledNoShow{
		BookingID: bookingID,
		FireAt:    fireAt,
		Status:    StatusPending,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to arm no-show evaluation", err)
	}
	return nil
}

// Clear disarms a pending evaluation. Clearing an unknown or already
// terminal entry is a no-op.
func (s *Scheduler) Clear(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return s.repo.Clear(ctx, bookingID, reason)
}

// Start launches the tick loop and immediately runs one pass so that
// deadlines that elapsed while the process was down fire without waiting
// for the first interval.
func (s *Scheduler) Start(ctx context.Context) error {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return err
	}
	s.log.Info("no-show scheduler starting", "pending_entries", len(pending), "tick", s.policy.TickInterval)

	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.cron = cron

	_, err = s.cron.NewJob(
		gocron.DurationJob(s.policy.TickInterval),
		gocron.NewTask(func() {
			s.Tick(context.Background())
		}),
	)
	if err != nil {
		return err
	}

	s.cron.Start()
	go s.Tick(ctx)
	return nil
}

func (s *Scheduler) Stop() error {
	var err error
	if s.cron != nil {
		err = s.cron.Shutdown()
	}
	s.releaseLeadership(context.Background())
	return err
}

// Tick runs one evaluation pass. Followers skip the pass entirely.
func (s *Scheduler) Tick(ctx context.Context) TickStats {
	if !s.acquireLeadership(ctx) {
		return TickStats{Skipped: true}
	}

	stats := TickStats{}
	due, err := s.repo.ListDue(ctx, s.now(), s.policy.BatchSize)
	if err != nil {
		s.log.Error("failed to list due no-show entries", "error", err)
		return stats
	}

	for i := range due {
		entry := due[i]
		evalCtx, cancel := context.WithTimeout(ctx, s.policy.EvaluationBudget)
		s.evaluate(evalCtx, &entry, &stats)
		cancel()
		stats.Evaluated++
	}
	return stats
}

// evaluate decides one entry's fate: clear, re-arm, fire, or retry.
func (s *Scheduler) evaluate(ctx context.Context, entry *ScheduledNoShow, stats *TickStats) {
	booking, err := s.bookingSvc.LoadBooking(ctx, entry.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || apperr.Is(err, apperr.KindNotFound) {
			s.clearEntry(ctx, entry, "booking missing", stats)
			return
		}
		s.retryOrFail(ctx, entry, err, stats)
		return
	}

	if booking.Status != bookings.StatusAccepted || booking.HasEnteredApproachZone {
		s.clearEntry(ctx, entry, clearReason(booking), stats)
		return
	}

	if booking.NoShowCheckTime == nil {
		s.clearEntry(ctx, entry, "no deadline on booking", stats)
		return
	}

	// The booking's deadline is authoritative; the stored fireAt can lag
	// behind it when an ETA refresh pushed the check time out. Re-arm to
	// the real deadline, but only a bounded number of times so a skewed
	// clock cannot defer the evaluation forever.
	now := s.now()
	deadline := *booking.NoShowCheckTime
	if now.Before(deadline.Add(-s.policy.EarlyFireSlack)) && entry.ReArmCount < s.policy.MaxReArms {
		entry.ReArmCount++
		entry.FireAt = deadline
		if err := s.repo.Save(ctx, entry); err != nil {
			s.log.Error("failed to re-arm no-show entry", "booking_id", entry.BookingID, "error", err)
			return
		}
		stats.ReArmed++
		s.log.LogSchedulerFire(ctx, entry.BookingID.String(), entry.Attempt, "re-armed")
		return
	}

	outcome, err := s.bookingSvc.CommitNoShow(ctx, entry.BookingID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Lost the race: the driver arrived or the booking was
			// cancelled between load and commit.
			s.clearEntry(ctx, entry, "booking transitioned concurrently", stats)
			return
		}
		s.retryOrFail(ctx, entry, err, stats)
		return
	}

	entry.Status = StatusFired
	if err := s.repo.Save(ctx, entry); err != nil {
		// The no-show committed; CommitNoShow is idempotent so a replayed
		// fire after this save failure settles the same way.
		s.log.Error("failed to mark no-show entry fired", "booking_id", entry.BookingID, "error", err)
	}
	stats.Fired++
	s.log.LogSchedulerFire(ctx, entry.BookingID.String(), entry.Attempt, "fired")
	s.log.Info("no-show committed",
		"booking_id", entry.BookingID,
		"penalty_captured", outcome.PenaltyCaptured,
		"released", outcome.Released,
	)
}

func (s *Scheduler) clearEntry(ctx context.Context, entry *ScheduledNoShow, reason string, stats *TickStats) {
	entry.Status = StatusCleared
	entry.ClearedReason = reason
	if err := s.repo.Save(ctx, entry); err != nil {
		s.log.Error("failed to clear no-show entry", "booking_id", entry.BookingID, "error", err)
		return
	}
	stats.Cleared++
	s.log.LogSchedulerFire(ctx, entry.BookingID.String(), entry.Attempt, "cleared: "+reason)
}

func (s *Scheduler) retryOrFail(ctx context.Context, entry *ScheduledNoShow, cause error, stats *TickStats) {
	entry.Attempt++
	entry.LastError = cause.Error()

	if entry.Attempt >= s.policy.MaxAttempts {
		entry.Status = StatusFailed
		if err := s.repo.Save(ctx, entry); err != nil {
			s.log.Error("failed to mark no-show entry failed", "booking_id", entry.BookingID, "error", err)
			return
		}
		stats.Failed++
		s.log.LogIncident(ctx, entry.BookingID.String(), "no-show evaluation exhausted retries", cause)
		return
	}

	entry.FireAt = s.now().Add(s.backoff(entry.Attempt))
	if err := s.repo.Save(ctx, entry); err != nil {
		s.log.Error("failed to reschedule no-show retry", "booking_id", entry.BookingID, "error", err)
		return
	}
	stats.Retried++
	s.log.LogSchedulerFire(ctx, entry.BookingID.String(), entry.Attempt, "retry scheduled")
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.policy.RetryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.policy.RetryBackoffCap {
			return s.policy.RetryBackoffCap
		}
	}
	if d > s.policy.RetryBackoffCap {
		return s.policy.RetryBackoffCap
	}
	return d
}

func clearReason(b *bookings.Booking) string {
	if b.HasEnteredApproachZone {
		return "driver entered approach zone"
	}
	return "booking no longer accepted (" + string(b.Status) + ")"
}

// acquireLeadership claims or refreshes the advisory leader lock. Without
// a Redis client the process runs standalone and is always the leader.
func (s *Scheduler) acquireLeadership(ctx context.Context) bool {
	if s.redis == nil {
		return true
	}

	ok, err := s.redis.SetNX(ctx, constants.KEY_NO_SHOW_LEADER, s.instanceID, constants.TTL_LEADER_LOCK).Result()
	if err != nil {
		s.log.Warn("leader lock unavailable, skipping tick", "error", err)
		return false
	}
	if ok {
		return true
	}

	holder, err := s.redis.Get(ctx, constants.KEY_NO_SHOW_LEADER).Result()
	if err == nil && holder == s.instanceID {
		s.redis.Expire(ctx, constants.KEY_NO_SHOW_LEADER, constants.TTL_LEADER_LOCK)
		return true
	}
	return false
}

var luaReleaseLeader = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

func (s *Scheduler) releaseLeadership(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Eval(ctx, luaReleaseLeader, []string{constants.KEY_NO_SHOW_LEADER}, s.instanceID).Err(); err != nil && err != redis.Nil {
		s.log.Warn("failed to release leader lock", "error", err)
	}
}
