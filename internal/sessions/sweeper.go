package sessions

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"parktayo/pkg/logger"
)

// Sweeper periodically force-completes sessions stuck past the overtime
// ceiling. It is idempotent per pass; a booking settles at most once.
type Sweeper struct {
	service  Service
	interval time.Duration
	cron     gocron.Scheduler
	log      *logger.Logger
}

func NewSweeper(service Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		log:      logger.GetDefault(),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.cron = cron

	_, err = s.cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			swept, err := s.service.SweepExpired(context.Background())
			if err != nil {
				s.log.Error("hard-expiry sweep failed", "error", err)
				return
			}
			if swept > 0 {
				s.log.Info("hard-expiry sweep completed", "swept", swept)
			}
		}),
	)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("session expiry sweeper started", "interval", s.interval)
	return nil
}

func (s *Sweeper) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}
