package services

import (
	"context"
	"time"

	"vpn-assistant/internal/domain"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "*/5 * * * *"

// Sweepable is a session store that can drop expired sessions in bulk
type Sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired dialogue sessions on a cron schedule
type Sweeper struct {
	cron   *cron.Cron
	store  Sweepable
	logger domain.Logger
}

// NewSweeper creates a sweeper for the given 5-field cron expression
func NewSweeper(schedule string, store Sweepable, logger domain.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}

	return s, nil
}

// Start runs the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to sweep expired sessions")
		return
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("Expired sessions swept")
	}
}
