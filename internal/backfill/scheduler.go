package backfill

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the backfill worker on a cron schedule.
type Scheduler struct {
	worker *Worker
	spec   string
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler that runs the worker per the cron spec,
// e.g. "0 */6 * * *" for every six hours.
func NewScheduler(worker *Worker, spec string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		worker: worker,
		spec:   spec,
		cron:   cron.New(),
		logger: logger.With().Str("component", "backfill_scheduler").Logger(),
	}
}

// Start registers the cron entry and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("backfill scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.worker.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled backfill run failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.spec).Msg("backfill scheduler started")
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("backfill scheduler stopped")
}
