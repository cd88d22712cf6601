package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically scrubs stale unconsumed verification codes. A run that
// fails or panics is logged and contained; the schedule keeps firing.
type Sweeper struct {
	clean func(ctx context.Context) error
	spec  string
	log   zerolog.Logger
	cron  *cron.Cron
}

// NewSweeper schedules clean on the given cron spec (e.g. "*/10 * * * *").
func NewSweeper(clean func(ctx context.Context) error, spec string, log zerolog.Logger) *Sweeper {
	if spec == "" {
		spec = "*/10 * * * *"
	}
	return &Sweeper{clean: clean, spec: spec, log: log}
}

// Start registers the job and starts the schedule. Returns an error only when
// the cron spec itself does not parse.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.spec, func() {
		s.run(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.spec).Msg("otp sweeper started")
	return nil
}

// Stop halts the schedule. Does not interrupt a run already in progress.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("otp sweep panicked")
		}
	}()

	if err := s.clean(ctx); err != nil {
		s.log.Error().Err(err).Msg("otp sweep failed")
	}
}
