// Package scheduler runs ingestion on a cron schedule inside the serve process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is the unit of work triggered on every tick.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner. Overlapping ticks are skipped while a
// previous job is still running and panics are recovered and logged.
type Scheduler struct {
	cron *cron.Cron
	spec string
	log  zerolog.Logger
}

// New parses spec, either standard five-field cron syntax or a descriptor
// such as "@daily".
func New(spec string, log zerolog.Logger) (*Scheduler, error) {
	l := cronLogger{log: log}
	c := cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, spec: spec, log: log}, nil
}

// Start registers job and starts ticking in the background. Jobs receive
// ctx, so cancelling it aborts a running ingestion.
func (s *Scheduler) Start(ctx context.Context, job Job) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.spec).Time("next", s.Next()).Msg("Scheduler started")
	return nil
}

// Next returns the time of the next tick, or the zero time when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the scheduler and returns a context that is done once any
// running job has completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
