// Package sweep runs the engine's periodic background jobs and provides the
// bounded fan-out used by batch operations.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one periodic task. Errors are logged and the job runs again on the
// next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each registered job on its own ticker so a slow sweep never
// delays the others.
type Scheduler struct {
	jobs   []Job
	logger zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds a job. Jobs with a non-positive interval are disabled.
func (s *Scheduler) Register(job Job) {
	if job.Interval <= 0 {
		s.logger.Info().Str("job", job.Name).Msg("sweep job disabled")
		return
	}
	s.jobs = append(s.jobs, job)
}

// Jobs returns the enabled jobs.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start blocks until ctx is cancelled and every job loop has returned.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("sweep job started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes a job immediately, logging its outcome.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("sweep job failed")
		return
	}
	s.logger.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("sweep job completed")
}
