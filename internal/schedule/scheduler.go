package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CarbonReporting/internal/observability"
)

// Job is a named periodic task. Run errors are reported, logged and
// counted; they never stop the schedule.
type Job struct {
	Name     string
	Interval time.Duration
	// RunOnStart fires the job immediately instead of waiting a full
	// interval first.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs each registered job on its own timer. Jobs are isolated:
// a panic or error in one job neither stops its own schedule nor touches
// the others.
type Scheduler struct {
	jobs    []Job
	metrics *observability.Metrics
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewScheduler(metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		metrics: metrics,
		logger:  logger,
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches all job loops and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
		s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("job scheduled")
	}
}

// Wait blocks until all job loops exited after context cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		s.runOnce(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()

	err := s.invoke(ctx, job)
	duration := time.Since(start)
	s.metrics.JobDuration.WithLabelValues(job.Name).Observe(duration.Seconds())

	if err != nil {
		s.metrics.JobRuns.WithLabelValues(job.Name, "FAILED").Inc()
		s.logger.Error().Err(err).Str("job", job.Name).Dur("duration", duration).Msg("job failed")
		return
	}

	s.metrics.JobRuns.WithLabelValues(job.Name, "SUCCESS").Inc()
	s.logger.Debug().Str("job", job.Name).Dur("duration", duration).Msg("job completed")
}

// invoke runs the job body, converting a panic into an error so one bad
// run cannot take the process down.
func (s *Scheduler) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}
