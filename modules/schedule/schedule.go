// Package schedule dispatches actions on cron schedules from a model
// subscription.
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/model"
)

// ErrDuplicateJob is returned when a job name is already registered.
var ErrDuplicateJob = errors.New("schedule: duplicate job name")

// Job dispatches Action on every tick of Schedule. Schedule accepts five
// or six fields (seconds optional) and descriptors such as "@every 10s".
type Job struct {
	Name     string        `yaml:"name"`
	Schedule string        `yaml:"schedule"`
	Action   action.Action `yaml:"action"`
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks that expr parses.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("schedule: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler holds the jobs of one model.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []Job
	names  map[string]struct{}
	logger *slog.Logger
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		names:  make(map[string]struct{}),
		logger: logger.With("component", "schedule"),
	}
}

// Add registers j.
func (s *Scheduler) Add(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[j.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateJob, j.Name)
	}
	s.names[j.Name] = struct{}{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Subscription returns a model subscription running every job until it is
// unlistened. A tick is skipped while the previous one of the same job is
// still dispatching.
func (s *Scheduler) Subscription() model.Subscription {
	return func(api model.SubscriptionAPI, onError func(error)) func() {
		s.mu.Lock()
		jobs := append([]Job(nil), s.jobs...)
		s.mu.Unlock()

		c := cron.New(cron.WithParser(parser))
		for _, job := range jobs {
			var lock sync.Mutex
			_, err := c.AddFunc(job.Schedule, func() {
				if !lock.TryLock() {
					s.logger.Warn("job still running, skipping tick", "job", job.Name)
					return
				}
				defer lock.Unlock()

				if _, err := api.Dispatch(job.Action); err != nil {
					onError(fmt.Errorf("schedule: job %q: %w", job.Name, err))
				}
			})
			if err != nil {
				onError(fmt.Errorf("schedule: invalid schedule for job %q: %w", job.Name, err))
				return nil
			}
		}

		c.Start()
		s.logger.Debug("scheduler started", "jobs", len(jobs))
		return func() {
			<-c.Stop().Done()
			s.logger.Debug("scheduler stopped")
		}
	}
}
