// Package scheduler runs recurring jobs on cron schedules, persisting job
// state in SQLite and dispatching due jobs onto the worker pool. Its one
// production job kind is the hourly access-token refresh.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dtfquotes-go/internal/metrics"
	"dtfquotes-go/internal/storage"
	"dtfquotes-go/internal/worker"

	"github.com/google/uuid"
)

// Job statuses as persisted.
const (
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDead      = "dead"
)

const maxJobRetries = 3

// HandlerFunc executes one run of a job.
type HandlerFunc func(ctx context.Context, job *storage.Job) error

// Scheduler manages recurring jobs: deduplication, persistence and
// dispatch. Handlers are registered per job type before Start.
type Scheduler struct {
	store  *storage.JobStore
	pool   *worker.Pool
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wakeup chan struct{}

	mu       sync.Mutex
	jobs     map[string]*storage.Job
	handlers map[string]HandlerFunc
}

// New creates a Scheduler and loads persisted jobs.
func New(ctx context.Context, store *storage.JobStore, pool *worker.Pool, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	cctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		store:    store,
		pool:     pool,
		logger:   logger,
		ctx:      cctx,
		cancel:   cancel,
		wakeup:   make(chan struct{}, 1),
		jobs:     make(map[string]*storage.Job),
		handlers: make(map[string]HandlerFunc),
	}

	jobs, err := store.List(cctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("loading persisted jobs: %w", err)
	}
	for _, job := range jobs {
		// A job caught mid-run by a previous shutdown goes back to scheduled.
		if job.Status == StatusRunning {
			job.Status = StatusScheduled
		}
		s.jobs[job.ID] = job
	}
	return s, nil
}

// RegisterHandler binds a handler to a job type.
func (s *Scheduler) RegisterHandler(jobType string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

// ScheduleJob schedules a recurring job, deduplicating on type+schedule.
func (s *Scheduler) ScheduleJob(jobType, schedule string) (*storage.Job, error) {
	cron, err := ParseCron(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Type == jobType && job.Schedule == schedule {
			job.Status = StatusScheduled
			job.RetryCount = 0
			job.NextRun = cron.Next(time.Now())
			if err := s.store.Upsert(s.ctx, job); err != nil {
				return nil, err
			}
			s.signalWakeup()
			return job, nil
		}
	}

	job := &storage.Job{
		ID:       uuid.NewString(),
		Type:     jobType,
		Schedule: schedule,
		Status:   StatusScheduled,
		NextRun:  cron.Next(time.Now()),
	}
	s.jobs[job.ID] = job
	if err := s.store.Upsert(s.ctx, job); err != nil {
		return nil, err
	}
	s.signalWakeup()
	return job, nil
}

// Start begins the scheduling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// loop waits for the earliest NextRun and dispatches due jobs.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		next := s.nextRunTime()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.dispatchDue(time.Now())
		case <-s.wakeup:
			timer.Stop()
		}
	}
}

// nextRunTime finds the soonest NextRun among scheduled jobs.
func (s *Scheduler) nextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := time.Now().Add(24 * time.Hour)
	for _, job := range s.jobs {
		if job.Status == StatusScheduled && job.NextRun.Before(next) {
			next = job.NextRun
		}
	}
	return next
}

// dispatchDue submits every due job to the worker pool.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Status != StatusScheduled || job.NextRun.After(now) {
			continue
		}
		handler, ok := s.handlers[job.Type]
		if !ok {
			s.logger.Printf("scheduler: no handler for job type %q, skipping %s", job.Type, job.ID)
			continue
		}
		job.Status = StatusRunning
		if !s.pool.Submit(&jobTask{scheduler: s, job: job, handler: handler}) {
			// Queue full: leave the job scheduled and try next tick.
			job.Status = StatusScheduled
			s.logger.Printf("scheduler: worker queue full, delaying job %s", job.ID)
		}
	}
}

// jobTask adapts one job run to the worker pool's Task interface.
type jobTask struct {
	scheduler *Scheduler
	job       *storage.Job
	handler   HandlerFunc
}

// Process runs the job once and records the outcome. The worker pool
// retries the task itself, so a single failure here only bumps the retry
// count; exhausting the pool's retries dead-letters the task and the job
// stays failed until its next scheduled run.
func (t *jobTask) Process() error {
	s := t.scheduler
	err := t.handler(s.ctx, t.job)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t.job.LastRun = &now

	if err != nil {
		metrics.JobsExecuted.WithLabelValues(t.job.Type, "error").Inc()
		t.job.RetryCount++
		t.job.LastError = err.Error()
		if t.job.RetryCount >= maxJobRetries {
			t.job.Status = StatusScheduled
			t.job.NextRun = t.nextRun(now)
			t.job.RetryCount = 0
			s.logger.Printf("scheduler: job %s (%s) failed %d times, deferring to next run: %v", t.job.ID, t.job.Type, maxJobRetries, err)
			if perr := s.store.Upsert(s.ctx, t.job); perr != nil {
				s.logger.Printf("scheduler: persisting job %s failed: %v", t.job.ID, perr)
			}
			s.signalWakeup()
			return nil
		}
		if perr := s.store.Upsert(s.ctx, t.job); perr != nil {
			s.logger.Printf("scheduler: persisting job %s failed: %v", t.job.ID, perr)
		}
		return err
	}

	metrics.JobsExecuted.WithLabelValues(t.job.Type, "success").Inc()
	t.job.Status = StatusScheduled
	t.job.RetryCount = 0
	t.job.LastError = ""
	t.job.NextRun = t.nextRun(now)
	if perr := s.store.Upsert(s.ctx, t.job); perr != nil {
		s.logger.Printf("scheduler: persisting job %s failed: %v", t.job.ID, perr)
	}
	s.signalWakeup()
	return nil
}

// nextRun computes the next run time, falling back to an hour out when the
// stored schedule no longer parses.
func (t *jobTask) nextRun(after time.Time) time.Time {
	cron, err := ParseCron(t.job.Schedule)
	if err != nil {
		return after.Add(time.Hour)
	}
	return cron.Next(after)
}
