package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a valid 5-field cron expression.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Scheduler runs registered jobs on their cron schedules. A job never runs
// concurrently with itself: a tick that finds the previous run still going
// is skipped.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	jobs     []Job
	entries  map[string]cron.EntryID
	locks    map[string]*sync.Mutex
	location *time.Location
	logger   *slog.Logger
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
// A nil location means time.Local.
func NewScheduler(logger *slog.Logger, location *time.Location) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		entries:  make(map[string]cron.EntryID),
		locks:    make(map[string]*sync.Mutex),
		location: location,
		logger:   logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.locks[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start parses every schedule and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.location),
		cron.WithChain(cron.Recover(slogAdapter{s.logger})),
	)

	for _, j := range s.jobs {
		job := j
		id, err := c.AddFunc(job.Schedule(), func() { s.run(ctx, job) })
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", job.Name(), err)
		}
		s.entries[job.Name()] = id
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		return fmt.Errorf("cron: job %q is already running", job.Name())
	}
	defer lock.Unlock()

	start := time.Now()
	s.logger.Debug("cron: job started", "job", job.Name())
	if err := job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", job.Name(), "duration", time.Since(start))
	return nil
}

// RunNow runs the named job immediately in the caller's goroutine, subject
// to the same no-overlap rule as scheduled ticks.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var job Job
	for _, j := range s.jobs {
		if j.Name() == name {
			job = j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, job)
}

// Next returns the next scheduled run of the named job, or false if the
// scheduler is not running or the job is unknown.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok || s.cron == nil {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if !e.Valid() {
		return time.Time{}, false
	}
	return e.Next, true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}

// slogAdapter lets robfig/cron report recovered panics through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
