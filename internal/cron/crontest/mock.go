// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/substackulous/internal/cron"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// Refiller is a test double for cron.Refiller.
type Refiller struct {
	Count int
	Err   error

	mu    sync.Mutex
	calls int
}

// Refill implements cron.Refiller.
func (r *Refiller) Refill(context.Context) (int, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.Count, r.Err
}

// Calls returns the number of Refill calls.
func (r *Refiller) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var _ cron.Refiller = (*Refiller)(nil)
