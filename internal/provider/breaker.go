package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// breakerState is the availability state of a guarded provider.
type breakerState int

const (
	stateHealthy  breakerState = iota
	stateCooldown              // transient failure, backing off
	stateOpen                  // too many consecutive failures
)

// String returns a human-readable label for the state.
func (s breakerState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the failure tracking of a Guard.
type BreakerConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default: 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default: 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures is the number of consecutive failures before the circuit
	// opens. An open circuit only closes after a successful HealthCheck.
	// Default: 5.
	MaxFailures int `yaml:"max_failures"`
}

func (c *BreakerConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// Guard wraps a Provider with a circuit breaker. Transient failures
// (rate limits, outages) put it into an exponentially growing cooldown
// during which calls fail fast with ErrCircuitOpen.
type Guard struct {
	name  string
	inner Provider
	cfg   BreakerConfig

	mu              sync.Mutex
	state           breakerState
	failures        int
	backoff         time.Duration
	cooldownExpires time.Time
	lastErr         error

	now func() time.Time
}

// NewGuard wraps p. Zero-valued config fields take defaults.
func NewGuard(name string, p Provider, cfg BreakerConfig) *Guard {
	cfg.defaults()
	return &Guard{name: name, inner: p, cfg: cfg, now: time.Now}
}

// Complete implements Provider.
func (g *Guard) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if err := g.allow(); err != nil {
		return CompletionResponse{}, err
	}
	resp, err := g.inner.Complete(ctx, req)
	g.record(err)
	return resp, err
}

// Stream implements Provider. Only the connection outcome is recorded;
// mid-stream errors are left to the caller.
func (g *Guard) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := g.allow(); err != nil {
		return nil, err
	}
	ch, err := g.inner.Stream(ctx, req)
	g.record(err)
	return ch, err
}

// ContextWindowSize implements Provider.
func (g *Guard) ContextWindowSize() int { return g.inner.ContextWindowSize() }

// ModelName implements Provider.
func (g *Guard) ModelName() string { return g.inner.ModelName() }

// HealthCheck probes the wrapped provider if it supports it. A successful
// probe closes the circuit.
func (g *Guard) HealthCheck(ctx context.Context) error {
	hc, ok := g.inner.(HealthChecker)
	if !ok {
		return nil
	}
	err := hc.HealthCheck(ctx)
	if err == nil {
		g.record(nil)
	}
	return err
}

// Status reports the breaker state.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{
		Name:      g.name,
		Model:     g.inner.ModelName(),
		Available: g.availableLocked(),
		State:     g.state.String(),
		Failures:  g.failures,
	}
	if g.lastErr != nil {
		st.Error = g.lastErr.Error()
	}
	return st
}

func (g *Guard) availableLocked() bool {
	switch g.state {
	case stateHealthy:
		return true
	case stateCooldown:
		return !g.now().Before(g.cooldownExpires)
	default:
		return false
	}
}

func (g *Guard) allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.availableLocked() {
		return nil
	}
	return fmt.Errorf("%w: %s (%s)", ErrCircuitOpen, g.name, g.state)
}

// record updates the breaker after a call. Caller cancellation and
// non-transient errors (bad requests, context length) leave it unchanged.
func (g *Guard) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		g.state = stateHealthy
		g.failures = 0
		g.backoff = 0
		g.lastErr = nil
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !IsRetryable(err) {
		return
	}

	g.failures++
	g.lastErr = err
	if g.failures >= g.cfg.MaxFailures {
		g.state = stateOpen
		return
	}

	g.state = stateCooldown
	if g.backoff == 0 {
		g.backoff = g.cfg.InitialBackoff
	} else {
		g.backoff *= 2
	}
	if g.backoff > g.cfg.MaxBackoff {
		g.backoff = g.cfg.MaxBackoff
	}
	g.cooldownExpires = g.now().Add(g.backoff)
}

// Compile-time interface assertions.
var (
	_ Provider      = (*Guard)(nil)
	_ HealthChecker = (*Guard)(nil)
)
