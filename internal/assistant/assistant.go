// Package assistant implements the product features: the bounded-history
// chat assistant, illustration concepts and viral notes. Every feature
// spends credits before calling the model and refunds them if the call
// fails.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/substackulous/internal/credit"
	"github.com/flemzord/substackulous/internal/history"
	"github.com/flemzord/substackulous/internal/provider"
)

// ErrInvalidRequest marks caller errors (empty transcript, bad counts).
var ErrInvalidRequest = errors.New("invalid request")

// Service composes the model, the credit store and the prompt library.
type Service struct {
	provider      provider.Provider
	credits       credit.Store
	costs         credit.Costs
	prompts       *Prompts
	bounder       history.Bounder
	conversations history.Store
	observer      Observer
	logger        *slog.Logger
	now           func() time.Time
}

// Observer receives usage events. The gateway's metrics implement it.
type Observer interface {
	ObserveCompletion(feature string, usage provider.TokenUsage, err error)
	ObserveSpend(action credit.Action, credits int)
}

type nopObserver struct{}

func (nopObserver) ObserveCompletion(string, provider.TokenUsage, error) {}
func (nopObserver) ObserveSpend(credit.Action, int)                      {}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCosts overrides the price list.
func WithCosts(c credit.Costs) Option {
	return func(s *Service) { s.costs = c }
}

// WithPrompts replaces the embedded prompt library.
func WithPrompts(p *Prompts) Option {
	return func(s *Service) { s.prompts = p }
}

// WithMaxHistoryTokens sets the history budget of a chat turn, system
// prompt included.
func WithMaxHistoryTokens(n int) Option {
	return func(s *Service) { s.bounder = s.bounder.WithBudget(n) }
}

// WithCounter replaces the whitespace token counter.
func WithCounter(c history.Counter) Option {
	return func(s *Service) { s.bounder.Counter = c }
}

// WithConversations enables server-side conversation storage.
func WithConversations(store history.Store) Option {
	return func(s *Service) { s.conversations = store }
}

// WithObserver reports usage to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service. The history budget defaults to the smaller of
// history.DefaultMaxTokens and the model's context window.
func New(p provider.Provider, credits credit.Store, opts ...Option) (*Service, error) {
	if p == nil {
		return nil, provider.ErrNoProvider
	}
	if credits == nil {
		return nil, errors.New("assistant: credit store is required")
	}

	budget := history.DefaultMaxTokens
	if w := p.ContextWindowSize(); w > 0 && w < budget {
		budget = w
	}

	s := &Service{
		provider: p,
		credits:  credits,
		costs:    credit.DefaultCosts(),
		bounder:  history.NewBounder(budget),
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prompts == nil {
		s.prompts = DefaultPrompts()
	}
	if err := s.costs.Validate(); err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	return s, nil
}

// Budget returns the chat history budget in tokens.
func (s *Service) Budget() int { return s.bounder.MaxTokens }

// Costs returns the active price list.
func (s *Service) Costs() credit.Costs { return s.costs }

// Model returns the model name.
func (s *Service) Model() string { return s.provider.ModelName() }

// charge spends the cost of action and returns a refund func that gives
// the credits back. refund is safe to call once; later calls do nothing.
func (s *Service) charge(ctx context.Context, userID string, action credit.Action) (func(), error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidRequest)
	}
	cost := s.costs.Of(action)
	if cost == 0 {
		return func() {}, nil
	}
	if _, err := s.credits.Spend(ctx, userID, cost); err != nil {
		return nil, err
	}
	s.observer.ObserveSpend(action, cost)

	refunded := false
	return func() {
		if refunded {
			return
		}
		refunded = true
		// The request context may already be cancelled; the refund must land anyway.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.credits.Grant(rctx, userID, cost); err != nil {
			s.logger.Error("credit refund failed", "user_id", userID, "action", action, "credits", cost, "error", err)
			return
		}
		s.observer.ObserveSpend(action, -cost)
	}, nil
}
