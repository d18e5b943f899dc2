// Package billingtest provides test helpers for the billing package.
package billingtest

import (
	"context"
	"sync"

	"github.com/flemzord/substackulous/internal/billing"
)

// MockProvider is a recording billing.Provider.
type MockProvider struct {
	CheckoutFunc func(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error)
	CancelFunc   func(ctx context.Context, subscriptionID string) error

	mu        sync.Mutex
	Checkouts []billing.CheckoutRequest
	Cancelled []string
}

// CreateCheckoutSession implements billing.Provider. Without CheckoutFunc it
// returns a session whose URL embeds the plan's price.
func (m *MockProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	m.mu.Lock()
	m.Checkouts = append(m.Checkouts, req)
	m.mu.Unlock()
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, req)
	}
	return billing.CheckoutSession{
		ID:  "cs_test_" + req.Plan.ID,
		URL: "https://checkout.test/" + req.Plan.PriceID,
	}, nil
}

// CancelSubscription implements billing.Provider.
func (m *MockProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	m.mu.Lock()
	m.Cancelled = append(m.Cancelled, subscriptionID)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, subscriptionID)
	}
	return nil
}

var _ billing.Provider = (*MockProvider)(nil)
