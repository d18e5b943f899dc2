package billing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// Service is the user-facing side of billing: starting checkouts and
// cancelling subscriptions.
type Service struct {
	Provider      Provider
	Catalog       Catalog
	Subscriptions SubscriptionStore
	SuccessURL    string
	CancelURL     string
}

// CheckoutParams describes a checkout started by a user. Empty URLs fall
// back to the service defaults.
type CheckoutParams struct {
	UserID     string
	Email      string
	PlanID     string
	SuccessURL string
	CancelURL  string
}

// Checkout opens a checkout session for p.PlanID.
func (s *Service) Checkout(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	plan, err := s.Catalog.Lookup(p.PlanID)
	if err != nil {
		return CheckoutSession{}, err
	}
	return s.Provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     p.UserID,
		Email:      p.Email,
		Plan:       plan,
		SuccessURL: cmp.Or(p.SuccessURL, s.SuccessURL),
		CancelURL:  cmp.Or(p.CancelURL, s.CancelURL),
	})
}

// Cancel cancels the user's active subscription. The local record is
// updated when the provider's deletion webhook arrives.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	sub, err := s.Subscriptions.SubscriptionByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) || (err == nil && !sub.Status.Active()) {
		return ErrNoSubscription
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	return s.Provider.CancelSubscription(ctx, sub.ID)
}

// Plans returns the catalog's plans ordered by ID.
func (s *Service) Plans() []Plan {
	out := make([]Plan, 0, len(s.Catalog))
	for _, p := range s.Catalog {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
