// Package billing defines the payment-provider boundary: plan catalog,
// checkout, cancellation and the processing of provider webhook events into
// credit grants and subscription records.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors.
var (
	// ErrUnknownPlan is returned when a plan ID is not in the catalog.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNoSubscription is returned when cancelling for a user without an
	// active subscription.
	ErrNoSubscription = errors.New("no active subscription")
)

// Mode is the kind of purchase a plan represents.
type Mode string

// Plan modes.
const (
	ModeSubscription Mode = "subscription"
	ModePayment      Mode = "payment"
)

// Plan is a purchasable offer.
type Plan struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	PriceID string `yaml:"price_id" json:"-"`
	Credits int    `yaml:"credits" json:"credits"`
	Mode    Mode   `yaml:"mode" json:"mode"`
}

// CheckoutRequest asks the provider for a hosted checkout page.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Plan       Plan
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's answer to a CheckoutRequest.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider is the payment provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// SubscriptionStatus mirrors the provider's subscription states.
type SubscriptionStatus string

// Subscription states. Only active and trialing subscriptions are refilled.
const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Active reports whether the status entitles the user to refills.
func (s SubscriptionStatus) Active() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the locally recorded state of a provider subscription.
type Subscription struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	CustomerID string             `json:"customer_id,omitempty"`
	PlanID     string             `json:"plan_id"`
	Status     SubscriptionStatus `json:"status"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub Subscription) error
	SubscriptionByID(ctx context.Context, id string) (Subscription, error)
	SubscriptionByUser(ctx context.Context, userID string) (Subscription, error)
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
}

// EventLog records processed webhook event IDs.
type EventLog interface {
	// MarkProcessed records id and reports whether it was new.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	// Forget removes id so a failed event can be redelivered.
	Forget(ctx context.Context, id string) error
}

// Catalog indexes plans by ID.
type Catalog map[string]Plan

// NewCatalog builds a Catalog, rejecting duplicates and incomplete plans.
func NewCatalog(plans []Plan) (Catalog, error) {
	c := make(Catalog, len(plans))
	var errs []error
	for i, p := range plans {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("plans[%d]: id is required", i))
			continue
		case p.PriceID == "":
			errs = append(errs, fmt.Errorf("plan %q: price_id is required", p.ID))
		case p.Credits <= 0:
			errs = append(errs, fmt.Errorf("plan %q: credits must be positive", p.ID))
		}
		if _, dup := c[p.ID]; dup {
			errs = append(errs, fmt.Errorf("plan %q: duplicate id", p.ID))
		}
		if p.Mode == "" {
			p.Mode = ModeSubscription
		}
		if p.Mode != ModeSubscription && p.Mode != ModePayment {
			errs = append(errs, fmt.Errorf("plan %q: mode must be subscription or payment", p.ID))
		}
		c[p.ID] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the plan with the given ID.
func (c Catalog) Lookup(id string) (Plan, error) {
	p, ok := c[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return p, nil
}

// ByPrice returns the plan that sells the given provider price.
func (c Catalog) ByPrice(priceID string) (Plan, bool) {
	for _, p := range c {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// WebhookParser verifies and decodes a provider webhook delivery.
type WebhookParser interface {
	ParseWebhook(header http.Header, payload []byte) (Event, error)
}

type idempotencyKeyCtx struct{}

// WithIdempotencyKey attaches a key that providers send with mutating calls
// so a retried request does not create a second session.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKeyCtx{}).(string)
	return key
}
