package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/substackulous/internal/credit"
)

// Processor turns webhook events into credit grants and subscription
// records. Each event ID is applied at most once.
type Processor struct {
	Catalog       Catalog
	Credits       credit.Store
	Subscriptions SubscriptionStore
	Events        EventLog
	Logger        *slog.Logger

	now func() time.Time
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Processor) timeNow() time.Time {
	if p.now == nil {
		return time.Now().UTC()
	}
	return p.now()
}

// Apply processes ev. Duplicate deliveries are acknowledged without effect.
// If processing fails the event is forgotten so the provider's retry can
// apply it.
func (p *Processor) Apply(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		return errors.New("billing: event without id")
	}
	fresh, err := p.Events.MarkProcessed(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if !fresh {
		p.logger().Debug("duplicate webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	if err := p.apply(ctx, ev); err != nil {
		if ferr := p.Events.Forget(ctx, ev.ID); ferr != nil {
			p.logger().Error("failed to forget event", "event_id", ev.ID, "error", ferr)
		}
		return err
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		return p.checkoutCompleted(ctx, ev)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		return p.subscriptionChanged(ctx, ev)
	default:
		p.logger().Debug("unhandled webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}

func (p *Processor) resolvePlan(ev Event) (Plan, error) {
	if ev.PlanID != "" {
		return p.Catalog.Lookup(ev.PlanID)
	}
	if plan, ok := p.Catalog.ByPrice(ev.PriceID); ok {
		return plan, nil
	}
	return Plan{}, fmt.Errorf("%w: event %s carries no known plan", ErrUnknownPlan, ev.ID)
}

func (p *Processor) checkoutCompleted(ctx context.Context, ev Event) error {
	if ev.UserID == "" {
		return fmt.Errorf("billing: checkout event %s without user", ev.ID)
	}
	plan, err := p.resolvePlan(ev)
	if err != nil {
		return err
	}

	bal, err := p.Credits.Grant(ctx, ev.UserID, plan.Credits)
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	p.logger().Info("plan purchased",
		"user_id", ev.UserID, "plan", plan.ID, "granted", plan.Credits, "balance", bal)

	if plan.Mode != ModeSubscription || ev.SubscriptionID == "" {
		return nil
	}
	return p.Subscriptions.UpsertSubscription(ctx, Subscription{
		ID:         ev.SubscriptionID,
		UserID:     ev.UserID,
		CustomerID: ev.CustomerID,
		PlanID:     plan.ID,
		Status:     StatusActive,
		UpdatedAt:  p.timeNow(),
	})
}

func (p *Processor) subscriptionChanged(ctx context.Context, ev Event) error {
	if ev.SubscriptionID == "" {
		return fmt.Errorf("billing: subscription event %s without subscription id", ev.ID)
	}

	sub, err := p.Subscriptions.SubscriptionByID(ctx, ev.SubscriptionID)
	switch {
	case errors.Is(err, ErrNotFound):
		if ev.UserID == "" {
			p.logger().Warn("subscription event for unknown subscription",
				"event_id", ev.ID, "subscription_id", ev.SubscriptionID)
			return nil
		}
		sub = Subscription{ID: ev.SubscriptionID, UserID: ev.UserID, CustomerID: ev.CustomerID}
	case err != nil:
		return fmt.Errorf("load subscription: %w", err)
	}

	if plan, perr := p.resolvePlan(ev); perr == nil {
		sub.PlanID = plan.ID
	}
	sub.Status = ev.Status
	if ev.Type == EventSubscriptionDeleted || sub.Status == "" {
		sub.Status = StatusCanceled
	}
	sub.UpdatedAt = p.timeNow()

	p.logger().Info("subscription updated",
		"subscription_id", sub.ID, "user_id", sub.UserID, "status", sub.Status)
	return p.Subscriptions.UpsertSubscription(ctx, sub)
}

// Refill grants each active subscription its plan's credits. It returns the
// number of subscriptions refilled; failures are joined and do not stop the
// remaining grants.
func (p *Processor) Refill(ctx context.Context) (int, error) {
	subs, err := p.Subscriptions.ActiveSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	var errs []error
	refilled := 0
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return refilled, err
		}
		plan, err := p.Catalog.Lookup(sub.PlanID)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if _, err := p.Credits.Grant(ctx, sub.UserID, plan.Credits); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		refilled++
	}
	return refilled, errors.Join(errs...)
}
