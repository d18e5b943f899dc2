package stripe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flemzord/substackulous/internal/billing"
	stripeapi "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// SignatureHeader carries Stripe's webhook signature.
const SignatureHeader = "Stripe-Signature"

// ParseWebhook implements billing.WebhookParser. The Stripe-Signature header
// must carry a v1 signature of payload made with the webhook secret, stamped
// within the configured tolerance.
func (m *Module) ParseWebhook(header http.Header, payload []byte) (billing.Event, error) {
	if m.config.WebhookSecret == "" {
		return billing.Event{}, fmt.Errorf("%w: no webhook secret configured", billing.ErrInvalidSignature)
	}
	err := webhook.ValidatePayloadWithTolerance(payload, header.Get(SignatureHeader), m.config.WebhookSecret, m.config.WebhookTolerance)
	if err != nil {
		return billing.Event{}, fmt.Errorf("%w: %w", billing.ErrInvalidSignature, err)
	}
	return parseEvent(payload)
}

func parseEvent(payload []byte) (billing.Event, error) {
	var se stripeapi.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return billing.Event{}, fmt.Errorf("decode stripe event: %w", err)
	}
	ev := billing.Event{
		ID:      se.ID,
		Type:    billing.EventType(se.Type),
		Created: time.Unix(se.Created, 0).UTC(),
	}
	if se.Data == nil {
		return ev, nil
	}

	switch ev.Type {
	case billing.EventCheckoutCompleted:
		var obj stripeapi.CheckoutSession
		if err := json.Unmarshal(se.Data.Raw, &obj); err != nil {
			return billing.Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		ev.UserID = obj.ClientReferenceID
		if ev.UserID == "" {
			ev.UserID = obj.Metadata["user_id"]
		}
		if obj.Customer != nil {
			ev.CustomerID = obj.Customer.ID
		}
		if obj.Subscription != nil {
			ev.SubscriptionID = obj.Subscription.ID
		}
		ev.PlanID = obj.Metadata["plan_id"]

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var obj stripeapi.Subscription
		if err := json.Unmarshal(se.Data.Raw, &obj); err != nil {
			return billing.Event{}, fmt.Errorf("decode subscription: %w", err)
		}
		ev.SubscriptionID = obj.ID
		if obj.Customer != nil {
			ev.CustomerID = obj.Customer.ID
		}
		ev.UserID = obj.Metadata["user_id"]
		ev.PlanID = obj.Metadata["plan_id"]
		ev.Status = billing.SubscriptionStatus(obj.Status)
		if obj.Items != nil && len(obj.Items.Data) > 0 && obj.Items.Data[0].Price != nil {
			ev.PriceID = obj.Items.Data[0].Price.ID
		}
	}
	return ev, nil
}
