package billing

import "time"

// EventType is a normalized webhook event kind.
type EventType string

// Event types handled by the Processor. Other provider events are
// acknowledged and ignored.
const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Event is a provider webhook event reduced to the fields the Processor needs.
type Event struct {
	ID             string
	Type           EventType
	Created        time.Time
	UserID         string
	CustomerID     string
	SubscriptionID string
	PlanID         string
	PriceID        string
	Status         SubscriptionStatus
}
