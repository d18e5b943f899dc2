package billing

import (
	"context"
	"sync"
)

// MemoryStore is an in-process SubscriptionStore and EventLog.
type MemoryStore struct {
	mu     sync.Mutex
	subs   map[string]Subscription
	events map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:   make(map[string]Subscription),
		events: make(map[string]struct{}),
	}
}

// UpsertSubscription implements SubscriptionStore.
func (m *MemoryStore) UpsertSubscription(_ context.Context, sub Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

// SubscriptionByID implements SubscriptionStore.
func (m *MemoryStore) SubscriptionByID(_ context.Context, id string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

// SubscriptionByUser implements SubscriptionStore. The most recently
// updated subscription wins.
func (m *MemoryStore) SubscriptionByUser(_ context.Context, userID string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  Subscription
		found bool
	)
	for _, sub := range m.subs {
		if sub.UserID != userID {
			continue
		}
		if !found || sub.UpdatedAt.After(best.UpdatedAt) {
			best, found = sub, true
		}
	}
	if !found {
		return Subscription{}, ErrNotFound
	}
	return best, nil
}

// ActiveSubscriptions implements SubscriptionStore.
func (m *MemoryStore) ActiveSubscriptions(_ context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for _, sub := range m.subs {
		if sub.Status.Active() {
			out = append(out, sub)
		}
	}
	return out, nil
}

// MarkProcessed implements EventLog.
func (m *MemoryStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.events[id]; seen {
		return false, nil
	}
	m.events[id] = struct{}{}
	return true, nil
}

// Forget implements EventLog.
func (m *MemoryStore) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

// Interface guards.
var (
	_ SubscriptionStore = (*MemoryStore)(nil)
	_ EventLog          = (*MemoryStore)(nil)
)
