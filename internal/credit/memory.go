package credit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used in tests and when no persistent
// store module is configured.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int)}
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

// Grant implements Store.
func (s *MemoryStore) Grant(_ context.Context, userID string, n int) (int, error) {
	if err := checkAmount(userID, n); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += n
	return s.balances[userID], nil
}

// Spend implements Store.
func (s *MemoryStore) Spend(_ context.Context, userID string, n int) (int, error) {
	if err := checkAmount(userID, n); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balances[userID]
	if bal < n {
		return bal, fmt.Errorf("%w: balance %d, need %d", ErrInsufficient, bal, n)
	}
	s.balances[userID] = bal - n
	return s.balances[userID], nil
}

var _ Store = (*MemoryStore)(nil)
