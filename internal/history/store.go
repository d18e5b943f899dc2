package history

import (
	"context"
	"sync"

	"github.com/flemzord/substackulous/pkg/message"
)

// Store persists conversation transcripts between requests.
type Store interface {
	// Append adds msgs to the end of the conversation.
	Append(ctx context.Context, conversationID string, msgs ...message.Message) error
	// Load returns the full conversation, oldest first. Unknown
	// conversations yield an empty transcript.
	Load(ctx context.Context, conversationID string) (message.Transcript, error)
	// Purge deletes the conversation.
	Purge(ctx context.Context, conversationID string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]message.Transcript
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]message.Transcript)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, conversationID string, msgs ...message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conversationID] = append(s.convs[conversationID], msgs...)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, conversationID string) (message.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convs[conversationID].Clone(), nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
