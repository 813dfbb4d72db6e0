package history

import (
	"context"
	"sync"

	"github.com/mfenderov/pagechat/pkg/models"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]models.Message)}
}

func (s *MemoryStore) GetMessages(_ context.Context, sessionID string, amount int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.sessions[sessionID]
	if amount <= 0 {
		return []models.Message{}, nil
	}
	if len(msgs) > amount {
		msgs = msgs[len(msgs)-amount:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) AddMessages(_ context.Context, sessionID string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}
