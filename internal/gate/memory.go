package gate

import (
	"context"
	"sync"
)

// MemorySet is a process-local IndexedSet for development and tests.
type MemorySet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

// NewMemorySet creates an empty set.
func NewMemorySet() *MemorySet {
	return &MemorySet{urls: make(map[string]struct{})}
}

func (s *MemorySet) IsIndexed(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok, nil
}

func (s *MemorySet) MarkIndexed(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = struct{}{}
	return nil
}

// Len returns the number of indexed URLs.
func (s *MemorySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}
