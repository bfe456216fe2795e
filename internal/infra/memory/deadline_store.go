package memory

import (
	"context"
	"sync"
	"time"
)

// DeadlineStore is an in-memory implementation of session.DeadlineStore.
type DeadlineStore struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time
}

func NewDeadlineStore() *DeadlineStore {
	return &DeadlineStore{
		deadlines: make(map[string]time.Time),
	}
}

func (s *DeadlineStore) LoadDeadline(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deadline, ok := s.deadlines[key]
	return deadline, ok, nil
}

func (s *DeadlineStore) SaveDeadline(_ context.Context, key string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[key] = deadline
	return nil
}

func (s *DeadlineStore) ClearDeadline(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadlines, key)
	return nil
}
