package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]Entry
}

// NewMemory constructs an in-memory timeline store for tests.
func NewMemory() Store {
	return &memoryStore{entries: make(map[uuid.UUID][]Entry)}
}

func (s *memoryStore) Append(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	s.entries[e.TransactionID] = append(s.entries[e.TransactionID], e)
	return e, nil
}

func (s *memoryStore) List(_ context.Context, transactionID uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries[transactionID]))
	copy(out, s.entries[transactionID])
	return out, nil
}
