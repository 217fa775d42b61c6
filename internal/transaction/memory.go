package transaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

// NewMemory constructs a concurrency-safe in-memory store for tests.
func NewMemory() Store {
	return &memoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *memoryStore) Create(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	for _, existing := range s.records {
		if existing.Reference == rec.Reference {
			return Record{}, fmt.Errorf("reference %s already exists", rec.Reference)
		}
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *memoryStore) Get(_ context.Context, id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) GetByReference(_ context.Context, reference string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Reference == reference {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *memoryStore) GetByProviderTxID(_ context.Context, providerTxID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ProviderTxID == providerTxID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *memoryStore) SetProviderRef(_ context.Context, id uuid.UUID, provider, providerTxID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Provider = provider
	rec.ProviderTxID = providerTxID
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return rec, nil
}

func (s *memoryStore) SetProcessing(_ context.Context, id uuid.UUID, provider, providerTxID string) (Record, error) {
	return s.transition(id, StatusProcessing, func(rec *Record) {
		rec.Provider = provider
		rec.ProviderTxID = providerTxID
	})
}

func (s *memoryStore) Complete(_ context.Context, id uuid.UUID) (Record, error) {
	return s.transition(id, StatusCompleted, func(rec *Record) {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	})
}

func (s *memoryStore) Fail(_ context.Context, id uuid.UUID, errorCode, errorMessage string) (Record, error) {
	return s.transition(id, StatusFailed, func(rec *Record) {
		now := time.Now().UTC()
		rec.FailedAt = &now
		rec.ErrorCode = errorCode
		rec.ErrorMessage = errorMessage
	})
}

func (s *memoryStore) transition(id uuid.UUID, to Status, apply func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !allowedTransition(rec.Status, to) {
		return Record{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, rec.Status)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	apply(&rec)
	s.records[id] = rec
	return rec, nil
}

func (s *memoryStore) IncrementRetry(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.RetryCount++
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return rec.RetryCount, nil
}

func (s *memoryStore) ListPending(_ context.Context, typ Type, createdAfter, createdBefore time.Time, maxRetries int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Type != typ || rec.Status != StatusPending {
			continue
		}
		if !createdAfter.IsZero() && !rec.CreatedAt.After(createdAfter) {
			continue
		}
		if !createdBefore.IsZero() && !rec.CreatedAt.Before(createdBefore) {
			continue
		}
		if maxRetries > 0 && rec.RetryCount >= maxRetries {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) ListByBusiness(_ context.Context, businessID uuid.UUID, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.BusinessID == businessID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ForceCreatedAt is a test helper that backdates a record so age-based
// reconciliation windows can be exercised.
func ForceCreatedAt(store Store, id uuid.UUID, at time.Time) {
	if mem, ok := store.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if rec, exists := mem.records[id]; exists {
			rec.CreatedAt = at
			mem.records[id] = rec
		}
	}
}
