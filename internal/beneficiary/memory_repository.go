package beneficiary

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[uuid.UUID]Beneficiary
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[uuid.UUID]Beneficiary)}
}

func (r *memoryRepository) Create(_ context.Context, b Beneficiary) (Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	r.storage[b.ID] = b
	return b, nil
}

func (r *memoryRepository) Get(_ context.Context, id uuid.UUID) (Beneficiary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.storage[id]
	if !ok {
		return Beneficiary{}, ErrNotFound
	}
	return b, nil
}

func (r *memoryRepository) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]Beneficiary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Beneficiary
	for _, b := range r.storage {
		if b.BusinessID == businessID {
			out = append(out, b)
		}
	}
	return out, nil
}
