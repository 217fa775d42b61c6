// Package timeline keeps an append-only log of saga steps per transaction.
// Entries are never mutated once written; the orchestrator reads them back to
// display the current step and to scope rollback to the steps that succeeded.
package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmpty indicates a transaction has no timeline entries yet.
var ErrEmpty = errors.New("timeline is empty")

// Status of a recorded step.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one append-only step record.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Step          string
	Status        Status
	Message       string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// Store persists timeline entries.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, transactionID uuid.UUID) ([]Entry, error)
}

// Recorder is the write/read surface used by the orchestrator.
type Recorder struct {
	store Store
}

// NewRecorder builds a timeline recorder over a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record appends one step entry.
func (r *Recorder) Record(ctx context.Context, transactionID uuid.UUID, step string, status Status, message string, metadata map[string]string) error {
	_, err := r.store.Append(ctx, Entry{
		TransactionID: transactionID,
		Step:          step,
		Status:        status,
		Message:       message,
		Metadata:      metadata,
	})
	return err
}

// List returns all entries for a transaction in creation order.
func (r *Recorder) List(ctx context.Context, transactionID uuid.UUID) ([]Entry, error) {
	return r.store.List(ctx, transactionID)
}

// Current returns the most recent entry for a transaction.
func (r *Recorder) Current(ctx context.Context, transactionID uuid.UUID) (Entry, error) {
	entries, err := r.store.List(ctx, transactionID)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrEmpty
	}
	return entries[len(entries)-1], nil
}

// Succeeded returns the set of step names that reached success. Rollback uses
// it to decide which compensations apply.
func (r *Recorder) Succeeded(ctx context.Context, transactionID uuid.UUID) (map[string]bool, error) {
	entries, err := r.store.List(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	steps := make(map[string]bool)
	for _, e := range entries {
		if e.Status == StatusSuccess {
			steps[e.Step] = true
		}
	}
	return steps, nil
}
