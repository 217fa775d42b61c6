package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]Wallet
	byOwner  map[string]uuid.UUID
	entries  map[uuid.UUID][]Entry
	applied  map[string]bool
	txStatus TransactionStatusFn
}

// NewMemory creates a concurrency-safe in-memory ledger store useful for unit
// tests. statusFn may be nil when no transaction records are involved.
func NewMemory(statusFn TransactionStatusFn) Store {
	return &memoryStore{
		wallets:  make(map[uuid.UUID]Wallet),
		byOwner:  make(map[string]uuid.UUID),
		entries:  make(map[uuid.UUID][]Entry),
		applied:  make(map[string]bool),
		txStatus: statusFn,
	}
}

func ownerKey(businessID uuid.UUID, currency string) string {
	return businessID.String() + "/" + currency
}

func (s *memoryStore) GetOrCreateWallet(_ context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey(businessID, currency)
	if id, ok := s.byOwner[key]; ok {
		return s.wallets[id], nil
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:         uuid.New(),
		BusinessID: businessID,
		Currency:   currency,
		Available:  decimal.Zero,
		Pending:    decimal.Zero,
		Total:      decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.wallets[w.ID] = w
	s.byOwner[key] = w.ID
	return w, nil
}

func (s *memoryStore) Wallet(_ context.Context, walletID uuid.UUID) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *memoryStore) FindWallet(_ context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOwner[ownerKey(businessID, currency)]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *memoryStore) Credit(ctx context.Context, m Mutation) (Wallet, error) {
	return s.mutate(ctx, m, false)
}

func (s *memoryStore) Debit(ctx context.Context, m Mutation) (Wallet, error) {
	return s.mutate(ctx, m, true)
}

func (s *memoryStore) mutate(ctx context.Context, m Mutation, debit bool) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[m.WalletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}

	if m.TransactionID != nil {
		if s.applied[m.TransactionID.String()+"/"+string(m.Type)] {
			return w, ErrDuplicateEntry
		}
		if s.txStatus != nil {
			status, found, err := s.txStatus(ctx, *m.TransactionID)
			if err != nil {
				return Wallet{}, err
			}
			if found && !txMutable(status) {
				return w, ErrTransactionFinalized
			}
		}
	}

	signed := m.Amount
	if debit {
		if w.Available.LessThan(m.Amount) {
			return Wallet{}, ErrInsufficientBalance
		}
		signed = m.Amount.Neg()
	}

	w.Available = w.Available.Add(signed)
	w.Total = w.Total.Add(signed)
	now := time.Now().UTC()
	w.LastTransactionAt = &now
	w.UpdatedAt = now
	s.wallets[w.ID] = w

	entry := Entry{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Amount:        signed,
		Type:          m.Type,
		Description:   m.Description,
		TransactionID: m.TransactionID,
		BalanceAfter:  w.Available,
		Metadata:      m.Metadata,
		CreatedAt:     now,
	}
	s.entries[w.ID] = append(s.entries[w.ID], entry)
	if m.TransactionID != nil {
		s.applied[m.TransactionID.String()+"/"+string(m.Type)] = true
	}
	return w, nil
}

func (s *memoryStore) Lock(_ context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if w.Available.LessThan(amount) {
		return Wallet{}, ErrInsufficientBalance
	}
	w.Available = w.Available.Sub(amount)
	w.Pending = w.Pending.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	s.wallets[w.ID] = w
	return w, nil
}

func (s *memoryStore) Unlock(_ context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	if w.Pending.LessThan(amount) {
		return Wallet{}, ErrInsufficientPending
	}
	w.Pending = w.Pending.Sub(amount)
	w.Available = w.Available.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	s.wallets[w.ID] = w
	return w, nil
}

func (s *memoryStore) History(_ context.Context, walletID uuid.UUID, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	all := s.entries[walletID]
	out := make([]Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
