package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ownerKey struct {
	owner    uuid.UUID
	currency string
}

// MemoryStore is a concurrency-safe in-memory ledger useful for unit tests and
// dev mode. A single mutex stands in for the per-row locks of the Postgres
// store; postings for one wallet remain a serial history.
type MemoryStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]Wallet
	byOwner  map[ownerKey]uuid.UUID
	postings map[uuid.UUID][]Transaction
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[uuid.UUID]Wallet),
		byOwner:  make(map[ownerKey]uuid.UUID),
		postings: make(map[uuid.UUID][]Transaction),
	}
}

func (s *MemoryStore) GetOrCreateWallet(_ context.Context, ownerID uuid.UUID, currency string) (Wallet, error) {
	if currency == "" {
		return Wallet{}, ErrCurrencyMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{owner: ownerID, currency: currency}
	if id, ok := s.byOwner[key]; ok {
		return s.wallets[id], nil
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.byOwner[key] = w.ID
	return w, nil
}

func (s *MemoryStore) Wallet(_ context.Context, walletID uuid.UUID) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *MemoryStore) WalletByOwner(_ context.Context, ownerID uuid.UUID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOwner[ownerKey{owner: ownerID, currency: currency}]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id], nil
}

func (s *MemoryStore) Credit(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(walletID, amount, currency, entry, false)
}

func (s *MemoryStore) Debit(_ context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(walletID, amount, currency, entry, true)
}

func (s *MemoryStore) Transactions(_ context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	history := s.postings[walletID]
	// Newest first, matching the Postgres ordering.
	var items []Transaction
	for i := len(history) - 1 - offset; i >= 0 && len(items) < limit; i-- {
		items = append(items, history[i])
	}
	return items, nil
}

func (s *MemoryStore) applyLocked(walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry, debit bool) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	w, ok := s.wallets[walletID]
	if !ok {
		return Transaction{}, ErrWalletNotFound
	}
	if currency != w.Currency {
		return Transaction{}, ErrCurrencyMismatch
	}

	newBalance := w.Balance.Add(amount)
	if debit {
		if w.Balance.LessThan(amount) {
			return Transaction{}, ErrInsufficientBalance
		}
		newBalance = w.Balance.Sub(amount)
	}

	posted := Transaction{
		ID:            uuid.New(),
		WalletID:      walletID,
		Type:          entryType(entry, debit),
		Amount:        amount,
		Currency:      currency,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
		Metadata:      entry.Metadata,
		ContractID:    entry.ContractID,
		InstallmentID: entry.InstallmentID,
		BookingID:     entry.BookingID,
		CreatedAt:     time.Now().UTC(),
	}

	w.Balance = newBalance
	w.UpdatedAt = posted.CreatedAt
	s.wallets[walletID] = w
	s.postings[walletID] = append(s.postings[walletID], posted)
	return posted, nil
}
