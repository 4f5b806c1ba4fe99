package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound occurs when the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAmount occurs when a posting amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrCurrencyMismatch occurs when a posting currency differs from the wallet currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientBalance occurs when a debit exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// TransactionType classifies a ledger posting.
type TransactionType string

const (
	TypeTopup      TransactionType = "topup"
	TypeDebit      TransactionType = "debit"
	TypeRefund     TransactionType = "refund"
	TypeAdjustment TransactionType = "adjustment"
)

// Wallet is a balance-holding account for one owner in one currency.
// Its balance always equals the running sum of its transactions' signed amounts.
type Wallet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable record of a single balance change with a
// before/after snapshot. Rows are append-only and never updated.
type Transaction struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	Currency      string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Metadata      map[string]string
	ContractID    *uuid.UUID
	InstallmentID *uuid.UUID
	BookingID     *uuid.UUID
	CreatedAt     time.Time
}

// Entry carries the classification and correlation data attached to a posting.
type Entry struct {
	Type          TransactionType
	Metadata      map[string]string
	ContractID    *uuid.UUID
	InstallmentID *uuid.UUID
	BookingID     *uuid.UUID
}

// Store is the sole authority for wallet balance mutation.
type Store interface {
	// GetOrCreateWallet returns the owner's wallet in the given currency,
	// provisioning one with zero balance on first access. Safe under
	// concurrent first-access for the same owner.
	GetOrCreateWallet(ctx context.Context, ownerID uuid.UUID, currency string) (Wallet, error)
	Wallet(ctx context.Context, walletID uuid.UUID) (Wallet, error)
	// WalletByOwner looks up the owner's wallet in the given currency
	// without provisioning one.
	WalletByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (Wallet, error)
	// Credit adds amount to the wallet and appends exactly one transaction.
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error)
	// Debit subtracts amount from the wallet; it additionally requires the
	// balance to cover the amount.
	Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error)
	// Transactions returns the wallet's posting history, newest first.
	Transactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error)
}
