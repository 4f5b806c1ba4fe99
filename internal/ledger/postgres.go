package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and the append-only transaction log in
// PostgreSQL. All mutations lock the wallet row for the duration of the
// read-modify-write, so postings for one wallet form a serial history.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetOrCreateWallet upserts the owner's wallet for the currency. The unique
// constraint on (owner_id, currency) resolves concurrent first-access races.
func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, ownerID uuid.UUID, currency string) (Wallet, error) {
	if currency == "" {
		return Wallet{}, ErrCurrencyMismatch
	}

	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, currency, balance)
        VALUES ($1, $2, $3, 0)
        ON CONFLICT ON CONSTRAINT wallets_owner_currency_key DO NOTHING`,
		uuid.New(), ownerID, currency)
	if err != nil {
		return Wallet{}, fmt.Errorf("upsert wallet: %w", err)
	}

	row := s.db.QueryRow(ctx, `SELECT id, owner_id, currency, balance, created_at, updated_at
        FROM wallets WHERE owner_id = $1 AND currency = $2`, ownerID, currency)
	return scanWallet(row)
}

// Wallet fetches wallet state by identifier.
func (s *PostgresStore) Wallet(ctx context.Context, walletID uuid.UUID) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, currency, balance, created_at, updated_at
        FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// WalletByOwner fetches the owner's wallet for the currency without
// provisioning one.
func (s *PostgresStore) WalletByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, currency, balance, created_at, updated_at
        FROM wallets WHERE owner_id = $1 AND currency = $2`, ownerID, currency)
	return scanWallet(row)
}

// Credit adds funds to the wallet inside its own transaction.
func (s *PostgresStore) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	return s.apply(ctx, walletID, amount, currency, entry, false)
}

// Debit removes funds from the wallet inside its own transaction.
func (s *PostgresStore) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	return s.apply(ctx, walletID, amount, currency, entry, true)
}

// CreditTx is Credit executed inside a caller-owned transaction so the posting
// commits or rolls back together with the surrounding business mutation.
func (s *PostgresStore) CreditTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	return applyTx(ctx, tx, walletID, amount, currency, entry, false)
}

// DebitTx is Debit executed inside a caller-owned transaction.
func (s *PostgresStore) DebitTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry) (Transaction, error) {
	return applyTx(ctx, tx, walletID, amount, currency, entry, true)
}

// Transactions returns the wallet's posting history, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, type, amount, currency,
            balance_before, balance_after, metadata, contract_id, installment_id, booking_id, created_at
        FROM ledger_transactions
        WHERE wallet_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		var t Transaction
		var createdAt time.Time
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Currency,
			&t.BalanceBefore, &t.BalanceAfter, &t.Metadata,
			&t.ContractID, &t.InstallmentID, &t.BookingID, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = createdAt.UTC()
		items = append(items, t)
	}
	return items, rows.Err()
}

func (s *PostgresStore) apply(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry, debit bool) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	posted, err := applyTx(ctx, tx, walletID, amount, currency, entry, debit)
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return posted, nil
}

func applyTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount decimal.Decimal, currency string, entry Entry, debit bool) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	var walletCurrency string
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT currency, balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).
		Scan(&walletCurrency, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrWalletNotFound
		}
		return Transaction{}, err
	}

	if currency != walletCurrency {
		return Transaction{}, ErrCurrencyMismatch
	}

	newBalance := balance.Add(amount)
	if debit {
		if balance.LessThan(amount) {
			return Transaction{}, ErrInsufficientBalance
		}
		newBalance = balance.Sub(amount)
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = NOW() WHERE id = $1`,
		walletID, newBalance); err != nil {
		return Transaction{}, err
	}

	posted := Transaction{
		ID:            uuid.New(),
		WalletID:      walletID,
		Type:          entryType(entry, debit),
		Amount:        amount,
		Currency:      currency,
		BalanceBefore: balance,
		BalanceAfter:  newBalance,
		Metadata:      entry.Metadata,
		ContractID:    entry.ContractID,
		InstallmentID: entry.InstallmentID,
		BookingID:     entry.BookingID,
		CreatedAt:     time.Now().UTC(),
	}

	metadata := posted.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions
            (id, wallet_id, type, amount, currency, balance_before, balance_after,
             metadata, contract_id, installment_id, booking_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		posted.ID, posted.WalletID, posted.Type, posted.Amount, posted.Currency,
		posted.BalanceBefore, posted.BalanceAfter, metadata,
		posted.ContractID, posted.InstallmentID, posted.BookingID, posted.CreatedAt); err != nil {
		return Transaction{}, err
	}

	return posted, nil
}

func entryType(entry Entry, debit bool) TransactionType {
	if entry.Type != "" {
		return entry.Type
	}
	if debit {
		return TypeDebit
	}
	return TypeTopup
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var createdAt, updatedAt time.Time
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.Balance, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
