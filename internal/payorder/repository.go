package payorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/outbox"
)

// UnitOfWork exposes the mutations that must commit atomically with an order
// transition during reconciliation.
type UnitOfWork interface {
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error)
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// Repository persists payment orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	Update(ctx context.Context, o Order) error
	// ExpirePending transitions every PENDING order past its deadline to
	// EXPIRED and returns the number of rows affected. Safe to run
	// repeatedly and concurrently.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	// Reconcile fetches the order under an exclusive lock and runs fn. The
	// order mutation and everything done through the UnitOfWork commit or
	// roll back as one. The lock is the race guard between the unlocked
	// status pre-check and the transition: a concurrent duplicate
	// notification blocks here and re-observes the final status.
	Reconcile(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, uow UnitOfWork, o *Order) error) error
}

// PostgresRepository stores payment orders in PostgreSQL.
type PostgresRepository struct {
	db     *pgxpool.Pool
	ledger *ledger.PostgresStore
	outbox *outbox.PostgresStore
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool, ledgerStore *ledger.PostgresStore, outboxStore *outbox.PostgresStore) *PostgresRepository {
	return &PostgresRepository{db: db, ledger: ledgerStore, outbox: outboxStore}
}

const orderColumns = `id, wallet_id, amount, currency, status, description,
    account_number, bank_code, transfer_content, qr_code_url, expires_at,
    COALESCE(gateway_tx_id, ''), raw_callback, completed_at, created_at, updated_at`

// Create inserts a payment order row.
func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payment_orders
            (id, wallet_id, amount, currency, status, description, account_number,
             bank_code, transfer_content, qr_code_url, expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		o.ID, o.WalletID, o.Amount, o.Currency, o.Status, o.Description, o.AccountNumber,
		o.BankCode, o.TransferContent, o.QRCodeURL, o.ExpiresAt, o.CreatedAt)
	return err
}

// Get fetches a payment order by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1`, id)
	return scanOrder(row)
}

// Update persists the mutable fields of an order.
func (r *PostgresRepository) Update(ctx context.Context, o Order) error {
	_, err := r.db.Exec(ctx, `UPDATE payment_orders
        SET status = $2, gateway_tx_id = NULLIF($3, ''), raw_callback = $4,
            completed_at = $5, updated_at = NOW()
        WHERE id = $1`,
		o.ID, o.Status, o.GatewayTxID, o.RawCallback, o.CompletedAt)
	return err
}

// ExpirePending sweeps overdue PENDING orders to EXPIRED in one statement, so
// concurrent sweeps cannot double-transition a row.
func (r *PostgresRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE payment_orders
        SET status = $2, updated_at = NOW()
        WHERE status = $1 AND expires_at < $3`,
		StatusPending, StatusExpired, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Reconcile runs fn with the order row locked FOR UPDATE inside one
// transaction shared with the ledger credit and the outbox append.
func (r *PostgresRepository) Reconcile(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, uow UnitOfWork, o *Order) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		return err
	}

	uow := &pgUnitOfWork{tx: tx, ledger: r.ledger, outbox: r.outbox}
	if err := fn(ctx, uow, &o); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE payment_orders
        SET status = $2, gateway_tx_id = NULLIF($3, ''), raw_callback = $4,
            completed_at = $5, updated_at = NOW()
        WHERE id = $1`,
		o.ID, o.Status, o.GatewayTxID, o.RawCallback, o.CompletedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type pgUnitOfWork struct {
	tx     pgx.Tx
	ledger *ledger.PostgresStore
	outbox *outbox.PostgresStore
}

func (u *pgUnitOfWork) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error) {
	return u.ledger.CreditTx(ctx, u.tx, walletID, amount, currency, entry)
}

func (u *pgUnitOfWork) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return u.outbox.AppendTx(ctx, u.tx, evt)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var expiresAt, createdAt, updatedAt time.Time
	err := row.Scan(&o.ID, &o.WalletID, &o.Amount, &o.Currency, &o.Status, &o.Description,
		&o.AccountNumber, &o.BankCode, &o.TransferContent, &o.QRCodeURL, &expiresAt,
		&o.GatewayTxID, &o.RawCallback, &o.CompletedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.ExpiresAt = expiresAt.UTC()
	o.CreatedAt = createdAt.UTC()
	o.UpdatedAt = updatedAt.UTC()
	return o, nil
}
