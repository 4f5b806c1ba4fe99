package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/messaging"
	"github.com/tracklane/tracklane/internal/outbox"
)

// Charge records the outcome of one booking fee attempt. Exactly one charge
// row exists per booking.
type Charge struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	WalletID  uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Status    ChargeStatus
	Reason    string
	CreatedAt time.Time
}

// ChargeUnitOfWork exposes the mutations one booking charge applies. All of
// them commit or roll back together, including the inbox claim: a failure
// after a winning claim releases it so the redelivered message starts clean.
type ChargeUnitOfWork interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error)
	RecordCharge(ctx context.Context, ch Charge) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

// ChargeStore runs a charge unit of work with transactional semantics.
type ChargeStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, uow ChargeUnitOfWork) error) error
}

// PostgresChargeStore composes the inbox claim, the ledger debit, the charge
// row and the outbox append over one pgx transaction.
type PostgresChargeStore struct {
	db     *pgxpool.Pool
	ledger *ledger.PostgresStore
	outbox *outbox.PostgresStore
	inbox  messaging.Inbox
}

// NewPostgresChargeStore builds a charge store backed by PostgreSQL.
func NewPostgresChargeStore(db *pgxpool.Pool, ledgerStore *ledger.PostgresStore, outboxStore *outbox.PostgresStore, inbox messaging.Inbox) *PostgresChargeStore {
	return &PostgresChargeStore{db: db, ledger: ledgerStore, outbox: outboxStore, inbox: inbox}
}

func (s *PostgresChargeStore) InTx(ctx context.Context, fn func(ctx context.Context, uow ChargeUnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgChargeUOW{tx: tx, store: s}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgChargeUOW struct {
	tx    pgx.Tx
	store *PostgresChargeStore
}

func (u *pgChargeUOW) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	return u.store.inbox.ClaimTx(ctx, u.tx, consumer, eventID)
}

func (u *pgChargeUOW) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error) {
	return u.store.ledger.DebitTx(ctx, u.tx, walletID, amount, currency, entry)
}

func (u *pgChargeUOW) RecordCharge(ctx context.Context, ch Charge) error {
	_, err := u.tx.Exec(ctx, `INSERT INTO booking_charges
            (id, booking_id, wallet_id, amount, currency, status, reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (booking_id) DO NOTHING`,
		ch.ID, ch.BookingID, ch.WalletID, ch.Amount, ch.Currency, ch.Status, ch.Reason)
	return err
}

func (u *pgChargeUOW) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return u.store.outbox.AppendTx(ctx, u.tx, evt)
}

// MemoryChargeStore is an in-memory charge store for unit tests and dev mode.
// Claims, charge rows and outbox appends made through the unit of work are
// staged and only become visible when fn succeeds; the in-memory ledger debit
// is the sole fallible step, so a discarded stage leaks no partial state.
type MemoryChargeStore struct {
	mu      sync.Mutex
	ledger  *ledger.MemoryStore
	outbox  *outbox.MemoryStore
	claims  map[string]struct{}
	charges map[uuid.UUID]Charge
}

// NewMemoryChargeStore builds a charge store over in-memory ledger and outbox
// stores.
func NewMemoryChargeStore(ledgerStore *ledger.MemoryStore, outboxStore *outbox.MemoryStore) *MemoryChargeStore {
	return &MemoryChargeStore{
		ledger:  ledgerStore,
		outbox:  outboxStore,
		claims:  make(map[string]struct{}),
		charges: make(map[uuid.UUID]Charge),
	}
}

func (s *MemoryChargeStore) InTx(ctx context.Context, fn func(ctx context.Context, uow ChargeUnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uow := &memChargeUOW{store: s}
	if err := fn(ctx, uow); err != nil {
		return err
	}

	for _, key := range uow.claims {
		s.claims[key] = struct{}{}
	}
	for _, ch := range uow.charges {
		if _, exists := s.charges[ch.BookingID]; !exists {
			s.charges[ch.BookingID] = ch
		}
	}
	for _, evt := range uow.events {
		if err := s.outbox.AppendTx(ctx, nil, evt); err != nil {
			return err
		}
	}
	return nil
}

// Charges returns a snapshot of recorded charges, for assertions in tests.
func (s *MemoryChargeStore) Charges() []Charge {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Charge, 0, len(s.charges))
	for _, ch := range s.charges {
		items = append(items, ch)
	}
	return items
}

type memChargeUOW struct {
	store   *MemoryChargeStore
	claims  []string
	charges []Charge
	events  []outbox.Event
}

func (u *memChargeUOW) Claim(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + "\x00" + eventID
	if _, exists := u.store.claims[key]; exists {
		return false, nil
	}
	for _, staged := range u.claims {
		if staged == key {
			return false, nil
		}
	}
	u.claims = append(u.claims, key)
	return true, nil
}

func (u *memChargeUOW) Debit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error) {
	return u.store.ledger.Debit(ctx, walletID, amount, currency, entry)
}

func (u *memChargeUOW) RecordCharge(_ context.Context, ch Charge) error {
	u.charges = append(u.charges, ch)
	return nil
}

func (u *memChargeUOW) AppendEvent(_ context.Context, evt outbox.Event) error {
	u.events = append(u.events, evt)
	return nil
}
