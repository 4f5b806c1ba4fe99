package payorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/outbox"
)

// MemoryRepository is an in-memory order repository for unit tests and dev
// mode. One mutex serializes reconciliations, standing in for the per-row
// lock of the Postgres repository.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
	ledger *ledger.MemoryStore
	outbox *outbox.MemoryStore
}

// NewMemoryRepository builds an in-memory repository wired to in-memory
// ledger and outbox stores.
func NewMemoryRepository(ledgerStore *ledger.MemoryStore, outboxStore *outbox.MemoryStore) *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[uuid.UUID]Order),
		ledger: ledgerStore,
		outbox: outboxStore,
	}
}

func (r *MemoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) Update(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	r.orders[o.ID] = o
	return nil
}

func (r *MemoryRepository) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, o := range r.orders {
		if o.Status == StatusPending && o.ExpiresAt.Before(now) {
			o.Status = StatusExpired
			o.UpdatedAt = time.Now().UTC()
			r.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Reconcile(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, uow UnitOfWork, o *Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}

	uow := &memUnitOfWork{ledger: r.ledger, outbox: r.outbox}
	if err := fn(ctx, uow, &o); err != nil {
		// Changes to the order copy are discarded; the in-memory ledger
		// credit is the last fallible step before the status flip, so no
		// partial state leaks.
		return err
	}

	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return nil
}

type memUnitOfWork struct {
	ledger *ledger.MemoryStore
	outbox *outbox.MemoryStore
}

func (u *memUnitOfWork) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, currency string, entry ledger.Entry) (ledger.Transaction, error) {
	return u.ledger.Credit(ctx, walletID, amount, currency, entry)
}

func (u *memUnitOfWork) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return u.outbox.AppendTx(ctx, nil, evt)
}
