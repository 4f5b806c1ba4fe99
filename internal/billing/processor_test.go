package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/internal/events"
	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/logging"
	"github.com/tracklane/tracklane/internal/outbox"
)

type billingFixture struct {
	wallets *ledger.MemoryStore
	events  *outbox.MemoryStore
	store   *MemoryChargeStore
	proc    *Processor
	wallet  ledger.Wallet
}

func newBillingFixture(t *testing.T, balance int64) *billingFixture {
	t.Helper()

	wallets := ledger.NewMemoryStore()
	outboxStore := outbox.NewMemoryStore()
	store := NewMemoryChargeStore(wallets, outboxStore)
	proc := NewProcessor(store, logging.Discard())

	w, err := wallets.GetOrCreateWallet(context.Background(), uuid.New(), "VND")
	require.NoError(t, err)
	if balance > 0 {
		_, err = wallets.Credit(context.Background(), w.ID, decimal.NewFromInt(balance), "VND",
			ledger.Entry{Type: ledger.TypeTopup})
		require.NoError(t, err)
	}

	return &billingFixture{wallets: wallets, events: outboxStore, store: store, proc: proc, wallet: w}
}

func bookingEvent(walletID uuid.UUID, amount int64) events.BookingConfirmedEvent {
	return events.BookingConfirmedEvent{
		EventID:   uuid.NewString(),
		BookingID: uuid.NewString(),
		WalletID:  walletID.String(),
		Amount:    decimal.NewFromInt(amount),
		Currency:  "VND",
	}
}

func TestChargeBookingDebitsWallet(t *testing.T) {
	f := newBillingFixture(t, 100000)
	ctx := context.Background()
	evt := bookingEvent(f.wallet.ID, 40000)

	require.NoError(t, f.proc.HandleBookingConfirmed(ctx, evt))

	w, err := f.wallets.Wallet(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(60000)), "balance = %s", w.Balance)

	charges := f.store.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, ChargeSucceeded, charges[0].Status)
	assert.Equal(t, evt.BookingID, charges[0].BookingID.String())

	published := f.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeBookingCharged, published[0].EventType)

	var payload events.BookingChargedEvent
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Equal(t, string(ChargeSucceeded), payload.Status)
	assert.Equal(t, evt.BookingID, payload.BookingID)
}

func TestChargeBookingIsAppliedOnce(t *testing.T) {
	f := newBillingFixture(t, 100000)
	ctx := context.Background()
	evt := bookingEvent(f.wallet.ID, 40000)

	require.NoError(t, f.proc.HandleBookingConfirmed(ctx, evt))
	require.NoError(t, f.proc.HandleBookingConfirmed(ctx, evt))

	w, err := f.wallets.Wallet(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(60000)), "balance = %s", w.Balance)
	assert.Len(t, f.store.Charges(), 1)
	assert.Len(t, f.events.Events(), 1)
}

func TestChargeBookingInsufficientBalance(t *testing.T) {
	f := newBillingFixture(t, 10000)
	ctx := context.Background()
	evt := bookingEvent(f.wallet.ID, 40000)

	// Business-terminal: the event is applied, not redelivered.
	require.NoError(t, f.proc.HandleBookingConfirmed(ctx, evt))

	w, err := f.wallets.Wallet(ctx, f.wallet.ID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(10000)))

	charges := f.store.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, ChargeFailed, charges[0].Status)
	assert.Equal(t, "insufficient_balance", charges[0].Reason)

	published := f.events.Events()
	require.Len(t, published, 1)
	var payload events.BookingChargedEvent
	require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
	assert.Equal(t, string(ChargeFailed), payload.Status)
	assert.Equal(t, "insufficient_balance", payload.Reason)
}

func TestChargeBookingWalletMissing(t *testing.T) {
	f := newBillingFixture(t, 0)
	ctx := context.Background()
	evt := bookingEvent(uuid.New(), 40000)

	require.NoError(t, f.proc.HandleBookingConfirmed(ctx, evt))

	charges := f.store.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, ChargeFailed, charges[0].Status)
	assert.Equal(t, "wallet_missing", charges[0].Reason)
}

func TestClaimRollsBackOnHandlerFailure(t *testing.T) {
	f := newBillingFixture(t, 0)
	ctx := context.Background()

	boom := errors.New("downstream failure")
	err := f.store.InTx(ctx, func(ctx context.Context, uow ChargeUnitOfWork) error {
		claimed, err := uow.Claim(ctx, ConsumerName, "evt-9")
		require.NoError(t, err)
		require.True(t, claimed)
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The failed claim was not persisted; redelivery wins it cleanly.
	require.NoError(t, f.store.InTx(ctx, func(ctx context.Context, uow ChargeUnitOfWork) error {
		claimed, err := uow.Claim(ctx, ConsumerName, "evt-9")
		require.NoError(t, err)
		assert.True(t, claimed)
		return nil
	}))
}

func TestHandleBookingConfirmedRejectsMalformedIdentifiers(t *testing.T) {
	f := newBillingFixture(t, 0)

	err := f.proc.HandleBookingConfirmed(context.Background(), events.BookingConfirmedEvent{
		EventID:   uuid.NewString(),
		BookingID: "not-a-uuid",
		WalletID:  uuid.NewString(),
		Amount:    decimal.NewFromInt(100),
		Currency:  "VND",
	})
	assert.ErrorContains(t, err, "invalid booking id")

	err = f.proc.HandleBookingConfirmed(context.Background(), events.BookingConfirmedEvent{
		EventID:   uuid.NewString(),
		BookingID: uuid.NewString(),
		WalletID:  "",
		Amount:    decimal.NewFromInt(100),
		Currency:  "VND",
	})
	assert.ErrorContains(t, err, "invalid wallet id")
}

type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func TestHandleDeliveryAckPolicy(t *testing.T) {
	f := newBillingFixture(t, 100000)
	ctx := context.Background()

	// Malformed payloads are dropped without requeue.
	ack := &fakeAcknowledger{}
	f.proc.HandleDelivery(ctx, amqp091.Delivery{Acknowledger: ack, Body: []byte("{not json")})
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)

	// Processing errors are requeued for redelivery.
	bad, err := json.Marshal(events.BookingConfirmedEvent{EventID: uuid.NewString(), BookingID: "nope"})
	require.NoError(t, err)
	ack = &fakeAcknowledger{}
	f.proc.HandleDelivery(ctx, amqp091.Delivery{Acknowledger: ack, Body: bad})
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)

	// Applied events are acked.
	good, err := json.Marshal(bookingEvent(f.wallet.ID, 5000))
	require.NoError(t, err)
	ack = &fakeAcknowledger{}
	f.proc.HandleDelivery(ctx, amqp091.Delivery{Acknowledger: ack, Body: good})
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}
