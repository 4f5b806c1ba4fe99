// Package billing applies booking fees announced by the marketplace booking
// service. It is the consuming half of the event pipeline: deliveries arrive
// at least once, so every handler claims the event in the inbox and applies
// its side effects in the same transaction.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/tracklane/tracklane/internal/events"
	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/outbox"
)

// ConsumerName identifies this service in the consumed_events table.
const ConsumerName = "payments.billing"

// ChargeStatus is the outcome of a booking charge attempt.
type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

// Processor debits client wallets for confirmed bookings.
type Processor struct {
	store  ChargeStore
	logger *slog.Logger
}

// NewProcessor constructs a booking charge processor.
func NewProcessor(store ChargeStore, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		logger: logger.With("component", "billing"),
	}
}

// HandleDelivery decodes and applies one bus delivery. Malformed payloads are
// dropped (redelivery cannot fix them); processing errors are nack-requeued
// so the bus redelivers.
func (p *Processor) HandleDelivery(ctx context.Context, msg amqp091.Delivery) {
	var evt events.BookingConfirmedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		p.logger.Error("invalid booking event", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	if err := p.HandleBookingConfirmed(ctx, evt); err != nil {
		p.logger.Error("process booking event", "booking_id", evt.BookingID, "error", err)
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
}

// HandleBookingConfirmed charges the booking fee. The inbox claim, the wallet
// debit, the charge record and the outcome event commit as one unit: a
// failure after the claim rolls everything back and the redelivered message
// starts clean. An insufficient balance is business-terminal: the charge is
// recorded as failed and the event is considered applied.
func (p *Processor) HandleBookingConfirmed(ctx context.Context, evt events.BookingConfirmedEvent) error {
	bookingID, err := uuid.Parse(evt.BookingID)
	if err != nil {
		return fmt.Errorf("invalid booking id: %w", err)
	}
	walletID, err := uuid.Parse(evt.WalletID)
	if err != nil {
		return fmt.Errorf("invalid wallet id: %w", err)
	}

	return p.store.InTx(ctx, func(ctx context.Context, uow ChargeUnitOfWork) error {
		claimed, err := uow.Claim(ctx, ConsumerName, evt.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			p.logger.Info("booking event already applied",
				"booking_id", evt.BookingID, "event_id", evt.EventID)
			return nil
		}

		status := ChargeSucceeded
		reason := ""

		entry := ledger.Entry{
			Type:      ledger.TypeDebit,
			BookingID: &bookingID,
			Metadata:  map[string]string{"booking_id": evt.BookingID},
		}
		if _, err := uow.Debit(ctx, walletID, evt.Amount, evt.Currency, entry); err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientBalance):
				status, reason = ChargeFailed, "insufficient_balance"
			case errors.Is(err, ledger.ErrWalletNotFound):
				status, reason = ChargeFailed, "wallet_missing"
			case errors.Is(err, ledger.ErrCurrencyMismatch):
				status, reason = ChargeFailed, "currency_mismatch"
			default:
				return fmt.Errorf("debit wallet: %w", err)
			}
		}

		if err := uow.RecordCharge(ctx, Charge{
			ID:        uuid.New(),
			BookingID: bookingID,
			WalletID:  walletID,
			Amount:    evt.Amount,
			Currency:  evt.Currency,
			Status:    status,
			Reason:    reason,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("record booking charge: %w", err)
		}

		out, err := outbox.NewEvent(bookingID, "booking_charge", events.TypeBookingCharged,
			events.BookingChargedEvent{
				EventID:   uuid.NewString(),
				BookingID: evt.BookingID,
				WalletID:  evt.WalletID,
				Amount:    evt.Amount,
				Currency:  evt.Currency,
				Status:    string(status),
				Reason:    reason,
				ChargedAt: time.Now().UTC(),
			})
		if err != nil {
			return err
		}
		if err := uow.AppendEvent(ctx, out); err != nil {
			return fmt.Errorf("append charge event: %w", err)
		}

		return nil
	})
}
