// Package events defines the typed envelopes exchanged over the message bus
// and the static event-type → routing map used by the outbox dispatcher.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TypePaymentOrderCompleted announces a reconciled, credited payment order.
	TypePaymentOrderCompleted = "payment.order.completed.notification"
	// TypeBookingCharged announces the outcome of a booking fee charge.
	TypeBookingCharged = "billing.booking.charged"
	// TypeBookingConfirmed is consumed from the booking service.
	TypeBookingConfirmed = "booking.confirmed"
)

// PaymentOrderCompletedEvent is published when a payment order reaches COMPLETED.
type PaymentOrderCompletedEvent struct {
	EventID     string          `json:"event_id"`
	OrderID     string          `json:"order_id"`
	WalletID    string          `json:"wallet_id"`
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	GatewayTxID string          `json:"gateway_tx_id"`
	CompletedAt time.Time       `json:"completed_at"`
}

// BookingConfirmedEvent arrives from the booking service when a studio or
// session booking is confirmed and its fee becomes chargeable.
type BookingConfirmedEvent struct {
	EventID     string          `json:"event_id"`
	BookingID   string          `json:"booking_id"`
	WalletID    string          `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// BookingChargedEvent reports the result of charging a confirmed booking.
type BookingChargedEvent struct {
	EventID   string          `json:"event_id"`
	BookingID string          `json:"booking_id"`
	WalletID  string          `json:"wallet_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	ChargedAt time.Time       `json:"charged_at"`
}

// routingKeys maps event types to bus routing keys. Unmapped types route
// under their own name.
var routingKeys = map[string]string{
	TypePaymentOrderCompleted: "payments.order.completed",
	TypeBookingCharged:        "payments.booking.charged",
}

// RoutingKey resolves the routing key for an event type.
func RoutingKey(eventType string) string {
	if key, ok := routingKeys[eventType]; ok {
		return key
	}
	return eventType
}
