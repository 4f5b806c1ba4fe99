// Package payorder manages the payment-gateway order lifecycle: order
// creation with a bank-transfer QR reference, webhook-driven reconciliation
// that credits the wallet ledger, and time-based expiry.
package payorder

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound occurs when the referenced payment order does not exist.
	ErrOrderNotFound = errors.New("payment order not found")

	// ErrMissingContent occurs when a gateway notification carries no
	// free-text transfer content. Reconciliation fails closed.
	ErrMissingContent = errors.New("notification has no transfer content")

	// ErrContentUnmatched occurs when no order tag can be extracted from the
	// transfer content.
	ErrContentUnmatched = errors.New("no order tag in transfer content")

	// ErrAmountMismatch occurs under the reject policy when the notified
	// amount differs from the order amount.
	ErrAmountMismatch = errors.New("transfer amount does not match order amount")

	// ErrOrderUnpayable occurs when a notification targets an order in a
	// terminal non-completed state (EXPIRED or FAILED). A late transfer
	// against an expired order needs manual review, not an automatic credit.
	ErrOrderUnpayable = errors.New("order is not payable")
)

// Status is the payment order lifecycle state.
//
//	PENDING --(webhook credit match)--> PROCESSING --(ledger credit ok)--> COMPLETED
//	PENDING --(expiry sweep)--> EXPIRED
//	PROCESSING --(ledger credit fails)--> FAILED
//
// COMPLETED is terminal and absorbs duplicate webhooks as no-ops.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
	StatusFailed     Status = "FAILED"
)

// Order is a pending request to receive an external bank transfer that will
// top up a wallet. Rows are never deleted; the raw callback is kept for audit.
type Order struct {
	ID              uuid.UUID
	WalletID        uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	Status          Status
	Description     string
	AccountNumber   string
	BankCode        string
	TransferContent string
	QRCodeURL       string
	ExpiresAt       time.Time
	GatewayTxID     string
	RawCallback     []byte
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Notification is the payment-gateway webhook payload reporting a real-world
// transfer. Delivery is at-least-once and may be duplicated or out of order.
type Notification struct {
	ID              int64           `json:"id"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
	TransferType    string          `json:"transferType"`
	TransferAmount  decimal.Decimal `json:"transferAmount"`
	Content         string          `json:"content"`
	ReferenceCode   string          `json:"referenceCode"`
}

// Inbound reports whether the notification describes an incoming credit.
func (n Notification) Inbound() bool {
	return n.TransferType == "in"
}

// ExternalID returns the gateway's transaction identifier, preferring the
// reference code over the numeric id.
func (n Notification) ExternalID() string {
	if n.ReferenceCode != "" {
		return n.ReferenceCode
	}
	if n.ID == 0 {
		return ""
	}
	return strconv.FormatInt(n.ID, 10)
}
