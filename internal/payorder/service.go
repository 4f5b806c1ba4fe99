package payorder

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tracklane/tracklane/internal/config"
	"github.com/tracklane/tracklane/internal/events"
	"github.com/tracklane/tracklane/internal/ledger"
	"github.com/tracklane/tracklane/internal/outbox"
)

const aggregateType = "payment_order"

// Service orchestrates the payment-gateway integration: order creation,
// QR-code generation and webhook-driven reconciliation. Gateway credentials
// and bank details are injected at construction and never mutated.
type Service struct {
	repo    Repository
	wallets ledger.Store
	cfg     config.Config
	logger  *slog.Logger
}

// NewService constructs a payment order service.
func NewService(repo Repository, wallets ledger.Store, cfg config.Config, logger *slog.Logger) *Service {
	return &Service{repo: repo, wallets: wallets, cfg: cfg, logger: logger}
}

// CreateInput captures the data needed to open a payment order.
type CreateInput struct {
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Result describes the outcome of a reconciliation attempt.
type Result struct {
	Order Order
	// Duplicate marks a webhook replay against an already COMPLETED order,
	// absorbed as a successful no-op.
	Duplicate bool
	// Ignored marks a notification whose transfer direction is outbound.
	Ignored bool
}

// CreateOrder validates the wallet, derives the transfer-content tag and QR
// reference, and persists the order as PENDING with a TTL deadline.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (Order, error) {
	if !in.Amount.IsPositive() {
		return Order{}, ledger.ErrInvalidAmount
	}

	w, err := s.wallets.Wallet(ctx, in.WalletID)
	if err != nil {
		return Order{}, err
	}

	currency := in.Currency
	if currency == "" {
		currency = w.Currency
	}
	if currency != w.Currency {
		return Order{}, ledger.ErrCurrencyMismatch
	}

	now := time.Now().UTC()
	id := uuid.New()
	content := BuildTransferContent(id)
	bankName := DisplayBankName(s.cfg.BankCode, s.cfg.FallbackBankName)

	o := Order{
		ID:              id,
		WalletID:        w.ID,
		Amount:          in.Amount,
		Currency:        currency,
		Status:          StatusPending,
		Description:     in.Description,
		AccountNumber:   s.cfg.BankAccountNumber,
		BankCode:        s.cfg.BankCode,
		TransferContent: content,
		QRCodeURL:       BuildQRCodeURL(s.cfg.QRImageHost, s.cfg.BankAccountNumber, bankName, in.Amount, content),
		ExpiresAt:       now.Add(s.cfg.OrderTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return Order{}, fmt.Errorf("persist order: %w", err)
	}
	return o, nil
}

// Order fetches a payment order by identifier.
func (s *Service) Order(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.repo.Get(ctx, id)
}

// Reconcile applies a gateway notification to its payment order. It tolerates
// at-least-once, out-of-order and duplicate delivery: replays against a
// COMPLETED order succeed as no-ops, and the order row lock guarantees that
// concurrent duplicates produce exactly one credit.
func (s *Service) Reconcile(ctx context.Context, notif Notification) (Result, error) {
	if notif.Content == "" {
		return Result{}, ErrMissingContent
	}

	orderID, ok := ParseTransferContent(notif.Content)
	if !ok {
		return Result{}, ErrContentUnmatched
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}

	if o.Status == StatusCompleted {
		return Result{Order: o, Duplicate: true}, nil
	}

	if !notif.Inbound() {
		s.logger.Info("ignoring outbound transfer notification",
			"order_id", orderID, "transfer_type", notif.TransferType)
		return Result{Order: o, Ignored: true}, nil
	}

	if !notif.TransferAmount.Equal(o.Amount) {
		if s.cfg.AmountMismatchPolicy == config.MismatchReject {
			return Result{}, fmt.Errorf("%w: notified %s, expected %s",
				ErrAmountMismatch, notif.TransferAmount, o.Amount)
		}
		s.logger.Warn("transfer amount differs from order amount, crediting order amount",
			"order_id", orderID, "notified", notif.TransferAmount, "expected", o.Amount)
	}

	raw, err := json.Marshal(notif)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot callback: %w", err)
	}

	var res Result
	var creditFailed bool
	err = s.repo.Reconcile(ctx, orderID, func(ctx context.Context, uow UnitOfWork, o *Order) error {
		// Re-check under the lock: a concurrent duplicate may have completed
		// the order between the pre-check above and acquiring the row.
		switch o.Status {
		case StatusCompleted:
			res.Order = *o
			res.Duplicate = true
			return nil
		case StatusPending, StatusProcessing:
		default:
			return fmt.Errorf("%w: order %s is %s", ErrOrderUnpayable, o.ID, o.Status)
		}

		o.Status = StatusProcessing
		o.GatewayTxID = notif.ExternalID()
		o.RawCallback = raw

		entry := ledger.Entry{
			Type: ledger.TypeTopup,
			Metadata: map[string]string{
				"payment_order_id": o.ID.String(),
				"gateway":          notif.Gateway,
				"reference_code":   notif.ReferenceCode,
			},
		}
		if _, err := uow.Credit(ctx, o.WalletID, o.Amount, o.Currency, entry); err != nil {
			creditFailed = true
			return fmt.Errorf("credit wallet %s: %w", o.WalletID, err)
		}

		now := time.Now().UTC()
		o.Status = StatusCompleted
		o.CompletedAt = &now

		w, err := s.wallets.Wallet(ctx, o.WalletID)
		if err != nil {
			return fmt.Errorf("load wallet for event: %w", err)
		}

		evt, err := outbox.NewEvent(o.ID, aggregateType, events.TypePaymentOrderCompleted,
			events.PaymentOrderCompletedEvent{
				EventID:     uuid.NewString(),
				OrderID:     o.ID.String(),
				WalletID:    o.WalletID.String(),
				OwnerID:     w.OwnerID.String(),
				Amount:      o.Amount,
				Currency:    o.Currency,
				GatewayTxID: o.GatewayTxID,
				CompletedAt: now,
			})
		if err != nil {
			return err
		}

		res.Order = *o
		return uow.AppendEvent(ctx, evt)
	})
	if err != nil {
		if creditFailed {
			// Money was not credited; flip the order to FAILED rather than
			// leaving it ambiguously PROCESSING.
			s.markFailed(ctx, orderID, raw, notif.ExternalID())
		}
		return Result{}, err
	}

	return res, nil
}

// ExpireOrders sweeps overdue PENDING orders to EXPIRED. Idempotent.
func (s *Service) ExpireOrders(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired payment orders", "count", n)
	}
	return n, nil
}

// VerifyAPIKey compares the presented webhook credential against the
// configured shared secret in constant effort. Hashing first keeps the
// comparison length-independent.
func (s *Service) VerifyAPIKey(candidate string) bool {
	want := sha256.Sum256([]byte(s.cfg.WebhookAPIKey))
	got := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func (s *Service) markFailed(ctx context.Context, orderID uuid.UUID, raw []byte, gatewayTxID string) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		s.logger.Error("load order for failure mark", "order_id", orderID, "error", err)
		return
	}
	o.Status = StatusFailed
	o.GatewayTxID = gatewayTxID
	o.RawCallback = raw
	if err := s.repo.Update(ctx, o); err != nil {
		s.logger.Error("mark order failed", "order_id", orderID, "error", err)
	}
}
