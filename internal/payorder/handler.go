package payorder

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tracklane/tracklane/internal/ledger"
)

// Handler exposes payment order endpoints and the gateway webhook.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a payment order handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createOrderRequest struct {
	WalletID    string          `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

type orderResponse struct {
	ID              string     `json:"id"`
	WalletID        string     `json:"wallet_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	Description     string     `json:"description,omitempty"`
	AccountNumber   string     `json:"account_number"`
	BankCode        string     `json:"bank_code"`
	TransferContent string     `json:"transfer_content"`
	QRCodeURL       string     `json:"qr_code_url"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Create opens a payment order for a wallet top-up.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}

	o, err := h.service.CreateOrder(c.UserContext(), CreateInput{
		WalletID:    walletID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrCurrencyMismatch):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toOrderResponse(o))
}

// Get returns a payment order by identifier.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("orderId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid order id")
	}

	o, err := h.service.Order(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return fiber.NewError(http.StatusNotFound, "payment order not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(toOrderResponse(o))
}

// Webhook receives gateway transfer notifications. The gateway contract
// requires a structured success/failure body: business rejections answer 200
// with success=false so the gateway does not retry a permanently bad
// notification, while internal errors answer 500 to trigger redelivery.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var notif Notification
	if err := c.BodyParser(&notif); err != nil {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"success": false,
			"message": "malformed notification payload",
		})
	}

	res, err := h.service.Reconcile(c.UserContext(), notif)
	if err != nil {
		if isBusinessRejection(err) {
			h.logger.Warn("webhook rejected", "reference_code", notif.ReferenceCode, "error", err)
			return c.Status(http.StatusOK).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		h.logger.Error("webhook reconciliation failed", "reference_code", notif.ReferenceCode, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "internal error",
		})
	}

	message := "order completed"
	switch {
	case res.Duplicate:
		message = "order already completed"
	case res.Ignored:
		message = "outbound transfer ignored"
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":  true,
		"message":  message,
		"order_id": res.Order.ID,
	})
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, ErrMissingContent) ||
		errors.Is(err, ErrContentUnmatched) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrOrderUnpayable) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ledger.ErrCurrencyMismatch) ||
		errors.Is(err, ledger.ErrInvalidAmount)
}

func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:              o.ID.String(),
		WalletID:        o.WalletID.String(),
		Amount:          o.Amount.String(),
		Currency:        o.Currency,
		Status:          string(o.Status),
		Description:     o.Description,
		AccountNumber:   o.AccountNumber,
		BankCode:        o.BankCode,
		TransferContent: o.TransferContent,
		QRCodeURL:       o.QRCodeURL,
		ExpiresAt:       o.ExpiresAt,
		CompletedAt:     o.CompletedAt,
		CreatedAt:       o.CreatedAt,
	}
}
