package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	store Store
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type transactionResponse struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	BalanceBefore string            `json:"balance_before"`
	BalanceAfter  string            `json:"balance_after"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type createWalletRequest struct {
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`
}

// Create provisions the owner's wallet in a currency. Re-posting the same
// pair returns the existing wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid owner id")
	}
	if req.Currency == "" {
		return fiber.NewError(http.StatusBadRequest, "currency is required")
	}

	w, err := h.store.GetOrCreateWallet(c.UserContext(), ownerID, req.Currency)
	if err != nil {
		if errors.Is(err, ErrCurrencyMismatch) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(walletBody(w))
}

// Get returns wallet metadata and balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}

	w, err := h.store.Wallet(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(walletBody(w))
}

// ByOwner returns the owner's wallet in the given currency.
func (h *Handler) ByOwner(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.Params("ownerId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid owner id")
	}
	currency := c.Params("currency")

	w, err := h.store.WalletByOwner(c.UserContext(), ownerID, currency)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(walletBody(w))
}

func walletBody(w Wallet) fiber.Map {
	return fiber.Map{
		"id":       w.ID,
		"owner_id": w.OwnerID,
		"currency": w.Currency,
		"balance":  w.Balance.String(),
	}
}

// Balance returns the wallet balance with an as-of timestamp.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}

	w, err := h.store.Wallet(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": w.ID,
		"balance":   w.Balance.String(),
		"currency":  w.Currency,
		"as_of":     time.Now().UTC(),
	})
}

// Transactions returns the wallet posting history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	items, err := h.store.Transactions(c.UserContext(), walletID, limit, offset)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]transactionResponse, 0, len(items))
	for _, t := range items {
		out = append(out, transactionResponse{
			ID:            t.ID.String(),
			Type:          string(t.Type),
			Amount:        t.Amount.String(),
			Currency:      t.Currency,
			BalanceBefore: t.BalanceBefore.String(),
			BalanceAfter:  t.BalanceAfter.String(),
			Metadata:      t.Metadata,
			CreatedAt:     t.CreatedAt,
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": walletID, "transactions": out})
}
