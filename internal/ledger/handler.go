package ledger

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createWalletRequest struct {
	BusinessID string `json:"business_id"`
	Currency   string `json:"currency"`
}

// Create provisions (or returns) the wallet for a business and currency.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid business_id")
	}

	wallet, err := h.service.GetOrCreateWallet(c.UserContext(), businessID, req.Currency)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse(wallet))
}

// Balance returns the wallet's current balances.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}
	wallet, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(walletResponse(wallet))
}

// History returns ledger entries for the wallet, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}
	entries, err := h.service.History(c.UserContext(), walletID, c.QueryInt("limit"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		item := fiber.Map{
			"id":            e.ID,
			"amount":        e.Amount,
			"type":          e.Type,
			"description":   e.Description,
			"balance_after": e.BalanceAfter,
			"created_at":    e.CreatedAt,
		}
		if e.TransactionID != nil {
			item["transaction_id"] = e.TransactionID
		}
		out = append(out, item)
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "entries": out})
}

type holdRequest struct {
	Amount string `json:"amount"`
}

// Lock moves funds from available to pending.
func (h *Handler) Lock(c *fiber.Ctx) error {
	return h.hold(c, h.service.LockBalance)
}

// Unlock releases pending funds back to available.
func (h *Handler) Unlock(c *fiber.Ctx) error {
	return h.hold(c, h.service.UnlockBalance)
}

func (h *Handler) hold(c *fiber.Ctx, op func(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error)) error {
	walletID, err := uuid.Parse(c.Params("walletId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid wallet id")
	}
	var req holdRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	wallet, err := op(c.UserContext(), walletID, amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientPending):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(walletResponse(wallet))
}

func walletResponse(w Wallet) fiber.Map {
	return fiber.Map{
		"id":                  w.ID,
		"business_id":         w.BusinessID,
		"currency":            w.Currency,
		"available":           w.Available,
		"pending":             w.Pending,
		"total":               w.Total,
		"last_transaction_at": w.LastTransactionAt,
		"created_at":          w.CreatedAt,
		"updated_at":          w.UpdatedAt,
	}
}
