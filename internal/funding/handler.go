package funding

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/provider"
)

// Handler exposes deposit, withdrawal and provider-callback endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundingRequest struct {
	BusinessID string `json:"business_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Phone      string `json:"phone"`
	Provider   string `json:"provider"`
}

func (r fundingRequest) parse() (uuid.UUID, decimal.Decimal, error) {
	businessID, err := uuid.Parse(r.BusinessID)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("invalid business_id")
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("invalid amount")
	}
	return businessID, amount, nil
}

// Deposit initiates a mobile-money collection.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req fundingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	businessID, amount, err := req.parse()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.service.Deposit(c.UserContext(), DepositInput{
		BusinessID: businessID,
		Amount:     amount,
		Currency:   req.Currency,
		Phone:      req.Phone,
		Provider:   req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, provider.ErrNoProvider):
			return fiber.NewError(http.StatusUnprocessableEntity, "no provider can serve this request")
		default:
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
	}

	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"id":             rec.ID,
		"reference":      rec.Reference,
		"status":         rec.Status,
		"provider":       rec.Provider,
		"provider_tx_id": rec.ProviderTxID,
	})
}

// Withdraw initiates a mobile-money payout.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req fundingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	businessID, amount, err := req.parse()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		BusinessID: businessID,
		Amount:     amount,
		Currency:   req.Currency,
		Phone:      req.Phone,
		Provider:   req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, ledger.ErrWalletNotFound):
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		case errors.Is(err, provider.ErrNoProvider):
			return fiber.NewError(http.StatusUnprocessableEntity, "no provider can serve this request")
		default:
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
	}

	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"id":             rec.ID,
		"reference":      rec.Reference,
		"status":         rec.Status,
		"provider":       rec.Provider,
		"provider_tx_id": rec.ProviderTxID,
	})
}

// mpesaCallback mirrors the Daraja STK push result envelope.
type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MpesaCallback receives the asynchronous STK push result. It always returns
// 200 once the payload parses, so the provider stops retrying; unmatched
// callbacks are acknowledged and dropped.
func (h *Handler) MpesaCallback(c *fiber.Ctx) error {
	var payload mpesaCallback
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cb := payload.Body.StkCallback

	amount := decimal.Zero
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "Amount" {
			if v, ok := item.Value.(float64); ok {
				amount = decimal.NewFromFloat(v)
			}
		}
	}

	_, err := h.service.ProcessCallback(c.UserContext(), CallbackInput{
		ProviderTxID: cb.CheckoutRequestID,
		ResultCode:   fmt.Sprintf("%d", cb.ResultCode),
		ResultDesc:   cb.ResultDesc,
		Amount:       amount,
	})
	if err != nil && !errors.Is(err, ErrCallbackUnmatched) {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}
