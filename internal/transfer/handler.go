package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/beneficiary"
	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initiateRequest struct {
	BusinessID    string `json:"business_id"`
	BeneficiaryID string `json:"beneficiary_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// Initiate starts a cross-border transfer and runs it to completion or
// rollback before responding.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid business_id")
	}
	beneficiaryID, err := uuid.Parse(req.BeneficiaryID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid beneficiary_id")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid amount")
	}

	rec, err := h.service.Initiate(c.UserContext(), InitiateInput{
		BusinessID:    businessID,
		BeneficiaryID: beneficiaryID,
		Amount:        amount,
		Currency:      req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, "insufficient balance")
		case errors.Is(err, beneficiary.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "beneficiary not found")
		case errors.Is(err, beneficiary.ErrForbidden):
			return fiber.NewError(http.StatusForbidden, "beneficiary belongs to another business")
		case errors.Is(err, beneficiary.ErrInactive):
			return fiber.NewError(http.StatusUnprocessableEntity, "beneficiary is inactive")
		case errors.Is(err, ErrInsufficientLiquidity):
			// Transfer was rolled back; the record carries the failure detail.
			return c.Status(http.StatusUnprocessableEntity).JSON(recordResponse(rec))
		case errors.Is(err, provider.ErrConfirmationTimeout):
			return c.Status(http.StatusAccepted).JSON(recordResponse(rec))
		default:
			if rec.ID != uuid.Nil {
				return c.Status(http.StatusBadGateway).JSON(recordResponse(rec))
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(recordResponse(rec))
}

// Status returns the transaction record for a transfer.
func (h *Handler) Status(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transfer id")
	}
	rec, err := h.service.Status(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "transfer not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(recordResponse(rec))
}

// Timeline returns the full step log for a transfer.
func (h *Handler) Timeline(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transfer id")
	}
	entries, err := h.service.Timeline(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "transfer not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"step":       e.Step,
			"status":     e.Status,
			"message":    e.Message,
			"metadata":   e.Metadata,
			"created_at": e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"transaction_id": id, "timeline": out})
}

// List returns recent transfers for a business.
func (h *Handler) List(c *fiber.Ctx) error {
	businessID, err := uuid.Parse(c.Query("business_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid business_id")
	}
	records, err := h.service.List(c.UserContext(), businessID, c.QueryInt("limit"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse(rec))
	}
	return c.JSON(fiber.Map{"transfers": out})
}

func recordResponse(rec transaction.Record) fiber.Map {
	m := fiber.Map{
		"id":         rec.ID,
		"reference":  rec.Reference,
		"status":     rec.Status,
		"type":       rec.Type,
		"amount":     rec.Amount,
		"currency":   rec.Currency,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
	if rec.Provider != "" {
		m["provider"] = rec.Provider
	}
	if rec.ProviderTxID != "" {
		m["provider_tx_id"] = rec.ProviderTxID
	}
	if rec.ErrorCode != "" {
		m["error_code"] = rec.ErrorCode
		m["error_message"] = rec.ErrorMessage
	}
	if rec.CompletedAt != nil {
		m["completed_at"] = rec.CompletedAt
	}
	if rec.FailedAt != nil {
		m["failed_at"] = rec.FailedAt
	}
	return m
}
