package reconcile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

// Handler exposes manual reconciliation triggers for support tooling.
type Handler struct {
	worker *Worker
}

// NewHandler constructs a reconciliation handler.
func NewHandler(worker *Worker) *Handler {
	return &Handler{worker: worker}
}

// Run triggers a full reconciliation pass immediately.
func (h *Handler) Run(c *fiber.Ctx) error {
	res, err := h.worker.Run(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"expired":   res.Expired,
		"completed": res.Completed,
		"failed":    res.Failed,
		"retried":   res.Retried,
	})
}

// One reconciles a single transaction, ignoring the age window.
func (h *Handler) One(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	rec, err := h.worker.ReconcileOne(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"id":         rec.ID,
		"reference":  rec.Reference,
		"status":     rec.Status,
		"error_code": rec.ErrorCode,
	})
}
