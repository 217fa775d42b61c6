package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/reconcile"
)

// RegisterReconcileRoutes wires manual reconciliation triggers.
func RegisterReconcileRoutes(r fiber.Router, h *reconcile.Handler) {
	r.Post("/reconcile/run", h.Run)
	r.Post("/reconcile/transactions/:id", h.One)
}
