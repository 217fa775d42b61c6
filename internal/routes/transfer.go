package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/transfer"
)

// RegisterTransferRoutes wires cross-border transfer endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Initiate)
	r.Get("/transfers", h.List)
	r.Get("/transfers/:id", h.Status)
	r.Get("/transfers/:id/timeline", h.Timeline)
}
