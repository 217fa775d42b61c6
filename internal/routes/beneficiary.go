package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/beneficiary"
)

// RegisterBeneficiaryRoutes wires beneficiary endpoints.
func RegisterBeneficiaryRoutes(r fiber.Router, h *beneficiary.Handler) {
	r.Post("/beneficiaries", h.Create)
	r.Get("/beneficiaries", h.List)
}
