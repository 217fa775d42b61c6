package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/funding"
)

// RegisterFundingRoutes wires deposit, withdrawal and callback endpoints.
// The callback path is what the provider is configured to POST results to.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/funding/deposits", h.Deposit)
	r.Post("/funding/withdrawals", h.Withdraw)
	r.Post("/funding/callbacks/mpesa", h.MpesaCallback)
}
