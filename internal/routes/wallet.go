package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/ledger"
)

// RegisterWalletRoutes wires wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Get("/wallets/:walletId/history", h.History)
	r.Post("/wallets/:walletId/lock", h.Lock)
	r.Post("/wallets/:walletId/unlock", h.Unlock)
}
