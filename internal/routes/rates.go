package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/savanna-pay/savanna_pay/internal/rates"
)

// RegisterRateRoutes wires the exchange-rate quote endpoint.
func RegisterRateRoutes(r fiber.Router, svc *rates.Service) {
	r.Get("/rates/:pair", func(c *fiber.Ctx) error {
		parts := strings.SplitN(c.Params("pair"), "-", 2)
		if len(parts) != 2 {
			return fiber.NewError(http.StatusBadRequest, "pair must look like KES-USDT")
		}
		quote, err := svc.GetRate(c.UserContext(), strings.ToUpper(parts[0]), strings.ToUpper(parts[1]))
		if err != nil {
			if errors.Is(err, rates.ErrUnsupportedPair) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(quote)
	})
}
