package beneficiary

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes beneficiary HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a beneficiary handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createBeneficiaryRequest struct {
	BusinessID         string `json:"business_id"`
	Name               string `json:"name"`
	Country            string `json:"country"`
	Currency           string `json:"currency"`
	DestinationAddress string `json:"destination_address"`
}

// Create registers a beneficiary for a business.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createBeneficiaryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid business_id")
	}

	b, err := h.service.Create(c.UserContext(), CreateInput{
		BusinessID:         businessID,
		Name:               req.Name,
		Country:            req.Country,
		Currency:           req.Currency,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(beneficiaryResponse(b))
}

// List returns the beneficiaries registered by a business.
func (h *Handler) List(c *fiber.Ctx) error {
	businessID, err := uuid.Parse(c.Query("business_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid business_id")
	}
	items, err := h.service.List(c.UserContext(), businessID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(items))
	for _, b := range items {
		out = append(out, beneficiaryResponse(b))
	}
	return c.JSON(fiber.Map{"beneficiaries": out})
}

func beneficiaryResponse(b Beneficiary) fiber.Map {
	return fiber.Map{
		"id":                  b.ID,
		"business_id":         b.BusinessID,
		"name":                b.Name,
		"country":             b.Country,
		"currency":            b.Currency,
		"destination_address": b.DestinationAddress,
		"is_active":           b.IsActive,
		"created_at":          b.CreatedAt,
	}
}
