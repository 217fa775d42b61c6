package beneficiary

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service exposes beneficiary lookups with business scoping.
type Service struct {
	repo Repository
}

// NewService builds a beneficiary service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures data required to register a beneficiary.
type CreateInput struct {
	BusinessID         uuid.UUID
	Name               string
	Country            string
	Currency           string
	DestinationAddress string
}

// Create registers an active beneficiary for a business.
func (s *Service) Create(ctx context.Context, in CreateInput) (Beneficiary, error) {
	if in.Name == "" || in.DestinationAddress == "" {
		return Beneficiary{}, fmt.Errorf("name and destination address are required")
	}
	return s.repo.Create(ctx, Beneficiary{
		BusinessID:         in.BusinessID,
		Name:               in.Name,
		Country:            in.Country,
		Currency:           in.Currency,
		DestinationAddress: in.DestinationAddress,
		IsActive:           true,
	})
}

// Find returns the beneficiary when it exists, belongs to the business and is
// active; otherwise ErrNotFound, ErrForbidden or ErrInactive.
func (s *Service) Find(ctx context.Context, id, businessID uuid.UUID) (Beneficiary, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Beneficiary{}, err
	}
	if b.BusinessID != businessID {
		return Beneficiary{}, ErrForbidden
	}
	if !b.IsActive {
		return Beneficiary{}, ErrInactive
	}
	return b, nil
}

// List returns the beneficiaries registered by a business.
func (s *Service) List(ctx context.Context, businessID uuid.UUID) ([]Beneficiary, error) {
	return s.repo.ListByBusiness(ctx, businessID)
}
