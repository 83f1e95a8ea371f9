package benefit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type repository interface {
	Create(ctx context.Context, createdBy uuid.UUID, input CreateInput) (Benefit, error)
	List(ctx context.Context, activeOnly bool) ([]Benefit, error)
	Get(ctx context.Context, id uuid.UUID) (Benefit, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Service orchestrates benefit catalog operations.
type Service struct {
	repo repository
}

// NewService constructs a benefit service.
func NewService(repo repository) *Service {
	return &Service{repo: repo}
}

// CreateBenefit adds a catalog entry. Callers are expected to be administrators.
func (s *Service) CreateBenefit(ctx context.Context, adminID uuid.UUID, input CreateInput) (Benefit, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Benefit{}, fmt.Errorf("%w: name required", ErrInvalidBenefit)
	}
	if input.Category == "" {
		input.Category = CategoryFixed
	}
	if input.Category != CategoryFixed && input.Category != CategoryTiered {
		return Benefit{}, fmt.Errorf("%w: unknown category %q", ErrInvalidBenefit, input.Category)
	}
	return s.repo.Create(ctx, adminID, input)
}

// ListBenefits returns the catalog. Employees only see active benefits.
func (s *Service) ListBenefits(ctx context.Context, includeInactive bool) ([]Benefit, error) {
	return s.repo.List(ctx, !includeInactive)
}

// GetBenefit returns a single benefit.
func (s *Service) GetBenefit(ctx context.Context, id uuid.UUID) (Benefit, error) {
	return s.repo.Get(ctx, id)
}

// DeactivateBenefit stops new requests. Existing requests are untouched.
func (s *Service) DeactivateBenefit(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetActive(ctx, id, false)
}

// EnsureActive returns ErrBenefitInactive unless the benefit accepts requests.
func (s *Service) EnsureActive(ctx context.Context, id uuid.UUID) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.Active {
		return ErrBenefitInactive
	}
	return nil
}
