package benefit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCreateAndListBenefits(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	adminID := uuid.New()
	description := "annual medical cover"
	created, err := service.CreateBenefit(context.Background(), adminID, CreateInput{
		Name:              "  Medical  ",
		Description:       &description,
		DocumentsRequired: []string{"receipt"},
	})
	if err != nil {
		t.Fatalf("CreateBenefit returned error: %v", err)
	}
	if created.Name != "Medical" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if created.Category != CategoryFixed {
		t.Fatalf("expected default fixed category, got %s", created.Category)
	}

	benefits, err := service.ListBenefits(context.Background(), false)
	if err != nil {
		t.Fatalf("ListBenefits returned error: %v", err)
	}
	if len(benefits) != 1 {
		t.Fatalf("expected 1 benefit, got %d", len(benefits))
	}
}

func TestCreateBenefitDuplicateName(t *testing.T) {
	service := NewService(newFakeRepo())

	if _, err := service.CreateBenefit(context.Background(), uuid.New(), CreateInput{Name: "Housing"}); err != nil {
		t.Fatalf("unexpected error creating benefit: %v", err)
	}
	if _, err := service.CreateBenefit(context.Background(), uuid.New(), CreateInput{Name: "Housing"}); !errors.Is(err, ErrBenefitNameExists) {
		t.Fatalf("expected ErrBenefitNameExists, got %v", err)
	}
}

func TestCreateBenefitRejectsUnknownCategory(t *testing.T) {
	service := NewService(newFakeRepo())

	_, err := service.CreateBenefit(context.Background(), uuid.New(), CreateInput{Name: "Car", Category: "bonus"})
	if !errors.Is(err, ErrInvalidBenefit) {
		t.Fatalf("expected ErrInvalidBenefit, got %v", err)
	}
}

func TestDeactivateHidesBenefitAndBlocksRequests(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo)

	b, err := service.CreateBenefit(context.Background(), uuid.New(), CreateInput{Name: "Education"})
	if err != nil {
		t.Fatalf("CreateBenefit returned error: %v", err)
	}
	if err := service.EnsureActive(context.Background(), b.ID); err != nil {
		t.Fatalf("expected active benefit, got %v", err)
	}

	if err := service.DeactivateBenefit(context.Background(), b.ID); err != nil {
		t.Fatalf("DeactivateBenefit returned error: %v", err)
	}
	if err := service.EnsureActive(context.Background(), b.ID); !errors.Is(err, ErrBenefitInactive) {
		t.Fatalf("expected ErrBenefitInactive, got %v", err)
	}

	active, _ := service.ListBenefits(context.Background(), false)
	if len(active) != 0 {
		t.Fatalf("expected no active benefits, got %d", len(active))
	}
	all, _ := service.ListBenefits(context.Background(), true)
	if len(all) != 1 {
		t.Fatalf("expected deactivated benefit in full listing, got %d", len(all))
	}

	if err := service.DeactivateBenefit(context.Background(), uuid.New()); !errors.Is(err, ErrBenefitNotFound) {
		t.Fatalf("expected ErrBenefitNotFound, got %v", err)
	}
}

// --- fakes ----

type fakeRepo struct {
	benefits map[uuid.UUID]Benefit
	byName   map[string]uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		benefits: make(map[uuid.UUID]Benefit),
		byName:   make(map[string]uuid.UUID),
	}
}

func (f *fakeRepo) Create(ctx context.Context, createdBy uuid.UUID, input CreateInput) (Benefit, error) {
	if _, exists := f.byName[input.Name]; exists {
		return Benefit{}, ErrBenefitNameExists
	}
	b := Benefit{
		ID:                uuid.New(),
		Name:              input.Name,
		Description:       input.Description,
		Category:          input.Category,
		DocumentsRequired: input.DocumentsRequired,
		Active:            true,
		CreatedBy:         createdBy,
	}
	f.byName[b.Name] = b.ID
	f.benefits[b.ID] = b
	return b, nil
}

func (f *fakeRepo) List(ctx context.Context, activeOnly bool) ([]Benefit, error) {
	var out []Benefit
	for _, b := range f.benefits {
		if activeOnly && !b.Active {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeRepo) Get(ctx context.Context, id uuid.UUID) (Benefit, error) {
	b, ok := f.benefits[id]
	if !ok {
		return Benefit{}, ErrBenefitNotFound
	}
	return b, nil
}

func (f *fakeRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	b, ok := f.benefits[id]
	if !ok {
		return ErrBenefitNotFound
	}
	b.Active = active
	f.benefits[id] = b
	return nil
}
