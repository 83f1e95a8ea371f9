package benefit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository allows access to benefit persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a benefit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectWithUsage = `
SELECT b.id,
       b.name,
       b.description,
       b.category,
       b.documents_required,
       b.active,
       b.created_by,
       b.created_at,
       b.updated_at,
       COUNT(r.id) AS total,
       COUNT(r.id) FILTER (WHERE r.status = 'pending') AS pending
FROM benefits b
LEFT JOIN benefit_requests r ON r.benefit_id = b.id`

func scanBenefit(row pgx.Row) (Benefit, error) {
	var (
		b        Benefit
		category string
	)
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&category,
		&b.DocumentsRequired,
		&b.Active,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.Usage.Total,
		&b.Usage.Pending,
	)
	b.Category = Category(category)
	return b, err
}

// Create inserts a new active benefit.
func (r *Repository) Create(ctx context.Context, createdBy uuid.UUID, input CreateInput) (Benefit, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO benefits (id, name, description, category, documents_required, active, created_by)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
RETURNING id, name, description, category, documents_required, active, created_by, created_at, updated_at, 0::bigint, 0::bigint;`

	docs := input.DocumentsRequired
	if docs == nil {
		docs = []string{}
	}
	b, err := scanBenefit(r.pool.QueryRow(ctx, query, uuid.New(), input.Name, input.Description, string(input.Category), docs, createdBy))
	if err != nil {
		if isUniqueViolation(err) {
			return Benefit{}, ErrBenefitNameExists
		}
		return Benefit{}, fmt.Errorf("create benefit: %w", err)
	}
	return b, nil
}

// List returns benefits, newest first. activeOnly hides deactivated entries.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Benefit, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := selectWithUsage + `
WHERE ($1 = FALSE OR b.active)
GROUP BY b.id
ORDER BY b.created_at DESC;`

	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list benefits: %w", err)
	}
	defer rows.Close()

	var benefits []Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan benefit: %w", err)
		}
		benefits = append(benefits, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate benefits: %w", err)
	}
	return benefits, nil
}

// Get fetches a single benefit.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Benefit, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := selectWithUsage + `
WHERE b.id = $1
GROUP BY b.id;`

	b, err := scanBenefit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Benefit{}, ErrBenefitNotFound
		}
		return Benefit{}, fmt.Errorf("get benefit: %w", err)
	}
	return b, nil
}

// SetActive toggles whether new requests may be filed.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE benefits SET active = $2, updated_at = NOW() WHERE id = $1;`, id, active)
	if err != nil {
		return fmt.Errorf("set benefit active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBenefitNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
