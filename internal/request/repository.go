package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository persists requests in benefit_requests. The document list and the
// review comments live in JSONB columns so a list mutation is a single update.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a request repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, user_id, benefit_id, status, rejection_reason, documents, reviewer_comments, version,
	requested_at, last_review_date, processed_at, created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req      Request
		status   string
		docs     []byte
		comments []byte
	)
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.BenefitID,
		&status,
		&req.RejectionReason,
		&docs,
		&comments,
		&req.Version,
		&req.RequestedAt,
		&req.LastReviewDate,
		&req.ProcessedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	if err := json.Unmarshal(docs, &req.Documents); err != nil {
		return Request{}, fmt.Errorf("decode documents: %w", err)
	}
	if err := json.Unmarshal(comments, &req.Comments); err != nil {
		return Request{}, fmt.Errorf("decode reviewer comments: %w", err)
	}
	if req.Documents == nil {
		req.Documents = []DocumentReference{}
	}
	if req.Comments == nil {
		req.Comments = []ReviewComment{}
	}
	return req, nil
}

func encodeLists(req Request) ([]byte, []byte, error) {
	docs := req.Documents
	if docs == nil {
		docs = []DocumentReference{}
	}
	comments := req.Comments
	if comments == nil {
		comments = []ReviewComment{}
	}
	rawDocs, err := json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	rawComments, err := json.Marshal(comments)
	if err != nil {
		return nil, nil, fmt.Errorf("encode reviewer comments: %w", err)
	}
	return rawDocs, rawComments, nil
}

// Create inserts a new pending request.
func (r *Repository) Create(ctx context.Context, userID, benefitID uuid.UUID) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO benefit_requests (id, user_id, benefit_id, status)
VALUES ($1, $2, $3, 'pending')
RETURNING ` + requestColumns + `;`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, uuid.New(), userID, benefitID))
	if err != nil {
		if isUniqueViolation(err) {
			return Request{}, ErrDuplicateRequest
		}
		return Request{}, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Get fetches a request by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE id = $1;`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// FindByDocument returns the request whose document list references objectID.
func (r *Repository) FindByDocument(ctx context.Context, objectID uuid.UUID) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	probe, err := json.Marshal([]map[string]string{{"id": objectID.String()}})
	if err != nil {
		return Request{}, fmt.Errorf("encode document probe: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE documents @> $1::jsonb LIMIT 1;`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, string(probe)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("find request by document: %w", err)
	}
	return req, nil
}

// ListByUser returns the user's requests, newest first. limit <= 0 means all.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE user_id = $1 ORDER BY requested_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

// ListAll returns every request, optionally filtered by status.
func (r *Repository) ListAll(ctx context.Context, status Status) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE ($1 = '' OR status = $1) ORDER BY requested_at DESC`
	return r.list(ctx, query, string(status))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	requests := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

// Mutate locks the row, applies fn to a fresh copy and persists the result
// with a version bump in the same transaction. An error from fn rolls back.
func (r *Repository) Mutate(ctx context.Context, id uuid.UUID, fn func(*Request) error) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, fmt.Errorf("begin request tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := lockRequest(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	version := current.Version
	if err := fn(&current); err != nil {
		return Request{}, err
	}

	docs, comments, err := encodeLists(current)
	if err != nil {
		return Request{}, err
	}

	query := `
UPDATE benefit_requests
SET status = $3,
    rejection_reason = $4,
    documents = $5::jsonb,
    reviewer_comments = $6::jsonb,
    last_review_date = $7,
    processed_at = $8,
    version = version + 1,
    updated_at = NOW()
WHERE id = $1 AND version = $2
RETURNING ` + requestColumns + `;`

	updated, err := scanRequest(tx.QueryRow(ctx, query,
		id,
		version,
		string(current.Status),
		current.RejectionReason,
		string(docs),
		string(comments),
		current.LastReviewDate,
		current.ProcessedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrConcurrentUpdate
		}
		return Request{}, fmt.Errorf("update request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("commit request tx: %w", err)
	}
	return updated, nil
}

// DeleteIf locks the row, lets check veto the delete, then removes it.
func (r *Repository) DeleteIf(ctx context.Context, id uuid.UUID, check func(Request) error) (Request, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, fmt.Errorf("begin request tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := lockRequest(ctx, tx, id)
	if err != nil {
		return Request{}, err
	}
	if err := check(current); err != nil {
		return Request{}, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM benefit_requests WHERE id = $1;`, id); err != nil {
		return Request{}, fmt.Errorf("delete request: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("commit request tx: %w", err)
	}
	return current, nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Request, error) {
	query := `SELECT ` + requestColumns + ` FROM benefit_requests WHERE id = $1 FOR UPDATE;`
	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("lock request: %w", err)
	}
	return req, nil
}

// Stats counts requests per status.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'pending'),
       COUNT(*) FILTER (WHERE status = 'approved'),
       COUNT(*) FILTER (WHERE status = 'rejected'),
       COUNT(*) FILTER (WHERE status = 'needs_revision')
FROM benefit_requests;`

	var s Stats
	if err := r.pool.QueryRow(ctx, query).Scan(&s.Total, &s.Pending, &s.Approved, &s.Rejected, &s.NeedsRevision); err != nil {
		return Stats{}, fmt.Errorf("request stats: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
