// Package audit keeps a compliance trail of request and document actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abduss/benefits/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Action names an audited operation.
type Action string

const (
	ActionRequestSubmit  Action = "request_submit"
	ActionRequestCancel  Action = "request_cancel"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionNeedsRevision  Action = "needs_revision"
	ActionOverride       Action = "override"
	ActionDocumentUpload Action = "document_upload"
	ActionDocumentDelete Action = "document_delete"
)

// Event is one audit record.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Action    Action            `json:"action"`
	ActorID   uuid.UUID         `json:"actor_id"`
	RequestID *uuid.UUID        `json:"request_id,omitempty"`
	ObjectID  *uuid.UUID        `json:"object_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Recorder accepts audit events. Recording is best effort: implementations log
// failures and never return them to the audited operation.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

const queryTimeout = 5 * time.Second

// Repository stores events in audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds an audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts event and logs, rather than returns, any failure.
func (r *Repository) Record(ctx context.Context, event Event) {
	if err := r.insert(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("audit record failed",
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
	}
}

func (r *Repository) insert(ctx context.Context, event Event) error {
	// Detached so a cancelled request still leaves its trail.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	query := `
INSERT INTO audit_logs (id, action, actor_id, request_id, object_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := r.pool.Exec(ctx, query, event.ID, string(event.Action), event.ActorID, event.RequestID, event.ObjectID, meta); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns the most recent events, optionally filtered by action.
func (r *Repository) List(ctx context.Context, action Action, limit int) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
SELECT id, action, actor_id, request_id, object_id, metadata, created_at
FROM audit_logs
WHERE ($1 = '' OR action = $1)
ORDER BY created_at DESC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, query, string(action), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			act     string
			rawMeta []byte
		)
		if err := rows.Scan(&e.ID, &act, &e.ActorID, &e.RequestID, &e.ObjectID, &rawMeta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(act)
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
