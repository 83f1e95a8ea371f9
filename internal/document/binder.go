package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/benefits/internal/audit"
	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/logger"
	"github.com/abduss/benefits/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const cleanupTimeout = 10 * time.Second

// RequestStore is the slice of the request repository the document layer needs.
type RequestStore interface {
	Get(ctx context.Context, id uuid.UUID) (request.Request, error)
	FindByDocument(ctx context.Context, objectID uuid.UUID) (request.Request, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*request.Request) error) (request.Request, error)
}

// ObjectStore is the chunk store surface used by uploads, downloads and detach.
type ObjectStore interface {
	Create(ctx context.Context, filename, contentType string, meta chunkstore.Metadata) (*chunkstore.Handle, error)
	OpenWriter(ctx context.Context, h *chunkstore.Handle) (*chunkstore.Writer, error)
	Finalize(ctx context.Context, h *chunkstore.Handle) (chunkstore.Object, error)
	Open(ctx context.Context, id uuid.UUID) (*chunkstore.Reader, error)
	Stat(ctx context.Context, id uuid.UUID) (chunkstore.Object, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Binder links stored objects to requests. Every list change runs inside a
// row-locked read-modify-write on the request.
type Binder struct {
	requests RequestStore
	objects  ObjectStore
	audit    audit.Recorder
	metrics  *Metrics
}

// NewBinder constructs a Binder. A nil recorder discards audit events.
func NewBinder(requests RequestStore, objects ObjectStore, recorder audit.Recorder, metrics *Metrics) *Binder {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Binder{requests: requests, objects: objects, audit: recorder, metrics: metrics}
}

// CheckEditable reads the request fresh and evaluates the mutation precondition.
func (b *Binder) CheckEditable(ctx context.Context, requestID uuid.UUID, actor request.Actor) (request.Request, error) {
	req, err := b.requests.Get(ctx, requestID)
	if err != nil {
		return request.Request{}, translateRequestError(err)
	}
	if err := req.CheckEditable(actor); err != nil {
		return request.Request{}, translateRequestError(err)
	}
	return req, nil
}

// Attach appends refs to the request. Every ref must point at a finalized object.
func (b *Binder) Attach(ctx context.Context, requestID uuid.UUID, actor request.Actor, refs []request.DocumentReference) (request.Request, error) {
	if len(refs) == 0 {
		return request.Request{}, fmt.Errorf("%w: no documents to attach", ErrValidation)
	}
	for _, ref := range refs {
		ok, err := b.objects.Exists(ctx, ref.ID)
		if err != nil {
			return request.Request{}, fmt.Errorf("check object %s: %w", ref.ID, err)
		}
		if !ok {
			return request.Request{}, fmt.Errorf("%w: object %s", ErrNotFound, ref.ID)
		}
	}

	updated, err := b.requests.Mutate(ctx, requestID, func(req *request.Request) error {
		if err := req.CheckEditable(actor); err != nil {
			return err
		}
		req.Documents = append(req.Documents, refs...)
		return nil
	})
	if err != nil {
		return request.Request{}, translateRequestError(err)
	}

	for _, ref := range refs {
		objectID := ref.ID
		b.audit.Record(ctx, audit.Event{
			Action:    audit.ActionDocumentUpload,
			ActorID:   actor.ID,
			RequestID: &requestID,
			ObjectID:  &objectID,
			Metadata:  map[string]string{"original_name": ref.OriginalName},
		})
	}
	return updated, nil
}

// Detach removes the reference first and then deletes the backing object.
// A failed object delete is logged; the reference stays removed.
func (b *Binder) Detach(ctx context.Context, requestID, objectID uuid.UUID, actor request.Actor) error {
	_, err := b.requests.Mutate(ctx, requestID, func(req *request.Request) error {
		if err := req.CheckEditable(actor); err != nil {
			return err
		}
		if !req.RemoveDocument(objectID) {
			return request.ErrDocumentNotFound
		}
		return nil
	})
	if err != nil {
		return translateRequestError(err)
	}

	b.audit.Record(ctx, audit.Event{
		Action:    audit.ActionDocumentDelete,
		ActorID:   actor.ID,
		RequestID: &requestID,
		ObjectID:  &objectID,
	})
	b.removeObject(ctx, objectID)
	return nil
}

// removeObject deletes a stored object after the caller has committed its
// decision, so it outlives a cancelled request context.
func (b *Binder) removeObject(ctx context.Context, objectID uuid.UUID) {
	log := logger.FromContext(ctx).With(zap.String("object_id", objectID.String()))
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := b.objects.Delete(cleanupCtx, objectID)
	switch {
	case err == nil:
	case errors.Is(err, chunkstore.ErrNotFound):
		log.Warn("stored object already gone")
	default:
		b.metrics.orphanFailure()
		log.Warn("stored object delete failed", zap.Error(fmt.Errorf("%w: %v", ErrOrphanCleanup, err)))
	}
}

func translateRequestError(err error) error {
	switch {
	case errors.Is(err, request.ErrRequestNotFound):
		return fmt.Errorf("%w: request", ErrNotFound)
	case errors.Is(err, request.ErrDocumentNotFound):
		return fmt.Errorf("%w: reference", ErrNotFound)
	case errors.Is(err, request.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, request.ErrNotEditable):
		return ErrRequestNotEditable
	default:
		return err
	}
}
