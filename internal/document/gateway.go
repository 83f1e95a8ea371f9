package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/request"
	"github.com/google/uuid"
)

// Download is an authorized, open stream over a finalized object.
type Download struct {
	Body      *chunkstore.Reader
	Object    chunkstore.Object
	Reference request.DocumentReference
}

// Name is the filename presented to the client.
func (d Download) Name() string {
	if d.Reference.OriginalName != "" {
		return d.Reference.OriginalName
	}
	return d.Object.Filename
}

// Status describes an object and its request linkage.
type Status struct {
	ObjectID  uuid.UUID     `json:"object_id"`
	Exists    bool          `json:"exists"`
	Finalized bool          `json:"finalized"`
	InRequest bool          `json:"in_request"`
	CanAccess bool          `json:"can_access"`
	File      *StatusFile   `json:"file,omitempty"`
	Request   *StatusParent `json:"request,omitempty"`
}

// StatusFile is the object part of Status.
type StatusFile struct {
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadDate  time.Time `json:"upload_date"`
}

// StatusParent is the request part of Status.
type StatusParent struct {
	ID     uuid.UUID      `json:"id"`
	Status request.Status `json:"status"`
	UserID uuid.UUID      `json:"user_id"`
}

// Gateway authorizes and streams stored documents.
type Gateway struct {
	requests RequestStore
	objects  ObjectStore
	metrics  *Metrics
}

// NewGateway constructs a Gateway.
func NewGateway(requests RequestStore, objects ObjectStore, metrics *Metrics) *Gateway {
	return &Gateway{requests: requests, objects: objects, metrics: metrics}
}

// Open resolves objectID to a finalized object referenced by a request the
// actor may view. Nothing is streamed until every check has passed.
func (g *Gateway) Open(ctx context.Context, objectID uuid.UUID, actor request.Actor) (Download, error) {
	obj, err := g.objects.Stat(ctx, objectID)
	if err != nil {
		return Download{}, translateObjectError(err)
	}

	req, err := g.requests.FindByDocument(ctx, objectID)
	if err != nil {
		return Download{}, translateRequestError(err)
	}
	if !req.CanView(actor) {
		return Download{}, ErrForbidden
	}
	ref, _ := req.Document(objectID)

	body, err := g.objects.Open(ctx, objectID)
	if err != nil {
		return Download{}, translateObjectError(err)
	}
	return Download{Body: body, Object: obj, Reference: ref}, nil
}

// Status reports whether objectID exists and who may read it. Object details
// are only included for callers allowed to access it.
func (g *Gateway) Status(ctx context.Context, objectID uuid.UUID, actor request.Actor) (Status, error) {
	st := Status{ObjectID: objectID}
	obj, err := g.objects.Stat(ctx, objectID)
	if errors.Is(err, chunkstore.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("stat object: %w", err)
	}
	st.Exists = true
	st.Finalized = obj.Finalized()

	req, err := g.requests.FindByDocument(ctx, objectID)
	switch {
	case errors.Is(err, request.ErrRequestNotFound):
		st.CanAccess = actor.IsAdmin
	case err != nil:
		return Status{}, fmt.Errorf("find request: %w", err)
	default:
		st.InRequest = true
		st.CanAccess = req.CanView(actor)
		if st.CanAccess {
			st.Request = &StatusParent{ID: req.ID, Status: req.Status, UserID: req.UserID}
		}
	}

	if st.CanAccess {
		uploaded := obj.CreatedAt
		if obj.FinalizedAt != nil {
			uploaded = *obj.FinalizedAt
		}
		st.File = &StatusFile{
			Filename:    obj.Filename,
			Size:        obj.Length,
			ContentType: obj.ContentType,
			UploadDate:  uploaded,
		}
	}
	return st, nil
}

func translateObjectError(err error) error {
	if errors.Is(err, chunkstore.ErrNotFound) {
		return fmt.Errorf("%w: object", ErrNotFound)
	}
	return err
}
