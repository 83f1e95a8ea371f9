package request

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/benefits/internal/audit"
	"github.com/abduss/benefits/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	cleanupConcurrency = 4
	cleanupTimeout     = 10 * time.Second
)

type repository interface {
	Create(ctx context.Context, userID, benefitID uuid.UUID) (Request, error)
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Request, error)
	ListAll(ctx context.Context, status Status) ([]Request, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*Request) error) (Request, error)
	DeleteIf(ctx context.Context, id uuid.UUID, check func(Request) error) (Request, error)
	Stats(ctx context.Context) (Stats, error)
}

// BenefitChecker confirms a benefit accepts new requests.
type BenefitChecker interface {
	EnsureActive(ctx context.Context, benefitID uuid.UUID) error
}

// ObjectDeleter removes stored documents.
type ObjectDeleter interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service implements the request lifecycle.
type Service struct {
	repo     repository
	benefits BenefitChecker
	objects  ObjectDeleter
	audit    audit.Recorder
	nowFunc  func() time.Time
}

// NewService wires a request service. recorder may be nil.
func NewService(repo repository, benefits BenefitChecker, objects ObjectDeleter, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		repo:     repo,
		benefits: benefits,
		objects:  objects,
		audit:    recorder,
		nowFunc:  time.Now,
	}
}

// Submit files a pending request for an active benefit.
func (s *Service) Submit(ctx context.Context, actor Actor, benefitID uuid.UUID) (Request, error) {
	if actor.IsAdmin {
		return Request{}, ErrEmployeesOnly
	}
	if err := s.benefits.EnsureActive(ctx, benefitID); err != nil {
		return Request{}, err
	}

	req, err := s.repo.Create(ctx, actor.ID, benefitID)
	if err != nil {
		return Request{}, err
	}

	rid := req.ID
	s.audit.Record(ctx, audit.Event{
		Action:    audit.ActionRequestSubmit,
		ActorID:   actor.ID,
		RequestID: &rid,
		Metadata:  map[string]string{"benefit_id": benefitID.String()},
	})
	return req, nil
}

// Get returns a request visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !req.CanView(actor) {
		return Request{}, ErrForbidden
	}
	return req, nil
}

// ListMine returns the actor's own requests, newest first.
func (s *Service) ListMine(ctx context.Context, actor Actor, limit int) ([]Request, error) {
	return s.repo.ListByUser(ctx, actor.ID, limit)
}

// ListAll returns every request. Administrators only.
func (s *Service) ListAll(ctx context.Context, actor Actor, status Status) ([]Request, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidReview, status)
	}
	return s.repo.ListAll(ctx, status)
}

// Stats counts requests per status. Administrators only.
func (s *Service) Stats(ctx context.Context, actor Actor) (Stats, error) {
	if !actor.IsAdmin {
		return Stats{}, ErrForbidden
	}
	return s.repo.Stats(ctx)
}

// Review records an administrator decision. The first transition away from
// pending stamps ProcessedAt.
func (s *Service) Review(ctx context.Context, actor Actor, id uuid.UUID, input ReviewInput) (Request, error) {
	if !actor.IsAdmin {
		return Request{}, ErrForbidden
	}
	if !input.Status.Valid() {
		return Request{}, fmt.Errorf("%w: unknown status %q", ErrInvalidReview, input.Status)
	}
	reason := strings.TrimSpace(input.RejectionReason)
	if input.Status == StatusRejected && reason == "" {
		return Request{}, fmt.Errorf("%w: rejection reason required", ErrInvalidReview)
	}

	now := s.nowFunc().UTC()
	updated, err := s.repo.Mutate(ctx, id, func(req *Request) error {
		if req.Status == StatusPending && input.Status != StatusPending && req.ProcessedAt == nil {
			req.ProcessedAt = &now
		}
		req.Status = input.Status
		req.LastReviewDate = &now
		if input.Status == StatusRejected {
			req.RejectionReason = &reason
		} else {
			req.RejectionReason = nil
		}
		comment := ReviewComment{
			Text:           strings.TrimSpace(input.Comment),
			ReviewedBy:     actor.ID,
			StatusAtReview: input.Status,
			CreatedAt:      now,
		}
		if input.Status == StatusRejected {
			comment.RejectionReason = reason
		}
		req.Comments = append(req.Comments, comment)
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	rid := updated.ID
	s.audit.Record(ctx, audit.Event{
		Action:    reviewAction(input.Status),
		ActorID:   actor.ID,
		RequestID: &rid,
		Metadata:  map[string]string{"status": string(input.Status)},
	})
	return updated, nil
}

func reviewAction(status Status) audit.Action {
	switch status {
	case StatusApproved:
		return audit.ActionApprove
	case StatusRejected:
		return audit.ActionReject
	case StatusNeedsRevision:
		return audit.ActionNeedsRevision
	default:
		return audit.ActionOverride
	}
}

// Cancel deletes a pending request owned by actor, then removes every stored
// document it referenced. Document cleanup failures are logged only.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) error {
	deleted, err := s.repo.DeleteIf(ctx, id, func(req Request) error {
		if req.UserID != actor.ID {
			return ErrForbidden
		}
		if req.Status != StatusPending {
			return ErrNotEditable
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteObjects(ctx, deleted)

	rid := deleted.ID
	s.audit.Record(ctx, audit.Event{
		Action:    audit.ActionRequestCancel,
		ActorID:   actor.ID,
		RequestID: &rid,
	})
	return nil
}

func (s *Service) deleteObjects(ctx context.Context, req Request) {
	if s.objects == nil || len(req.Documents) == 0 {
		return
	}
	log := logger.FromContext(ctx)

	// The request row is already gone; finish cleanup even if the caller left.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(cleanupConcurrency)
	for _, objectID := range req.ObjectIDs() {
		g.Go(func() error {
			if err := s.objects.Delete(cleanupCtx, objectID); err != nil {
				log.Warn("document cleanup after cancel failed",
					zap.String("request_id", req.ID.String()),
					zap.String("object_id", objectID.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
