package request

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a benefit request.
type Status string

const (
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusNeedsRevision Status = "needs_revision"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusNeedsRevision:
		return true
	}
	return false
}

// DocumentReference points at one finalized stored object. The object id is
// never rewritten once the reference exists.
type DocumentReference struct {
	ID           uuid.UUID         `json:"id"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	UploadDate   time.Time         `json:"upload_date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ReviewComment records one administrator review.
type ReviewComment struct {
	Text            string    `json:"text"`
	ReviewedBy      uuid.UUID `json:"reviewed_by"`
	StatusAtReview  Status    `json:"status_at_review"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Request is an employee's application for a benefit.
type Request struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	BenefitID       uuid.UUID           `json:"benefit_id"`
	Status          Status              `json:"status"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	Documents       []DocumentReference `json:"documents"`
	Comments        []ReviewComment     `json:"reviewer_comments"`
	Version         int64               `json:"version"`
	RequestedAt     time.Time           `json:"requested_at"`
	LastReviewDate  *time.Time          `json:"last_review_date,omitempty"`
	ProcessedAt     *time.Time          `json:"processed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	ID      uuid.UUID
	IsAdmin bool
}

// CanView reports whether actor may read the request.
func (r Request) CanView(actor Actor) bool {
	return actor.IsAdmin || actor.ID == r.UserID
}

// CheckEditable enforces the document mutation precondition: the owner while
// pending, or an administrator in any state.
func (r Request) CheckEditable(actor Actor) error {
	if !r.CanView(actor) {
		return ErrForbidden
	}
	if r.Status != StatusPending && !actor.IsAdmin {
		return ErrNotEditable
	}
	return nil
}

// Document returns the reference for objectID.
func (r Request) Document(objectID uuid.UUID) (DocumentReference, bool) {
	i := slices.IndexFunc(r.Documents, func(d DocumentReference) bool { return d.ID == objectID })
	if i < 0 {
		return DocumentReference{}, false
	}
	return r.Documents[i], true
}

// RemoveDocument drops the reference for objectID and reports whether it existed.
func (r *Request) RemoveDocument(objectID uuid.UUID) bool {
	before := len(r.Documents)
	r.Documents = slices.DeleteFunc(r.Documents, func(d DocumentReference) bool { return d.ID == objectID })
	return len(r.Documents) != before
}

// ObjectIDs lists the stored objects referenced by the request.
func (r Request) ObjectIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Documents))
	for _, d := range r.Documents {
		ids = append(ids, d.ID)
	}
	return ids
}

// Stats counts requests per status.
type Stats struct {
	Total         int64 `json:"total"`
	Pending       int64 `json:"pending"`
	Approved      int64 `json:"approved"`
	Rejected      int64 `json:"rejected"`
	NeedsRevision int64 `json:"needs_revision"`
}

// ReviewInput carries an administrator's decision.
type ReviewInput struct {
	Status          Status
	Comment         string
	RejectionReason string
}
