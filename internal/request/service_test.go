package request

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abduss/benefits/internal/audit"
	"github.com/abduss/benefits/internal/benefit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesPendingRequest(t *testing.T) {
	repo := newFakeRepo()
	recorder := &fakeRecorder{}
	service := NewService(repo, fakeBenefits{}, nil, recorder)
	employee := Actor{ID: uuid.New()}

	req, err := service.Submit(context.Background(), employee, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, employee.ID, req.UserID)
	assert.Equal(t, []audit.Action{audit.ActionRequestSubmit}, recorder.actions())
}

func TestSubmitRejections(t *testing.T) {
	inactive := uuid.New()
	service := NewService(newFakeRepo(), fakeBenefits{inactive: inactive}, nil, nil)

	_, err := service.Submit(context.Background(), Actor{ID: uuid.New(), IsAdmin: true}, uuid.New())
	require.ErrorIs(t, err, ErrEmployeesOnly)

	_, err = service.Submit(context.Background(), Actor{ID: uuid.New()}, inactive)
	require.ErrorIs(t, err, benefit.ErrBenefitInactive)

	employee := Actor{ID: uuid.New()}
	benefitID := uuid.New()
	_, err = service.Submit(context.Background(), employee, benefitID)
	require.NoError(t, err)
	_, err = service.Submit(context.Background(), employee, benefitID)
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestGetEnforcesOwnership(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, fakeBenefits{}, nil, nil)
	owner := Actor{ID: uuid.New()}
	req, err := service.Submit(context.Background(), owner, uuid.New())
	require.NoError(t, err)

	_, err = service.Get(context.Background(), Actor{ID: uuid.New()}, req.ID)
	require.ErrorIs(t, err, ErrForbidden)

	got, err := service.Get(context.Background(), Actor{ID: uuid.New(), IsAdmin: true}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	_, err = service.Get(context.Background(), owner, uuid.New())
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestReviewStampsProcessedAtOnce(t *testing.T) {
	repo := newFakeRepo()
	recorder := &fakeRecorder{}
	service := NewService(repo, fakeBenefits{}, nil, recorder)
	first := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	service.nowFunc = func() time.Time { return first }

	req, err := service.Submit(context.Background(), Actor{ID: uuid.New()}, uuid.New())
	require.NoError(t, err)
	admin := Actor{ID: uuid.New(), IsAdmin: true}

	reviewed, err := service.Review(context.Background(), admin, req.ID, ReviewInput{Status: StatusNeedsRevision, Comment: "add receipt"})
	require.NoError(t, err)
	require.NotNil(t, reviewed.ProcessedAt)
	assert.Equal(t, first, *reviewed.ProcessedAt)
	require.Len(t, reviewed.Comments, 1)
	assert.Equal(t, StatusNeedsRevision, reviewed.Comments[0].StatusAtReview)

	service.nowFunc = func() time.Time { return first.Add(time.Hour) }
	rejected, err := service.Review(context.Background(), admin, req.ID, ReviewInput{Status: StatusRejected, RejectionReason: "ineligible"})
	require.NoError(t, err)
	assert.Equal(t, first, *rejected.ProcessedAt)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "ineligible", *rejected.RejectionReason)
	assert.Equal(t, first.Add(time.Hour), *rejected.LastReviewDate)

	approved, err := service.Review(context.Background(), admin, req.ID, ReviewInput{Status: StatusApproved})
	require.NoError(t, err)
	assert.Nil(t, approved.RejectionReason)
	assert.Len(t, approved.Comments, 3)
	assert.Equal(t, int64(3), approved.Version)

	assert.Equal(t, []audit.Action{
		audit.ActionRequestSubmit,
		audit.ActionNeedsRevision,
		audit.ActionReject,
		audit.ActionApprove,
	}, recorder.actions())
}

func TestReviewValidation(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, fakeBenefits{}, nil, nil)
	req, err := service.Submit(context.Background(), Actor{ID: uuid.New()}, uuid.New())
	require.NoError(t, err)
	admin := Actor{ID: uuid.New(), IsAdmin: true}

	_, err = service.Review(context.Background(), Actor{ID: uuid.New()}, req.ID, ReviewInput{Status: StatusApproved})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = service.Review(context.Background(), admin, req.ID, ReviewInput{Status: "archived"})
	require.ErrorIs(t, err, ErrInvalidReview)
	_, err = service.Review(context.Background(), admin, req.ID, ReviewInput{Status: StatusRejected, RejectionReason: "  "})
	require.ErrorIs(t, err, ErrInvalidReview)
}

func TestCancelDeletesRequestAndDocuments(t *testing.T) {
	repo := newFakeRepo()
	deleter := &fakeDeleter{fail: map[uuid.UUID]error{}}
	service := NewService(repo, fakeBenefits{}, deleter, nil)
	owner := Actor{ID: uuid.New()}

	req, err := service.Submit(context.Background(), owner, uuid.New())
	require.NoError(t, err)
	docs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	deleter.fail[docs[1]] = errors.New("storage offline")
	_, err = repo.Mutate(context.Background(), req.ID, func(r *Request) error {
		for _, id := range docs {
			r.Documents = append(r.Documents, DocumentReference{ID: id})
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, service.Cancel(context.Background(), owner, req.ID))

	_, err = repo.Get(context.Background(), req.ID)
	require.ErrorIs(t, err, ErrRequestNotFound)
	assert.ElementsMatch(t, docs, deleter.calls())
}

func TestCancelCleanupOutlivesCaller(t *testing.T) {
	repo := newFakeRepo()
	deleter := &fakeDeleter{}
	service := NewService(repo, fakeBenefits{}, deleter, nil)
	owner := Actor{ID: uuid.New()}

	req, err := service.Submit(context.Background(), owner, uuid.New())
	require.NoError(t, err)
	docs := []uuid.UUID{uuid.New(), uuid.New()}
	_, err = repo.Mutate(context.Background(), req.ID, func(r *Request) error {
		for _, id := range docs {
			r.Documents = append(r.Documents, DocumentReference{ID: id})
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, service.Cancel(ctx, owner, req.ID))

	_, err = repo.Get(context.Background(), req.ID)
	require.ErrorIs(t, err, ErrRequestNotFound)
	assert.ElementsMatch(t, docs, deleter.calls())
}

func TestCancelPreconditions(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, fakeBenefits{}, &fakeDeleter{}, nil)
	owner := Actor{ID: uuid.New()}
	req, err := service.Submit(context.Background(), owner, uuid.New())
	require.NoError(t, err)

	require.ErrorIs(t, service.Cancel(context.Background(), Actor{ID: uuid.New()}, req.ID), ErrForbidden)

	_, err = service.Review(context.Background(), Actor{ID: uuid.New(), IsAdmin: true}, req.ID, ReviewInput{Status: StatusApproved})
	require.NoError(t, err)
	require.ErrorIs(t, service.Cancel(context.Background(), owner, req.ID), ErrNotEditable)
}

func TestCheckEditable(t *testing.T) {
	owner := uuid.New()
	cases := []struct {
		name   string
		status Status
		actor  Actor
		want   error
	}{
		{name: "owner pending", status: StatusPending, actor: Actor{ID: owner}},
		{name: "owner approved", status: StatusApproved, actor: Actor{ID: owner}, want: ErrNotEditable},
		{name: "stranger pending", status: StatusPending, actor: Actor{ID: uuid.New()}, want: ErrForbidden},
		{name: "admin override", status: StatusRejected, actor: Actor{ID: uuid.New(), IsAdmin: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Request{UserID: owner, Status: tc.status}.CheckEditable(tc.actor)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRemoveDocument(t *testing.T) {
	keep, drop := uuid.New(), uuid.New()
	req := Request{Documents: []DocumentReference{{ID: keep}, {ID: drop}}}

	assert.True(t, req.RemoveDocument(drop))
	assert.False(t, req.RemoveDocument(drop))
	assert.Equal(t, []uuid.UUID{keep}, req.ObjectIDs())
	_, ok := req.Document(keep)
	assert.True(t, ok)
}

// --- fakes ----

type fakeRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]Request
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: make(map[uuid.UUID]Request)}
}

func (f *fakeRepo) Create(ctx context.Context, userID, benefitID uuid.UUID) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UserID == userID && r.BenefitID == benefitID && (r.Status == StatusPending || r.Status == StatusApproved) {
			return Request{}, ErrDuplicateRequest
		}
	}
	now := time.Now().UTC()
	req := Request{
		ID:          uuid.New(),
		UserID:      userID,
		BenefitID:   benefitID,
		Status:      StatusPending,
		Documents:   []DocumentReference{},
		Comments:    []ReviewComment{},
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeRepo) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAll(ctx context.Context, status Status) ([]Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) Mutate(ctx context.Context, id uuid.UUID, fn func(*Request) error) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	req.Documents = append([]DocumentReference(nil), req.Documents...)
	req.Comments = append([]ReviewComment(nil), req.Comments...)
	if err := fn(&req); err != nil {
		return Request{}, err
	}
	req.Version++
	req.UpdatedAt = time.Now().UTC()
	f.requests[id] = req
	return req, nil
}

func (f *fakeRepo) DeleteIf(ctx context.Context, id uuid.UUID, check func(Request) error) (Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	if err := check(req); err != nil {
		return Request{}, err
	}
	delete(f.requests, id)
	return req, nil
}

func (f *fakeRepo) Stats(ctx context.Context) (Stats, error) {
	return Stats{}, nil
}

type fakeBenefits struct {
	inactive uuid.UUID
}

func (f fakeBenefits) EnsureActive(ctx context.Context, benefitID uuid.UUID) error {
	if benefitID == f.inactive {
		return benefit.ErrBenefitInactive
	}
	return nil
}

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []uuid.UUID
	fail    map[uuid.UUID]error
}

func (f *fakeDeleter) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return f.fail[id]
}

func (f *fakeDeleter) calls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.deleted...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeRecorder) Record(ctx context.Context, event audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) actions() []audit.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Action, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}
