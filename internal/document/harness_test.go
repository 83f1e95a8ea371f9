package document

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/request"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 64 * 1024

func testPolicy() Policy {
	return Policy{
		MaxFileSize:      10 * mib,
		MaxFiles:         5,
		AllowedTypes:     []string{"image/jpeg", "image/png", "application/pdf"},
		MaxAttempts:      3,
		BaseTimeout:      250 * time.Millisecond,
		PerMBIncrement:   50 * time.Millisecond,
		AttemptIncrement: 10 * time.Millisecond,
		AttemptCap:       30 * time.Millisecond,
		BackoffBase:      5 * time.Millisecond,
	}
}

type harness struct {
	backend    *faultyBackend
	store      *chunkstore.Store
	requests   *fakeRequests
	binder     *Binder
	supervisor *Supervisor
	gateway    *Gateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := newFaultyBackend()
	store, err := chunkstore.New(backend, chunkstore.WithChunkSize(testChunkSize))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	requests := newFakeRequests()
	binder := NewBinder(requests, store, nil, nil)
	return &harness{
		backend:    backend,
		store:      store,
		requests:   requests,
		binder:     binder,
		supervisor: NewSupervisor(binder, store, testPolicy(), nil),
		gateway:    NewGateway(requests, store, nil),
	}
}

// pendingRequest seeds a pending request owned by a fresh employee.
func (h *harness) pendingRequest() (request.Request, request.Actor) {
	owner := request.Actor{ID: uuid.New()}
	req := request.Request{
		ID:        uuid.New(),
		UserID:    owner.ID,
		BenefitID: uuid.New(),
		Status:    request.StatusPending,
		Documents: []request.DocumentReference{},
	}
	h.requests.put(req)
	return req, owner
}

func randomPayload(t *testing.T, prefix string, size int) []byte {
	t.Helper()
	buf := make([]byte, size)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	copy(buf, prefix)
	return buf
}

func pdfFile(t *testing.T, name string, size int) (FileInput, []byte) {
	t.Helper()
	payload := randomPayload(t, "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n", size)
	return memoryFile(name, "application/pdf", payload), payload
}

func pngFile(t *testing.T, name string, size int) (FileInput, []byte) {
	t.Helper()
	payload := randomPayload(t, "\x89PNG\r\n\x1a\n", size)
	return memoryFile(name, "image/png", payload), payload
}

func memoryFile(name, contentType string, payload []byte) FileInput {
	return FileInput{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(payload)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
	}
}

// --- fakes ----

type faultMode int

const (
	faultHang faultMode = iota
	faultReset
)

type fault struct {
	mode      faultMode
	remaining int
}

// faultyBackend injects failures into chosen files' upload attempts. A fault
// is consumed per object, so one fault spoils exactly one attempt.
type faultyBackend struct {
	*chunkstore.MemoryBackend

	mu      sync.Mutex
	faults  map[string]*fault
	tainted map[uuid.UUID]faultMode
	inserts map[string]int
	onHang  func()
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{
		MemoryBackend: chunkstore.NewMemoryBackend(),
		faults:        make(map[string]*fault),
		tainted:       make(map[uuid.UUID]faultMode),
		inserts:       make(map[string]int),
	}
}

func (f *faultyBackend) failAttempts(filename string, mode faultMode, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[filename] = &fault{mode: mode, remaining: n}
}

func (f *faultyBackend) attempts(filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts[filename]
}

func (f *faultyBackend) InsertObject(ctx context.Context, obj chunkstore.Object) error {
	f.mu.Lock()
	f.inserts[obj.Filename]++
	if flt, ok := f.faults[obj.Filename]; ok && flt.remaining > 0 {
		flt.remaining--
		f.tainted[obj.ID] = flt.mode
	}
	f.mu.Unlock()
	return f.MemoryBackend.InsertObject(ctx, obj)
}

func (f *faultyBackend) PutChunk(ctx context.Context, chunk chunkstore.Chunk) error {
	f.mu.Lock()
	mode, bad := f.tainted[chunk.ObjectID]
	onHang := f.onHang
	f.mu.Unlock()

	if !bad {
		return f.MemoryBackend.PutChunk(ctx, chunk)
	}
	if mode == faultReset {
		return errors.New("connection reset by peer")
	}
	if onHang != nil {
		onHang()
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]request.Request
	mutateFn func() error
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: make(map[uuid.UUID]request.Request)}
}

func (f *fakeRequests) put(req request.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[req.ID] = req
}

func (f *fakeRequests) get(id uuid.UUID) request.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id]
}

func (f *fakeRequests) Get(ctx context.Context, id uuid.UUID) (request.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return request.Request{}, request.ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRequests) FindByDocument(ctx context.Context, objectID uuid.UUID) (request.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if _, ok := req.Document(objectID); ok {
			return req, nil
		}
	}
	return request.Request{}, request.ErrRequestNotFound
}

func (f *fakeRequests) Mutate(ctx context.Context, id uuid.UUID, fn func(*request.Request) error) (request.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateFn != nil {
		if err := f.mutateFn(); err != nil {
			return request.Request{}, err
		}
	}
	req, ok := f.requests[id]
	if !ok {
		return request.Request{}, request.ErrRequestNotFound
	}
	req.Documents = append([]request.DocumentReference(nil), req.Documents...)
	if err := fn(&req); err != nil {
		return request.Request{}, err
	}
	req.Version++
	req.UpdatedAt = time.Now().UTC()
	f.requests[id] = req
	return req, nil
}
