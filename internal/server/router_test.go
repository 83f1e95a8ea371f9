package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/abduss/benefits/internal/auth"
	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/config"
	"github.com/abduss/benefits/internal/document"
	"github.com/abduss/benefits/internal/request"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Metrics: config.MetricsConfig{PrometheusPath: "/metrics"},
		MinIO:   config.MinIOConfig{Bucket: "benefit-documents"},
		Auth: config.AuthConfig{
			AccessTokenSecret:  "access-secret",
			RefreshTokenSecret: "refresh-secret",
			AccessTokenTTL:     time.Minute,
			RefreshTokenTTL:    time.Hour,
			BcryptCost:         4,
		},
		Upload: config.UploadConfig{
			MaxFileSize:      10 << 20,
			MaxFiles:         5,
			AllowedTypes:     []string{"image/jpeg", "image/png", "application/pdf"},
			MaxAttempts:      3,
			BaseTimeout:      2 * time.Second,
			PerMBIncrement:   time.Second,
			AttemptIncrement: 100 * time.Millisecond,
			AttemptCap:       time.Second,
			BackoffBase:      10 * time.Millisecond,
		},
		ChunkStore: config.ChunkStoreConfig{Backend: "memory"},
	}
}

func TestHealthRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pinger := &fakePinger{}
	buckets := &fakeBuckets{exists: true}
	router := NewRouter(Dependencies{Config: testConfig(), DB: pinger, ObjectStore: buckets})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	pinger.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")

	pinger.err = nil
	buckets.exists = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "minio")
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(Dependencies{Config: testConfig()})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "benefits_http_requests_total")
}

func TestDocumentRoutesEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	authService := auth.NewService(newUserStore(), cfg.Auth)

	store, err := chunkstore.New(chunkstore.NewMemoryBackend())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	requests := newRequestStore()
	binder := document.NewBinder(requests, store, nil, nil)
	router := NewRouter(Dependencies{
		Config:      cfg,
		AuthService: authService,
		Documents: DocumentServices{
			Supervisor: document.NewSupervisor(binder, store, document.PolicyFromConfig(cfg.Upload), nil),
			Binder:     binder,
			Gateway:    document.NewGateway(requests, store, nil),
		},
	})

	employee, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:      "ada@example.com",
		Password:   "StrongPass1!",
		FirstName:  "Ada",
		LastName:   "Okafor",
		Department: "hr",
		Rank:       "Officer",
	})
	require.NoError(t, err)
	token := "Bearer " + employee.Tokens.AccessToken

	req := request.Request{
		ID:        uuid.New(),
		UserID:    employee.User.ID,
		Status:    request.StatusPending,
		Documents: []request.DocumentReference{},
	}
	requests.put(req)

	payload := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("benefit "), 4096)...)
	body, contentType := pdfUpload(t, "medical.pdf", payload)

	rec := httptest.NewRecorder()
	upload := httptest.NewRequest(http.MethodPost, "/v1/requests/"+req.ID.String()+"/documents", body)
	upload.Header.Set("Content-Type", contentType)
	router.ServeHTTP(rec, upload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "token is required")

	body, contentType = pdfUpload(t, "medical.pdf", payload)
	rec = httptest.NewRecorder()
	upload = httptest.NewRequest(http.MethodPost, "/v1/requests/"+req.ID.String()+"/documents", body)
	upload.Header.Set("Content-Type", contentType)
	upload.Header.Set("Authorization", token)
	router.ServeHTTP(rec, upload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	docs := requests.get(req.ID).Documents
	require.Len(t, docs, 1)

	rec = httptest.NewRecorder()
	download := httptest.NewRequest(http.MethodGet, "/v1/documents/"+docs[0].ID.String(), nil)
	download.Header.Set("Authorization", token)
	router.ServeHTTP(rec, download)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	missing := httptest.NewRequest(http.MethodGet, "/v1/documents/"+uuid.NewString(), nil)
	missing.Header.Set("Authorization", token)
	router.ServeHTTP(rec, missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func pdfUpload(t *testing.T, name string, payload []byte) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+document.FormField+`"; filename="`+name+`"`)
	header.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

// --- fakes ----

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

type fakeBuckets struct {
	exists bool
}

func (f *fakeBuckets) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return f.exists, nil
}

type userStore struct {
	mu    sync.Mutex
	users map[string]auth.User
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]auth.User)}
}

func (s *userStore) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return auth.User{}, auth.ErrEmailAlreadyExists
	}
	user.ID = uuid.New()
	s.users[user.Email] = user
	return user, nil
}

func (s *userStore) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

func (s *userStore) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return nil
}

func (s *userStore) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (auth.User, error) {
	return auth.User{}, auth.ErrInvalidRefreshToken
}

type requestStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]request.Request
}

func newRequestStore() *requestStore {
	return &requestStore{requests: make(map[uuid.UUID]request.Request)}
}

func (s *requestStore) put(req request.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
}

func (s *requestStore) get(id uuid.UUID) request.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *requestStore) Get(ctx context.Context, id uuid.UUID) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, request.ErrRequestNotFound
	}
	return req, nil
}

func (s *requestStore) FindByDocument(ctx context.Context, objectID uuid.UUID) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if _, ok := req.Document(objectID); ok {
			return req, nil
		}
	}
	return request.Request{}, request.ErrRequestNotFound
}

func (s *requestStore) Mutate(ctx context.Context, id uuid.UUID, fn func(*request.Request) error) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, request.ErrRequestNotFound
	}
	req.Documents = append([]request.DocumentReference(nil), req.Documents...)
	if err := fn(&req); err != nil {
		return request.Request{}, err
	}
	req.Version++
	s.requests[id] = req
	return req, nil
}
