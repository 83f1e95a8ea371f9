package chunkstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data []byte
	meta map[string]string
}

type fakeObjectClient struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	putErr  error
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objects: make(map[string]fakeObject)}
}

func noSuchKey() error {
	return minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
}

func (f *fakeObjectClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	// MinIO canonicalizes user metadata keys.
	meta := make(map[string]string, len(opts.UserMetadata))
	for k, v := range opts.UserMetadata {
		meta["X-Amz-Meta-"+k] = v
	}
	f.objects[objectName] = fakeObject{data: data, meta: meta}
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: int64(len(data))}, nil
}

func (f *fakeObjectClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectName]
	if !ok {
		return nil, noSuchKey()
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeObjectClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectName]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey()
	}
	return minio.ObjectInfo{Key: objectName, Size: int64(len(obj.data)), UserMetadata: obj.meta}, nil
}

func (f *fakeObjectClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

func (f *fakeObjectClient) ListObjectNames(ctx context.Context, bucketName, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeObjectClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func TestMinIOBackendRoundTrip(t *testing.T) {
	client := newFakeObjectClient()
	store := newTestStore(t, NewMinIOBackend(client, "benefit-documents"), WithChunkSize(1024), WithCompression(CompressionZstd))
	payload := randomBytes(t, 3000)

	obj := writeObject(t, store, payload)
	assert.Equal(t, 3, obj.ChunkCount)
	// three chunks plus the manifest
	assert.Equal(t, 4, client.count())

	r, err := store.Open(context.Background(), obj.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.Delete(context.Background(), obj.ID))
	assert.Zero(t, client.count())
	require.ErrorIs(t, store.Delete(context.Background(), obj.ID), ErrNotFound)
}

func TestMinIOBackendRejectsChunkAfterFinalize(t *testing.T) {
	client := newFakeObjectClient()
	backend := NewMinIOBackend(client, "benefit-documents")
	store := newTestStore(t, backend)
	obj := writeObject(t, store, []byte("sealed"))

	err := backend.PutChunk(context.Background(), Chunk{ObjectID: obj.ID, Seq: 1, Size: 1, Data: []byte("x")})
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestMinIOBackendListOpen(t *testing.T) {
	client := newFakeObjectClient()
	backend := NewMinIOBackend(client, "benefit-documents")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, backend, WithClock(func() time.Time { return now }))

	h, err := store.Create(context.Background(), "stale.pdf", "application/pdf", Metadata{SizeBytes: 5})
	require.NoError(t, err)
	writeObject(t, store, []byte("done"))

	ids, err := backend.ListOpen(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, h.ID(), ids[0])
}
