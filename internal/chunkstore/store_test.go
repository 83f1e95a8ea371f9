package chunkstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, backend Backend, opts ...Option) *Store {
	t.Helper()
	store, err := New(backend, opts...)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

func writeObject(t *testing.T, store *Store, payload []byte) Object {
	t.Helper()
	ctx := context.Background()

	h, err := store.Create(ctx, "scan.pdf", "application/pdf", Metadata{
		RequestID:  uuid.New(),
		UploaderID: uuid.New(),
		SizeBytes:  int64(len(payload)),
		MimeType:   "application/pdf",
	})
	require.NoError(t, err)

	w, err := store.OpenWriter(ctx, h)
	require.NoError(t, err)
	_, err = io.Copy(w, bytes.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	obj, err := store.Finalize(ctx, h)
	require.NoError(t, err)
	return obj
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		compression Compression
		size        int
	}{
		{name: "empty chunk remainder", compression: CompressionNone, size: 4096},
		{name: "multi chunk raw", compression: CompressionNone, size: 10*1024 + 17},
		{name: "multi chunk zstd", compression: CompressionZstd, size: 10*1024 + 17},
		{name: "single byte", compression: CompressionZstd, size: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestStore(t, NewMemoryBackend(), WithChunkSize(1024), WithCompression(tc.compression))
			payload := randomBytes(t, tc.size)

			obj := writeObject(t, store, payload)
			assert.True(t, obj.Finalized())
			assert.Equal(t, int64(tc.size), obj.Length)
			assert.Equal(t, (tc.size+1023)/1024, obj.ChunkCount)
			assert.NotEmpty(t, obj.Checksum)

			r, err := store.Open(context.Background(), obj.ID)
			require.NoError(t, err)
			defer r.Close()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestFinalizeRejectsLengthMismatch(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend, WithChunkSize(1024))
	ctx := context.Background()

	h, err := store.Create(ctx, "a.png", "image/png", Metadata{SizeBytes: 2048})
	require.NoError(t, err)
	w, err := store.OpenWriter(ctx, h)
	require.NoError(t, err)
	_, err = w.Write(randomBytes(t, 1500))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = store.Finalize(ctx, h)
	require.ErrorIs(t, err, ErrIncompleteWrite)

	_, err = store.Open(ctx, h.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, backend.OpenCount())
}

func TestFinalizeRequiresClosedWriter(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	h, err := store.Create(ctx, "a.png", "image/png", Metadata{SizeBytes: 3})
	require.NoError(t, err)
	w, err := store.OpenWriter(ctx, h)
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)

	_, err = store.Finalize(ctx, h)
	require.ErrorIs(t, err, ErrIncompleteWrite)
}

func TestWriteOnce(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	h, err := store.Create(ctx, "a.png", "image/png", Metadata{SizeBytes: 3})
	require.NoError(t, err)
	w, err := store.OpenWriter(ctx, h)
	require.NoError(t, err)

	_, err = store.OpenWriter(ctx, h)
	require.ErrorIs(t, err, ErrWriterOpened)

	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("more"))
	require.ErrorIs(t, err, ErrClosed)

	_, err = store.Finalize(ctx, h)
	require.NoError(t, err)
	_, err = store.Finalize(ctx, h)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	_, err = store.OpenWriter(ctx, h)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestDeleteIsIdempotentWithNotFound(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	obj := writeObject(t, store, []byte("payload"))
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, obj.ID))
	require.ErrorIs(t, store.Delete(ctx, obj.ID), ErrNotFound)

	exists, err := store.Exists(ctx, obj.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, backend.Len())
}

func TestStatHidesOpenObjects(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ctx := context.Background()

	h, err := store.Create(ctx, "a.png", "image/png", Metadata{SizeBytes: 1})
	require.NoError(t, err)

	_, err = store.Stat(ctx, h.ID())
	require.ErrorIs(t, err, ErrNotFound)
	exists, err := store.Exists(ctx, h.ID())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReaderDetectsCorruptChunk(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend, WithChunkSize(1024))
	obj := writeObject(t, store, randomBytes(t, 2000))

	backend.mu.Lock()
	c := backend.chunks[obj.ID][1]
	c.Data[0] ^= 0xff
	backend.chunks[obj.ID][1] = c
	backend.mu.Unlock()

	r, err := store.Open(context.Background(), obj.ID)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestWriterHonorsCancellation(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend(), WithChunkSize(1024))
	ctx, cancel := context.WithCancel(context.Background())

	h, err := store.Create(ctx, "a.png", "image/png", Metadata{SizeBytes: 4096})
	require.NoError(t, err)
	w, err := store.OpenWriter(ctx, h)
	require.NoError(t, err)

	_, err = w.Write(randomBytes(t, 1024))
	require.NoError(t, err)
	cancel()
	_, err = w.Write(randomBytes(t, 1024))
	require.ErrorIs(t, err, context.Canceled)
	require.Error(t, w.Close())

	_, err = store.Finalize(context.Background(), h)
	require.ErrorIs(t, err, ErrIncompleteWrite)
}

func TestSweepOrphans(t *testing.T) {
	backend := NewMemoryBackend()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newTestStore(t, backend, WithClock(clock))
	ctx := context.Background()

	_, err := store.Create(ctx, "stale.png", "image/png", Metadata{SizeBytes: 10})
	require.NoError(t, err)
	kept := writeObject(t, store, []byte("finalized"))

	now = now.Add(2 * time.Hour)
	_, err = store.Create(ctx, "fresh.png", "image/png", Metadata{SizeBytes: 10})
	require.NoError(t, err)

	removed, err := store.SweepOrphans(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, backend.Len())

	exists, err := store.Exists(ctx, kept.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewRejectsUnknownCompression(t *testing.T) {
	_, err := New(NewMemoryBackend(), WithCompression("lz4"))
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}
