// Package chunkstore stores uploaded documents as sequences of fixed-size
// chunks. An object is created open, written exactly once through a Writer,
// and becomes readable only after Finalize has verified its length.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultChunkSize matches the GridFS default of 255 KiB.
const DefaultChunkSize = 255 * 1024

// Backend persists objects and their chunks. Implementations must return
// ErrNotFound for unknown ids and ErrAlreadyFinalized when PutChunk or
// MarkFinalized targets a sealed object.
type Backend interface {
	InsertObject(ctx context.Context, obj Object) error
	PutChunk(ctx context.Context, chunk Chunk) error
	ChunkStats(ctx context.Context, id uuid.UUID) (ChunkStats, error)
	MarkFinalized(ctx context.Context, id uuid.UUID, fin Finalization) (Object, error)
	GetObject(ctx context.Context, id uuid.UUID) (Object, error)
	GetChunk(ctx context.Context, id uuid.UUID, seq int) (Chunk, error)
	DeleteObject(ctx context.Context, id uuid.UUID) error
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

// Store is the chunked object store used by uploads and downloads.
type Store struct {
	backend     Backend
	codec       *codec
	chunkSize   int
	compression Compression
	nowFunc     func() time.Time
	logger      *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithCompression selects the chunk encoding for new objects.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithLogger sets the logger used by background maintenance.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Store over backend.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("chunkstore: nil backend")
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	s := &Store{
		backend:     backend,
		codec:       c,
		chunkSize:   DefaultChunkSize,
		compression: CompressionNone,
		nowFunc:     time.Now,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	switch s.compression {
	case CompressionNone, CompressionZstd:
	default:
		c.close()
		return nil, fmt.Errorf("chunkstore: unknown compression %q", s.compression)
	}
	return s, nil
}

// Close releases codec resources.
func (s *Store) Close() {
	s.codec.close()
}

// ChunkSize reports the chunk size used for new objects.
func (s *Store) ChunkSize() int {
	return s.chunkSize
}

// Handle tracks one open object between Create and Finalize.
type Handle struct {
	mu        sync.Mutex
	object    Object
	opened    bool
	closed    bool
	finalized bool
	written   int64
	checksum  string
}

// ID returns the object id assigned at Create.
func (h *Handle) ID() uuid.UUID {
	return h.object.ID
}

// Object returns a snapshot of the handle's object.
func (h *Handle) Object() Object {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.object
}

func (h *Handle) markClosed(written int64, checksum string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.written = written
	h.checksum = checksum
}

// Create allocates a new open object. No bytes are stored yet.
func (s *Store) Create(ctx context.Context, filename, contentType string, meta Metadata) (*Handle, error) {
	obj := Object{
		ID:          uuid.New(),
		Filename:    filename,
		ContentType: contentType,
		ChunkSize:   s.chunkSize,
		Compression: s.compression,
		Status:      StatusOpen,
		Metadata:    meta,
		CreatedAt:   s.nowFunc().UTC(),
	}
	if err := s.backend.InsertObject(ctx, obj); err != nil {
		return nil, fmt.Errorf("insert object: %w", err)
	}
	return &Handle{object: obj}, nil
}

// OpenWriter returns the single write sink for h. The caller must Close it
// before calling Finalize.
func (s *Store) OpenWriter(ctx context.Context, h *Handle) (*Writer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalized {
		return nil, ErrAlreadyFinalized
	}
	if h.opened {
		return nil, ErrWriterOpened
	}
	h.opened = true
	return newWriter(ctx, s, h), nil
}

// Finalize seals the object once the stored chunks account for exactly the
// declared length. On ErrIncompleteWrite the object remains open and should be
// deleted by the caller.
func (s *Store) Finalize(ctx context.Context, h *Handle) (Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalized {
		return Object{}, ErrAlreadyFinalized
	}
	if !h.closed {
		return Object{}, fmt.Errorf("%w: writer not closed", ErrIncompleteWrite)
	}

	stats, err := s.backend.ChunkStats(ctx, h.object.ID)
	if err != nil {
		return Object{}, fmt.Errorf("chunk stats: %w", err)
	}
	if stats.Count > 0 && stats.MaxSeq != stats.Count-1 {
		return Object{}, fmt.Errorf("%w: %d chunks stored but last sequence is %d", ErrIncompleteWrite, stats.Count, stats.MaxSeq)
	}
	declared := h.object.Metadata.SizeBytes
	if stats.RawBytes != declared {
		return Object{}, fmt.Errorf("%w: stored %d bytes, declared %d", ErrIncompleteWrite, stats.RawBytes, declared)
	}
	if stats.RawBytes != h.written {
		return Object{}, fmt.Errorf("%w: stored %d bytes, writer reported %d", ErrIncompleteWrite, stats.RawBytes, h.written)
	}

	obj, err := s.backend.MarkFinalized(ctx, h.object.ID, Finalization{
		Length:     stats.RawBytes,
		ChunkCount: stats.Count,
		Checksum:   h.checksum,
		At:         s.nowFunc().UTC(),
	})
	if err != nil {
		return Object{}, fmt.Errorf("mark finalized: %w", err)
	}
	h.finalized = true
	h.object = obj
	return obj, nil
}

// Open returns a streaming reader over a finalized object.
func (s *Store) Open(ctx context.Context, id uuid.UUID) (*Reader, error) {
	obj, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}
	return newReader(ctx, s, obj), nil
}

// Stat returns the metadata of a finalized object.
func (s *Store) Stat(ctx context.Context, id uuid.UUID) (Object, error) {
	obj, err := s.backend.GetObject(ctx, id)
	if err != nil {
		return Object{}, err
	}
	if !obj.Finalized() {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Exists reports whether a finalized object exists for id.
func (s *Store) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.Stat(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes an object and all of its chunks, open or finalized.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.backend.DeleteObject(ctx, id)
}
