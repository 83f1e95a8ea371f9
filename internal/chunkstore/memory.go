package chunkstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps objects in process memory. It backs tests and local
// runs with CHUNKSTORE_BACKEND=memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[uuid.UUID]Object
	chunks  map[uuid.UUID]map[int]Chunk
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[uuid.UUID]Object),
		chunks:  make(map[uuid.UUID]map[int]Chunk),
	}
}

func (m *MemoryBackend) InsertObject(ctx context.Context, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.ID] = obj
	m.chunks[obj.ID] = make(map[int]Chunk)
	return nil
}

func (m *MemoryBackend) PutChunk(ctx context.Context, chunk Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[chunk.ObjectID]
	if !ok {
		return ErrNotFound
	}
	if obj.Finalized() {
		return ErrAlreadyFinalized
	}
	chunk.Data = bytes.Clone(chunk.Data)
	m.chunks[chunk.ObjectID][chunk.Seq] = chunk
	return nil
}

func (m *MemoryBackend) ChunkStats(ctx context.Context, id uuid.UUID) (ChunkStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ChunkStats{MaxSeq: -1}
	for seq, c := range m.chunks[id] {
		stats.Count++
		stats.RawBytes += int64(c.Size)
		if seq > stats.MaxSeq {
			stats.MaxSeq = seq
		}
	}
	return stats, nil
}

func (m *MemoryBackend) MarkFinalized(ctx context.Context, id uuid.UUID, fin Finalization) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[id]
	if !ok {
		return Object{}, ErrNotFound
	}
	if obj.Finalized() {
		return Object{}, ErrAlreadyFinalized
	}
	at := fin.At
	obj.Status = StatusFinalized
	obj.Length = fin.Length
	obj.ChunkCount = fin.ChunkCount
	obj.Checksum = fin.Checksum
	obj.FinalizedAt = &at
	m.objects[id] = obj
	return obj, nil
}

func (m *MemoryBackend) GetObject(ctx context.Context, id uuid.UUID) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[id]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

func (m *MemoryBackend) GetChunk(ctx context.Context, id uuid.UUID, seq int) (Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chunks[id][seq]
	if !ok {
		return Chunk{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[id]; !ok {
		return ErrNotFound
	}
	delete(m.objects, id)
	delete(m.chunks, id)
	return nil
}

func (m *MemoryBackend) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []Object
	for _, obj := range m.objects {
		if !obj.Finalized() && obj.CreatedAt.Before(createdBefore) {
			open = append(open, obj)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	ids := make([]uuid.UUID, 0, len(open))
	for _, obj := range open {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, obj.ID)
	}
	return ids, nil
}

// Len reports how many objects, in any state, are held.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// OpenCount reports how many objects are still open.
func (m *MemoryBackend) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, obj := range m.objects {
		if !obj.Finalized() {
			n++
		}
	}
	return n
}
