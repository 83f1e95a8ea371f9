package chunkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Reader streams a finalized object chunk by chunk, so at most one decoded
// chunk is held in memory. Length and checksum are verified at EOF.
type Reader struct {
	ctx       context.Context
	store     *Store
	object    Object
	seq       int
	cur       []byte
	delivered int64
	hasher    hash.Hash
	closed    bool
}

func newReader(ctx context.Context, s *Store, obj Object) *Reader {
	return &Reader{
		ctx:    ctx,
		store:  s,
		object: obj,
		hasher: sha256.New(),
	}
}

// Object returns the metadata of the object being read.
func (r *Reader) Object() Object {
	return r.object
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	for len(r.cur) == 0 {
		if r.seq >= r.object.ChunkCount {
			return 0, r.verify()
		}
		if err := r.next(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	r.delivered += int64(n)
	return n, nil
}

// Close releases the reader. It never fails.
func (r *Reader) Close() error {
	r.closed = true
	r.cur = nil
	return nil
}

func (r *Reader) next() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	chunk, err := r.store.backend.GetChunk(r.ctx, r.object.ID, r.seq)
	if err != nil {
		return fmt.Errorf("read chunk %d: %w", r.seq, err)
	}
	data, err := r.store.codec.decode(r.object.Compression, chunk.Data, chunk.Size)
	if err != nil {
		return err
	}
	if len(data) != chunk.Size {
		return fmt.Errorf("%w: chunk %d decoded to %d bytes, expected %d", ErrCorrupt, r.seq, len(data), chunk.Size)
	}
	r.hasher.Write(data)
	r.cur = data
	r.seq++
	return nil
}

func (r *Reader) verify() error {
	if r.delivered != r.object.Length {
		return fmt.Errorf("%w: read %d bytes, expected %d", ErrCorrupt, r.delivered, r.object.Length)
	}
	if r.object.Checksum != "" {
		if sum := hex.EncodeToString(r.hasher.Sum(nil)); sum != r.object.Checksum {
			return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}
	return io.EOF
}
