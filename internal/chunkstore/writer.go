package chunkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Writer splits a byte stream into chunks and stores them in sequence order.
// It is not safe for concurrent use.
type Writer struct {
	ctx     context.Context
	store   *Store
	handle  *Handle
	buf     []byte
	seq     int
	written int64
	hasher  hash.Hash
	closed  bool
	err     error
}

func newWriter(ctx context.Context, s *Store, h *Handle) *Writer {
	return &Writer{
		ctx:    ctx,
		store:  s,
		handle: h,
		buf:    make([]byte, 0, s.chunkSize),
		hasher: sha256.New(),
	}
}

// Write buffers p and flushes every full chunk to the backend.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	n := 0
	for len(p) > 0 {
		take := cap(w.buf) - len(w.buf)
		if take > len(p) {
			take = len(p)
		}
		w.buf = append(w.buf, p[:take]...)
		p = p[take:]
		n += take

		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				w.err = err
				return n, err
			}
		}
	}
	return n, nil
}

// Written reports the bytes durably handed to the backend so far.
func (w *Writer) Written() int64 {
	return w.written
}

// Close flushes the trailing partial chunk. A writer that failed mid-stream
// never marks its handle closed, so Finalize will refuse it.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.err != nil {
		w.closed = true
		return w.err
	}
	if err := w.flush(); err != nil {
		w.err = err
		w.closed = true
		return err
	}
	w.closed = true
	w.handle.markClosed(w.written, hex.EncodeToString(w.hasher.Sum(nil)))
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	obj := w.handle.object
	data, err := w.store.codec.encode(obj.Compression, w.buf)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", w.seq, err)
	}
	chunk := Chunk{
		ObjectID: obj.ID,
		Seq:      w.seq,
		Size:     len(w.buf),
		Data:     data,
	}
	if err := w.store.backend.PutChunk(w.ctx, chunk); err != nil {
		return fmt.Errorf("put chunk %d: %w", w.seq, err)
	}

	w.hasher.Write(w.buf)
	w.written += int64(len(w.buf))
	w.seq++
	w.buf = w.buf[:0]
	return nil
}
