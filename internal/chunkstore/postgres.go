package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgTimeout = 5 * time.Second

// PostgresBackend keeps objects in stored_objects and their chunks in
// object_chunks, one row per sequence number.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend builds a backend over an existing pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

const objectColumns = `id, filename, content_type, length, chunk_size, chunk_count, checksum, compression, status,
	request_id, uploader_id, declared_size, mime_type, extra, created_at, finalized_at`

func (b *PostgresBackend) InsertObject(ctx context.Context, obj Object) error {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	extra, err := json.Marshal(obj.Metadata.Extra)
	if err != nil {
		return fmt.Errorf("encode extra metadata: %w", err)
	}

	query := `
INSERT INTO stored_objects (id, filename, content_type, length, chunk_size, chunk_count, checksum, compression, status,
	request_id, uploader_id, declared_size, mime_type, extra, created_at)
VALUES ($1, $2, $3, 0, $4, 0, '', $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err = b.pool.Exec(ctx, query,
		obj.ID,
		obj.Filename,
		obj.ContentType,
		obj.ChunkSize,
		string(obj.Compression),
		string(obj.Status),
		obj.Metadata.RequestID,
		obj.Metadata.UploaderID,
		obj.Metadata.SizeBytes,
		obj.Metadata.MimeType,
		extra,
		obj.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stored object: %w", err)
	}
	return nil
}

func (b *PostgresBackend) PutChunk(ctx context.Context, chunk Chunk) error {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	// The insert only matches while the parent object is still open.
	query := `
INSERT INTO object_chunks (object_id, seq, size, data)
SELECT o.id, $2, $3, $4 FROM stored_objects o
WHERE o.id = $1 AND o.status = 'open';`

	tag, err := b.pool.Exec(ctx, query, chunk.ObjectID, chunk.Seq, chunk.Size, chunk.Data)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := b.GetObject(ctx, chunk.ObjectID); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}

func (b *PostgresBackend) ChunkStats(ctx context.Context, id uuid.UUID) (ChunkStats, error) {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	query := `
SELECT COUNT(*), COALESCE(MAX(seq), -1), COALESCE(SUM(size), 0)
FROM object_chunks WHERE object_id = $1;`

	var stats ChunkStats
	if err := b.pool.QueryRow(ctx, query, id).Scan(&stats.Count, &stats.MaxSeq, &stats.RawBytes); err != nil {
		return ChunkStats{}, fmt.Errorf("chunk stats: %w", err)
	}
	return stats, nil
}

func (b *PostgresBackend) MarkFinalized(ctx context.Context, id uuid.UUID, fin Finalization) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	query := `
UPDATE stored_objects
SET status = 'finalized', length = $2, chunk_count = $3, checksum = $4, finalized_at = $5
WHERE id = $1 AND status = 'open'
RETURNING ` + objectColumns + `;`

	obj, err := scanObject(b.pool.QueryRow(ctx, query, id, fin.Length, fin.ChunkCount, fin.Checksum, fin.At))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := b.GetObject(ctx, id); getErr != nil {
				return Object{}, getErr
			}
			return Object{}, ErrAlreadyFinalized
		}
		return Object{}, fmt.Errorf("finalize object: %w", err)
	}
	return obj, nil
}

func (b *PostgresBackend) GetObject(ctx context.Context, id uuid.UUID) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	query := `SELECT ` + objectColumns + ` FROM stored_objects WHERE id = $1;`

	obj, err := scanObject(b.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("get stored object: %w", err)
	}
	return obj, nil
}

func (b *PostgresBackend) GetChunk(ctx context.Context, id uuid.UUID, seq int) (Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	query := `SELECT size, data FROM object_chunks WHERE object_id = $1 AND seq = $2;`

	chunk := Chunk{ObjectID: id, Seq: seq}
	if err := b.pool.QueryRow(ctx, query, id, seq).Scan(&chunk.Size, &chunk.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chunk{}, ErrNotFound
		}
		return Chunk{}, fmt.Errorf("get chunk: %w", err)
	}
	return chunk, nil
}

// DeleteObject relies on ON DELETE CASCADE to drop the chunks.
func (b *PostgresBackend) DeleteObject(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	tag, err := b.pool.Exec(ctx, `DELETE FROM stored_objects WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete stored object: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, pgTimeout)
	defer cancel()

	query := `
SELECT id FROM stored_objects
WHERE status = 'open' AND created_at < $1
ORDER BY created_at
LIMIT $2;`

	rows, err := b.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list open objects: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan open object: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open objects: %w", err)
	}
	return ids, nil
}

func scanObject(row pgx.Row) (Object, error) {
	var (
		obj         Object
		compression string
		status      string
		extra       []byte
	)
	err := row.Scan(
		&obj.ID,
		&obj.Filename,
		&obj.ContentType,
		&obj.Length,
		&obj.ChunkSize,
		&obj.ChunkCount,
		&obj.Checksum,
		&compression,
		&status,
		&obj.Metadata.RequestID,
		&obj.Metadata.UploaderID,
		&obj.Metadata.SizeBytes,
		&obj.Metadata.MimeType,
		&extra,
		&obj.CreatedAt,
		&obj.FinalizedAt,
	)
	if err != nil {
		return Object{}, err
	}
	obj.Compression = Compression(compression)
	obj.Status = Status(status)
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &obj.Metadata.Extra); err != nil {
			return Object{}, fmt.Errorf("decode extra metadata: %w", err)
		}
	}
	return obj, nil
}
