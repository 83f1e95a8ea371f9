package storage

import (
	"context"
	"fmt"

	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ChunkStore is the opened document store plus the MinIO client backing it,
// which is nil unless the minio backend was selected.
type ChunkStore struct {
	Store *chunkstore.Store
	MinIO *minio.Client
}

// OpenChunkStore builds the document store selected by cfg.ChunkStore.Backend.
func OpenChunkStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *zap.Logger) (ChunkStore, error) {
	var (
		backend chunkstore.Backend
		client  *minio.Client
	)
	switch cfg.ChunkStore.Backend {
	case "postgres":
		if pool == nil {
			return ChunkStore{}, fmt.Errorf("postgres chunk backend needs a database pool")
		}
		backend = chunkstore.NewPostgresBackend(pool)
	case "minio":
		var err error
		client, err = NewMinIOClient(cfg.MinIO)
		if err != nil {
			return ChunkStore{}, err
		}
		if err := EnsureBucket(ctx, client, cfg.MinIO.Bucket, cfg.MinIO.Region); err != nil {
			return ChunkStore{}, err
		}
		backend = chunkstore.NewMinIOBackend(chunkstore.NewMinIOClient(client), cfg.MinIO.Bucket)
	case "memory":
		log.Warn("documents are kept in memory and will not survive a restart")
		backend = chunkstore.NewMemoryBackend()
	default:
		return ChunkStore{}, fmt.Errorf("unsupported chunk store backend %q", cfg.ChunkStore.Backend)
	}

	store, err := chunkstore.New(backend,
		chunkstore.WithChunkSize(cfg.ChunkStore.ChunkSize),
		chunkstore.WithCompression(chunkstore.Compression(cfg.ChunkStore.Compression)),
		chunkstore.WithLogger(log.Named("chunkstore")),
	)
	if err != nil {
		return ChunkStore{}, fmt.Errorf("open chunk store: %w", err)
	}
	return ChunkStore{Store: store, MinIO: client}, nil
}
