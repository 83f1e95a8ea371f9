package chunkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const rawSizeMeta = "Raw-Size"

// ObjectClient is the subset of the MinIO API used by MinIOBackend.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjectNames(ctx context.Context, bucketName, prefix string) ([]string, error)
}

// MinIOClient adapts minio.Client to ObjectClient.
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient wraps client.
func NewMinIOClient(client *minio.Client) *MinIOClient {
	return &MinIOClient{client: client}
}

func (c *MinIOClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (c *MinIOClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces NoSuchKey before the caller reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (c *MinIOClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, bucketName, objectName, opts)
}

func (c *MinIOClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return c.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (c *MinIOClient) ListObjectNames(ctx context.Context, bucketName, prefix string) ([]string, error) {
	var names []string
	for info := range c.client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		names = append(names, info.Key)
	}
	return names, nil
}

// MinIOBackend stores each chunk as its own S3 object under chunks/<id>/ and
// the object record as a JSON manifest under objects/<id>.json.
type MinIOBackend struct {
	client ObjectClient
	bucket string
}

// NewMinIOBackend builds a backend writing into bucket.
func NewMinIOBackend(client ObjectClient, bucket string) *MinIOBackend {
	return &MinIOBackend{client: client, bucket: bucket}
}

func manifestName(id uuid.UUID) string {
	return "objects/" + id.String() + ".json"
}

func chunkPrefix(id uuid.UUID) string {
	return "chunks/" + id.String() + "/"
}

func chunkName(id uuid.UUID, seq int) string {
	return fmt.Sprintf("%s%08d", chunkPrefix(id), seq)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (b *MinIOBackend) putManifest(ctx context.Context, obj Object) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = b.client.PutObject(ctx, b.bucket, manifestName(obj.ID), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return nil
}

func (b *MinIOBackend) InsertObject(ctx context.Context, obj Object) error {
	return b.putManifest(ctx, obj)
}

func (b *MinIOBackend) PutChunk(ctx context.Context, chunk Chunk) error {
	obj, err := b.GetObject(ctx, chunk.ObjectID)
	if err != nil {
		return err
	}
	if obj.Finalized() {
		return ErrAlreadyFinalized
	}
	_, err = b.client.PutObject(ctx, b.bucket, chunkName(chunk.ObjectID, chunk.Seq), bytes.NewReader(chunk.Data), int64(len(chunk.Data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{rawSizeMeta: strconv.Itoa(chunk.Size)},
	})
	if err != nil {
		return fmt.Errorf("put chunk object: %w", err)
	}
	return nil
}

func (b *MinIOBackend) chunkSeqs(ctx context.Context, id uuid.UUID) ([]int, error) {
	names, err := b.client.ListObjectNames(ctx, b.bucket, chunkPrefix(id))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	seqs := make([]int, 0, len(names))
	for _, name := range names {
		seq, err := strconv.Atoi(strings.TrimPrefix(name, chunkPrefix(id)))
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

func rawSize(meta map[string]string) (int, error) {
	for k, v := range meta {
		if strings.EqualFold(k, rawSizeMeta) || strings.EqualFold(k, "X-Amz-Meta-"+rawSizeMeta) {
			return strconv.Atoi(v)
		}
	}
	return 0, fmt.Errorf("%w: chunk missing %s metadata", ErrCorrupt, rawSizeMeta)
}

func (b *MinIOBackend) ChunkStats(ctx context.Context, id uuid.UUID) (ChunkStats, error) {
	seqs, err := b.chunkSeqs(ctx, id)
	if err != nil {
		return ChunkStats{}, err
	}
	stats := ChunkStats{MaxSeq: -1}
	for _, seq := range seqs {
		info, err := b.client.StatObject(ctx, b.bucket, chunkName(id, seq), minio.StatObjectOptions{})
		if err != nil {
			return ChunkStats{}, fmt.Errorf("stat chunk %d: %w", seq, err)
		}
		size, err := rawSize(info.UserMetadata)
		if err != nil {
			return ChunkStats{}, err
		}
		stats.Count++
		stats.RawBytes += int64(size)
		if seq > stats.MaxSeq {
			stats.MaxSeq = seq
		}
	}
	return stats, nil
}

func (b *MinIOBackend) MarkFinalized(ctx context.Context, id uuid.UUID, fin Finalization) (Object, error) {
	obj, err := b.GetObject(ctx, id)
	if err != nil {
		return Object{}, err
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
	if err := b.putManifest(ctx, obj); err != nil {
		return Object{}, err
	}
	return obj, nil
}

func (b *MinIOBackend) GetObject(ctx context.Context, id uuid.UUID) (Object, error) {
	rc, err := b.client.GetObject(ctx, b.bucket, manifestName(id), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("get manifest: %w", err)
	}
	defer rc.Close()

	var obj Object
	if err := json.NewDecoder(rc).Decode(&obj); err != nil {
		if isNoSuchKey(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("decode manifest: %w", err)
	}
	return obj, nil
}

func (b *MinIOBackend) GetChunk(ctx context.Context, id uuid.UUID, seq int) (Chunk, error) {
	name := chunkName(id, seq)
	info, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Chunk{}, ErrNotFound
		}
		return Chunk{}, fmt.Errorf("stat chunk: %w", err)
	}
	size, err := rawSize(info.UserMetadata)
	if err != nil {
		return Chunk{}, err
	}

	rc, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Chunk{}, ErrNotFound
		}
		return Chunk{}, fmt.Errorf("get chunk: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Chunk{}, fmt.Errorf("read chunk: %w", err)
	}
	return Chunk{ObjectID: id, Seq: seq, Size: size, Data: data}, nil
}

// DeleteObject removes chunks before the manifest so a partial failure leaves
// an open-looking record the sweeper can retry.
func (b *MinIOBackend) DeleteObject(ctx context.Context, id uuid.UUID) error {
	if _, err := b.GetObject(ctx, id); err != nil {
		return err
	}
	seqs, err := b.chunkSeqs(ctx, id)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if err := b.client.RemoveObject(ctx, b.bucket, chunkName(id, seq), minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
			return fmt.Errorf("remove chunk %d: %w", seq, err)
		}
	}
	if err := b.client.RemoveObject(ctx, b.bucket, manifestName(id), minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

func (b *MinIOBackend) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	names, err := b.client.ListObjectNames(ctx, b.bucket, "objects/")
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}

	var open []Object
	for _, name := range names {
		id, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(name, "objects/"), ".json"))
		if err != nil {
			continue
		}
		obj, err := b.GetObject(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
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
