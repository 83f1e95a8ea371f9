package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/abduss/benefits/internal/chunkstore"
	"github.com/abduss/benefits/internal/logger"
	"github.com/abduss/benefits/internal/request"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// FileInput is one file of an upload batch. Open may be called once per
// attempt and must return the content from the beginning each time.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Upload is a stored and attached file.
type Upload struct {
	Reference request.DocumentReference
	Attempts  int
}

// BatchResult reports the per-file outcome of UploadAll.
type BatchResult struct {
	Uploaded []Upload
	Failed   []FileFailure
	Request  request.Request
}

// Supervisor drives uploads: validation, bounded retries with per-attempt
// deadlines, cleanup of partial objects and the final attach.
type Supervisor struct {
	binder  *Binder
	objects ObjectStore
	policy  Policy
	metrics *Metrics
}

// NewSupervisor constructs a Supervisor.
func NewSupervisor(binder *Binder, objects ObjectStore, policy Policy, metrics *Metrics) *Supervisor {
	return &Supervisor{binder: binder, objects: objects, policy: policy, metrics: metrics}
}

// Policy returns the limits the supervisor enforces.
func (s *Supervisor) Policy() Policy {
	return s.policy
}

// UploadAll stores files and attaches every successful one to the request in
// a single update. When nothing could be stored the first failure is returned
// and the request is left untouched.
func (s *Supervisor) UploadAll(ctx context.Context, requestID uuid.UUID, actor request.Actor, files []FileInput) (BatchResult, error) {
	log := logger.FromContext(ctx).With(zap.String("request_id", requestID.String()))

	if _, err := s.binder.CheckEditable(ctx, requestID, actor); err != nil {
		var result BatchResult
		if errors.Is(err, ErrRequestNotEditable) {
			for _, f := range files {
				result.Failed = append(result.Failed, FileFailure{Name: f.Name, Kind: KindNotEditable, Err: err})
			}
		}
		return result, err
	}
	if len(files) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no files provided", ErrValidation)
	}
	if len(files) > s.policy.MaxFiles {
		return BatchResult{}, fmt.Errorf("%w: at most %d files per upload", ErrValidation, s.policy.MaxFiles)
	}

	var result BatchResult
	refs := make([]request.DocumentReference, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, FileFailure{Name: f.Name, Kind: KindCanceled, Err: ErrCanceled})
			s.metrics.file(string(KindCanceled))
			continue
		}

		obj, attempts, err := s.uploadFile(ctx, requestID, actor, f)
		if err != nil {
			failure := FileFailure{Name: f.Name, Kind: failureKind(err), Attempts: attempts, Err: err}
			result.Failed = append(result.Failed, failure)
			s.metrics.file(string(failure.Kind))
			log.Warn("document upload failed",
				zap.String("file", f.Name),
				zap.String("kind", string(failure.Kind)),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			continue
		}

		ref := referenceFor(obj, f)
		refs = append(refs, ref)
		result.Uploaded = append(result.Uploaded, Upload{Reference: ref, Attempts: attempts})
	}

	if len(refs) == 0 {
		return result, result.Failed[0].Err
	}

	updated, err := s.binder.Attach(ctx, requestID, actor, refs)
	if err != nil {
		log.Error("attach documents failed", zap.Int("documents", len(refs)), zap.Error(err))
		for _, up := range result.Uploaded {
			s.discard(ctx, up.Reference.ID)
			result.Failed = append(result.Failed, FileFailure{
				Name:     up.Reference.OriginalName,
				Kind:     failureKind(err),
				Attempts: up.Attempts,
				Err:      err,
			})
			s.metrics.file(string(failureKind(err)))
		}
		result.Uploaded = nil
		return result, err
	}

	for range result.Uploaded {
		s.metrics.file("uploaded")
	}
	result.Request = updated
	log.Info("documents attached",
		zap.Int("uploaded", len(result.Uploaded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// uploadFile validates f and runs the retry loop. It returns the finalized
// object and the number of attempts made.
func (s *Supervisor) uploadFile(ctx context.Context, requestID uuid.UUID, actor request.Actor, f FileInput) (chunkstore.Object, int, error) {
	if err := s.validate(f); err != nil {
		return chunkstore.Object{}, 0, err
	}

	var (
		obj      chunkstore.Object
		attempts int
	)
	err := retry.Do(ctx, s.policy.retryBackoff(), func(ctx context.Context) error {
		attempts++
		stored, err := s.attempt(ctx, requestID, actor, f, attempts)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		obj = stored
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		return chunkstore.Object{}, attempts, err
	}
	return obj, attempts, nil
}

func (s *Supervisor) validate(f FileInput) error {
	if f.Size <= 0 {
		return fmt.Errorf("%w: %s is empty", ErrValidation, f.Name)
	}
	if f.Size > s.policy.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrValidation, f.Name, f.Size, s.policy.MaxFileSize)
	}
	if !s.policy.Allowed(f.ContentType) {
		return fmt.Errorf("%w: %s has unsupported type %q", ErrValidation, f.Name, f.ContentType)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s cannot be read: %v", ErrValidation, f.Name, err)
	}
	defer rc.Close()
	detected, err := mimetype.DetectReader(rc)
	if err != nil {
		return fmt.Errorf("%w: %s cannot be read: %v", ErrValidation, f.Name, err)
	}
	if !detected.Is(normalizeType(f.ContentType)) {
		return fmt.Errorf("%w: %s looks like %s, declared %s", ErrValidation, f.Name, detected.String(), f.ContentType)
	}
	return nil
}

// attempt runs one bounded try. Whatever it leaves behind on failure is
// deleted before returning.
func (s *Supervisor) attempt(ctx context.Context, requestID uuid.UUID, actor request.Actor, f FileInput, attempt int) (chunkstore.Object, error) {
	timeout := s.policy.Timeout(f.Size, attempt)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.FromContext(ctx).With(
		zap.String("file", f.Name),
		zap.Int("attempt", attempt),
	)
	log.Debug("upload attempt started",
		zap.Int64("size", f.Size),
		zap.Duration("timeout", timeout),
	)

	started := time.Now()
	id, obj, err := s.store(attemptCtx, requestID, actor, f, log)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", ErrUploadTimeout, timeout)
	}
	elapsed := time.Since(started).Seconds()

	if err != nil {
		s.metrics.attempt(attemptOutcome(err), elapsed)
		if id != uuid.Nil {
			s.discard(ctx, id)
		}
		log.Info("upload attempt failed", zap.Error(err))
		return chunkstore.Object{}, err
	}

	s.metrics.attempt("success", elapsed)
	s.metrics.uploaded(obj.Length)
	return obj, nil
}

// store writes f as a new object and verifies it. The returned id is set as
// soon as an object exists, even when a later step fails.
func (s *Supervisor) store(ctx context.Context, requestID uuid.UUID, actor request.Actor, f FileInput, log *zap.Logger) (uuid.UUID, chunkstore.Object, error) {
	contentType := normalizeType(f.ContentType)
	h, err := s.objects.Create(ctx, f.Name, contentType, chunkstore.Metadata{
		RequestID:  requestID,
		UploaderID: actor.ID,
		SizeBytes:  f.Size,
		MimeType:   contentType,
	})
	if err != nil {
		return uuid.Nil, chunkstore.Object{}, fmt.Errorf("%w: create object: %v", ErrStream, err)
	}
	id := h.ID()

	rc, err := f.Open()
	if err != nil {
		return id, chunkstore.Object{}, fmt.Errorf("%w: open source: %v", ErrStream, err)
	}
	defer rc.Close()

	w, err := s.objects.OpenWriter(ctx, h)
	if err != nil {
		return id, chunkstore.Object{}, fmt.Errorf("%w: open writer: %v", ErrStream, err)
	}
	src := &progressReader{r: rc, total: f.Size, log: log}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return id, chunkstore.Object{}, fmt.Errorf("%w: %v", ErrStream, err)
	}
	if err := w.Close(); err != nil {
		return id, chunkstore.Object{}, fmt.Errorf("%w: %v", ErrStream, err)
	}

	sealed, err := s.objects.Finalize(ctx, h)
	if err != nil {
		if errors.Is(err, chunkstore.ErrIncompleteWrite) {
			return id, chunkstore.Object{}, fmt.Errorf("%w: %v", ErrVerification, err)
		}
		return id, chunkstore.Object{}, fmt.Errorf("%w: finalize: %v", ErrStream, err)
	}

	stat, err := s.objects.Stat(ctx, id)
	if err != nil {
		return id, chunkstore.Object{}, fmt.Errorf("%w: stat: %v", ErrVerification, err)
	}
	if stat.Length != f.Size || stat.Checksum != sealed.Checksum {
		return id, chunkstore.Object{}, fmt.Errorf("%w: stored %d bytes, expected %d", ErrVerification, stat.Length, f.Size)
	}
	return id, stat, nil
}

// discard deletes a partial or rejected object. It runs even when ctx is done.
func (s *Supervisor) discard(ctx context.Context, id uuid.UUID) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	err := s.objects.Delete(cleanupCtx, id)
	if err == nil || errors.Is(err, chunkstore.ErrNotFound) {
		return
	}
	s.metrics.orphanFailure()
	logger.FromContext(ctx).Warn("partial object cleanup failed",
		zap.String("object_id", id.String()),
		zap.Error(fmt.Errorf("%w: %v", ErrOrphanCleanup, err)),
	)
}

func referenceFor(obj chunkstore.Object, f FileInput) request.DocumentReference {
	uploaded := obj.CreatedAt
	if obj.FinalizedAt != nil {
		uploaded = *obj.FinalizedAt
	}
	return request.DocumentReference{
		ID:           obj.ID,
		Filename:     obj.ID.String() + strings.ToLower(filepath.Ext(f.Name)),
		OriginalName: f.Name,
		ContentType:  obj.ContentType,
		Size:         obj.Length,
		UploadDate:   uploaded,
		Metadata: map[string]string{
			"request_id":  obj.Metadata.RequestID.String(),
			"uploader_id": obj.Metadata.UploaderID.String(),
			"mime_type":   obj.Metadata.MimeType,
			"checksum":    obj.Checksum,
		},
	}
}

func failureKind(err error) FailureKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindRejected
	case errors.Is(err, ErrRequestNotEditable), errors.Is(err, ErrForbidden):
		return KindNotEditable
	case errors.Is(err, ErrCanceled):
		return KindCanceled
	default:
		return KindExhausted
	}
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUploadTimeout):
		return "timeout"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "stream"
	}
}

// progressReader logs every quarter of the expected size.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	logged int64
	log    *zap.Logger
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		step := p.read * 4 / p.total
		if step > p.logged && step <= 4 {
			p.logged = step
			p.log.Debug("upload progress",
				zap.Int64("bytes", p.read),
				zap.Int64("percent", step*25),
			)
		}
	}
	return n, err
}
