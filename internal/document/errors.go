package document

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects a file (or batch) before any bytes are stored. Never retried.
	ErrValidation = errors.New("file rejected")
	// ErrUploadTimeout means an attempt did not finish within its time budget.
	ErrUploadTimeout = errors.New("upload timed out")
	// ErrStream is an I/O fault while moving bytes into the store.
	ErrStream = errors.New("upload stream failed")
	// ErrVerification means a finalized object did not match the declared length.
	ErrVerification = errors.New("upload verification failed")
	// ErrNotFound covers a missing request, reference or object.
	ErrNotFound = errors.New("document not found")
	// ErrForbidden means the caller may not touch the request or document.
	ErrForbidden = errors.New("forbidden")
	// ErrRequestNotEditable means the request has left the pending state.
	ErrRequestNotEditable = errors.New("request not editable")
	// ErrOrphanCleanup marks a failed best-effort delete of a partial object.
	// It is logged and counted, never returned as the primary error.
	ErrOrphanCleanup = errors.New("orphan cleanup failed")
	// ErrCanceled means the caller went away mid-upload.
	ErrCanceled = errors.New("upload canceled")
)

// FailureKind is the user-visible category of a failed file.
type FailureKind string

const (
	// KindRejected is a validation failure: the file was never accepted.
	KindRejected FailureKind = "rejected"
	// KindNotEditable means the request could not take documents right now.
	KindNotEditable FailureKind = "not_editable"
	// KindExhausted means every attempt failed.
	KindExhausted FailureKind = "exhausted"
	// KindCanceled means the caller aborted the upload.
	KindCanceled FailureKind = "canceled"
)

// FileFailure reports why one file of a batch was not stored.
type FileFailure struct {
	Name     string
	Kind     FailureKind
	Attempts int
	Err      error
}

// Reason renders the failure for API responses.
func (f FileFailure) Reason() string {
	switch f.Kind {
	case KindExhausted:
		return fmt.Sprintf("upload failed after %d attempts: %v", f.Attempts, f.Err)
	case KindNotEditable:
		return fmt.Sprintf("not eligible for upload right now: %v", f.Err)
	case KindCanceled:
		return "upload canceled"
	default:
		return f.Err.Error()
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrUploadTimeout) || errors.Is(err, ErrStream) || errors.Is(err, ErrVerification)
}
