package request

import "errors"

var (
	// ErrRequestNotFound indicates no request exists for the id.
	ErrRequestNotFound = errors.New("request not found")
	// ErrForbidden is returned when the caller neither owns the request nor is an administrator.
	ErrForbidden = errors.New("forbidden")
	// ErrNotEditable rejects document changes on a request that has left the pending state.
	ErrNotEditable = errors.New("request is not editable")
	// ErrDuplicateRequest is returned when a pending or approved request already exists for the benefit.
	ErrDuplicateRequest = errors.New("benefit already requested")
	// ErrEmployeesOnly rejects benefit requests filed by administrators.
	ErrEmployeesOnly = errors.New("only employees may request benefits")
	// ErrInvalidReview signals an unknown target status or a rejection without a reason.
	ErrInvalidReview = errors.New("invalid review")
	// ErrDocumentNotFound indicates the request does not reference the document.
	ErrDocumentNotFound = errors.New("document not found on request")
	// ErrConcurrentUpdate is returned when the row version moved during a mutation.
	ErrConcurrentUpdate = errors.New("request modified concurrently")
)
