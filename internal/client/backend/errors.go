package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentity is returned before any request is issued when the
	// user or session identifier is empty.
	ErrMissingIdentity = errors.New("user or session id is missing")
	// ErrFetch marks a failed read.
	ErrFetch = errors.New("fetch failed")
	// ErrSubmit marks a failed write.
	ErrSubmit = errors.New("submit failed")
)

// APIError describes a non-success response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	Body       string

	kind error
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap exposes the error kind so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return e.kind
}
