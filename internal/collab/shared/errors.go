package shared

import (
	"errors"
	"fmt"
)

// Errors returned by document services.
var (
	// ErrDocumentGone is returned when the counterpart document or cursor
	// set was disposed or the owning peer disconnected.
	ErrDocumentGone = errors.New("shared document gone")

	// ErrInvalidChange is returned for changes outside the document.
	ErrInvalidChange = errors.New("invalid change")

	// ErrSaveUnavailable is returned when no site can save the document.
	ErrSaveUnavailable = errors.New("save unavailable")
)

// OperationError wraps an error with the operation and target it came from.
type OperationError struct {
	Op     string
	Target string
	Err    error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates an OperationError.
func NewOperationError(op, target string, err error) *OperationError {
	return &OperationError{Op: op, Target: target, Err: err}
}

// IsGone reports whether err means the counterpart is unavailable.
func IsGone(err error) bool {
	return errors.Is(err, ErrDocumentGone)
}
