// internal/domain/cycle/errors.go
package cycle

import "errors"

// Domain errors. Validation failures wrap ErrInvalidSequence or
// ErrPolicyViolation with a specific reason; use errors.Is to classify.
var (
	ErrInvalidSequence = errors.New("invalid event sequence")
	ErrPolicyViolation = errors.New("halachic minimum not met")
	ErrConflict        = errors.New("cycle record was modified concurrently")
	ErrNotFound        = errors.New("cycle record not found")
)
