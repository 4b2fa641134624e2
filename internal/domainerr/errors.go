// Package domainerr defines the error kinds shared across the invoicing core.
// Domain packages wrap these sentinels in specific errors so transport layers
// can map on the kind while internal callers branch on the specific error.
package domainerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity id or verification token did not resolve.
	ErrNotFound = errors.New("not_found")
	// ErrInvalidStateTransition indicates an operation was attempted from a state that forbids it.
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	// ErrPreconditionFailed indicates an actor-level or input gate was not met.
	ErrPreconditionFailed = errors.New("precondition_failed")
	// ErrIntegrityMismatch indicates a recomputed hash disagrees with the stored one.
	ErrIntegrityMismatch = errors.New("integrity_mismatch")
	// ErrConcurrencyConflict indicates a compare-and-set lost a race; callers should re-fetch.
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
)

// Wrap attaches an error kind to a specific domain error.
func Wrap(kind error, msg string) error {
	return fmt.Errorf("%s: %w", msg, kind)
}
