package lazyfile

import "errors"

var (
	// ErrRangeViolation is returned when a requested range is inverted or
	// reaches past the known file length. It signals a caller or internal
	// logic defect, never a transient condition.
	ErrRangeViolation = errors.New("range violation")
	// ErrInvariantViolation is returned when a chunk is still missing right
	// after the fetch that should have populated it.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrRegistryClosed is returned by a Registry after Close.
	ErrRegistryClosed = errors.New("registry closed")
)
