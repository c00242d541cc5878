package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --

var (
	// ErrNotFound is a normal resolver outcome: enumeration finished without a match.
	ErrNotFound = errors.New("window not found")
	// ErrOutOfBounds means a screen point falls outside the target window.
	ErrOutOfBounds = errors.New("point is outside the window")
	// ErrWindowGone means the window rectangle could not be read.
	ErrWindowGone = errors.New("window rectangle unavailable")
	// ErrTargetLost means the window was confirmed destroyed.
	ErrTargetLost = errors.New("target window lost")
	// ErrUnsupported means the execution environment cannot provide a required capability.
	ErrUnsupported = errors.New("capability not supported on this platform")
	// ErrInvalidIndex is returned by point operations given an out-of-range index.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrProfileNotFound is returned when a named profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")
)

// ValidationError rejects malformed input before any OS interaction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MatchError isolates a failed region comparison to one point for one tick.
type MatchError struct {
	PointIndex  int
	RegionIndex int
	Err         error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match evaluation failed for point %d region %d: %v", e.PointIndex, e.RegionIndex, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }
