package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDataGap marks missing or degenerate input data. Returned from
	// Preprocess it turns the result undefined instead of failing the run.
	ErrDataGap = errors.New("data gap")
	// ErrInvalidTransition is returned for lifecycle steps called out of order.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrInvariantViolation is a fatal numeric or state inconsistency.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrNameResolution is returned for unknown indicator, report or layer names.
	ErrNameResolution = errors.New("name resolution failed")
	// ErrConfiguration is returned when definitions and implementations disagree.
	ErrConfiguration = errors.New("configuration error")
)

// DataGap wraps ErrDataGap with a reason.
func DataGap(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataGap, fmt.Sprintf(format, args...))
}
