package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrPredictionNotFound = fmt.Errorf("%w: prediction", ErrNotFound)
	ErrSourceNotFound     = fmt.Errorf("%w: source", ErrNotFound)
	ErrSnapshotNotFound   = fmt.Errorf("%w: snapshot", ErrNotFound)
	ErrEntryNotFound      = fmt.Errorf("%w: entry", ErrNotFound)
	ErrPathNotFound       = fmt.Errorf("%w: registry path", ErrNotFound)

	// Configuration errors - fatal only at construction time
	ErrInvalidCap          = errors.New("exogenous cap outside [0,1]")
	ErrInvalidLearningRate = errors.New("invalid learning rate")
	ErrInvalidThreshold    = errors.New("invalid failure threshold")
	ErrInvalidInterval     = errors.New("invalid interval")

	// Malformed runtime state - skipped, never fatal
	ErrNoMatrixPayload   = errors.New("no extractable matrix in payload")
	ErrDimensionMismatch = errors.New("matrix dimension mismatch")
	ErrNotPositive       = errors.New("matrix not positive definite")
	ErrInvertedInterval  = errors.New("confidence interval lower exceeds upper")

	// Integrity errors
	ErrHashMismatch  = errors.New("hash mismatch")
	ErrChainBroken   = errors.New("chain linkage broken")
	ErrEmptySnapshot = errors.New("snapshot has no fields to seal")

	// Signal quality
	ErrDeadSignal = errors.New("dead signal")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("invalid configuration for %s: %s", field, reason)
}

func NewMalformedStateError(path string, err error) error {
	return fmt.Errorf("%w at path %s: %v", ErrNoMatrixPayload, path, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidCap) ||
		errors.Is(err, ErrInvalidLearningRate) ||
		errors.Is(err, ErrInvalidThreshold) ||
		errors.Is(err, ErrInvalidInterval)
}

func IsMalformedStateError(err error) bool {
	return errors.Is(err, ErrNoMatrixPayload) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrNotPositive)
}

func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrHashMismatch) ||
		errors.Is(err, ErrChainBroken)
}

func IsDeadSignal(err error) bool {
	return errors.Is(err, ErrDeadSignal)
}
