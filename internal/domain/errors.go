package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that no tier holds the requested resource.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrStorage signals an unrecoverable local or remote I/O failure.
	ErrStorage = errors.New("storage error")
	// ErrProvider signals that every embedding provider failed.
	ErrProvider = errors.New("embedding provider error")
	// ErrGeneration signals that every generation provider failed.
	ErrGeneration = errors.New("generation failed")
	// ErrRateLimited signals a rate limit hit. Callers pass it through without retrying.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted provider token budget.
	ErrQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrInvalidInput signals malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIndexReleased signals use of an index whose native resources were freed.
	ErrIndexReleased = errors.New("index released")
)

// DimensionMismatchError wraps ErrDimensionMismatch with both dimensions.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(expected, got int) error {
	return &DimensionMismatchError{Expected: expected, Got: got}
}

// StorageError wraps ErrStorage with the failed operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", ErrStorage.Error(), e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrStorage.Error(), e.Op, e.Key, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// NewStorageError creates a storage error for op on key.
func NewStorageError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}
