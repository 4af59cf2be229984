package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUploadNotFound = fmt.Errorf("%w: upload", ErrNotFound)

	// Lifecycle errors
	ErrNotProcessing   = errors.New("record is not in processing state")
	ErrNotProcessedYet = errors.New("file has not been processed yet")
	ErrStillProcessing = errors.New("file is still being processed")
)

// NewNotFoundError builds a not-found error for a resource id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
