package consolesync

import (
	"errors"
	"fmt"
)

// Common errors for synchronization core operations.
var (
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInvalidStoreType      = errors.New("invalid store type")
	ErrAlreadyExists         = errors.New("already exists")
	ErrSelectionUnavailable  = errors.New("no organization or project available")
	ErrFetchFailure          = errors.New("fetch failed")
	ErrMutationFailure       = errors.New("mutation failed")
	ErrNotFound              = errors.New("not found")
	ErrVersionConflict       = errors.New("selection version conflict")
	ErrInvalidThreshold      = errors.New("invalid sentiment threshold")
	ErrEventDefinitionExists = errors.New("event definition already exists")
	ErrTypeMismatch          = errors.New("cached value has unexpected type")
	ErrInvalidInput          = errors.New("invalid input")
)

// FetchError reports a failed read of a cached remote resource. The key
// identifies the cache entry whose last-good value was preserved.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

// Unwrap returns both the sentinel and the cause so errors.Is matches either.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailure, e.Err}
}

// MutationError reports a failed remote confirmation of an optimistic edit.
// Operation names the attempted change, e.g. "attach event bug to session s1".
type MutationError struct {
	Operation string
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *MutationError) Unwrap() []error {
	return []error{ErrMutationFailure, e.Err}
}
