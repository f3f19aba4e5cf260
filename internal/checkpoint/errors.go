package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrUnknownKey = errors.New("unknown checkpoint key")
	ErrNotMapping = errors.New("checkpoint is not a mapping of tensors")
	ErrOffline    = errors.New("checkpoint not cached and downloads are disabled")
)

// LookupError reports a key with no registered location.
type LookupError struct {
	Key string
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownKey, e.Key)
}

// Unwrap returns ErrUnknownKey.
func (e *LookupError) Unwrap() error {
	return ErrUnknownKey
}

// TypeAssertionError reports a decoded checkpoint that is not a
// name-to-tensor mapping.
type TypeAssertionError struct {
	Key   string // Checkpoint key or location
	Entry string // Offending entry, empty when the top-level object is wrong
	Got   string // Description of what was found
}

// Error implements the error interface.
func (e *TypeAssertionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%v: %s: entry %q is %s", ErrNotMapping, e.Key, e.Entry, e.Got)
	}
	return fmt.Sprintf("%v: %s: got %s", ErrNotMapping, e.Key, e.Got)
}

// Unwrap returns ErrNotMapping.
func (e *TypeAssertionError) Unwrap() error {
	return ErrNotMapping
}
