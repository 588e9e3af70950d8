package schema

import (
	"errors"
	"fmt"
)

// ResolutionError reports that entity metadata could not be determined:
// an unknown entity, an unmapped relationship segment, or a primary key
// that no resolver strategy could discover.
//
// Callers treat a resolution failure as "not joinable" or "not
// stabilizable" rather than as a crash; see the engine for how the
// primary-key case degrades.
type ResolutionError struct {
	// Entity is the entity type the lookup started from.
	Entity string

	// Path is the field or relationship path that failed, if any.
	Path string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema resolution failed for %s.%s: %s", e.Entity, e.Path, e.Message)
	}
	return fmt.Sprintf("schema resolution failed for %s: %s", e.Entity, e.Message)
}

// IsResolutionError returns true if the error is a schema resolution
// failure. Uses errors.As to handle wrapped errors.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// NewResolutionError creates a ResolutionError for an entity-level failure.
func NewResolutionError(entity, message string) *ResolutionError {
	return &ResolutionError{Entity: entity, Message: message}
}

// NewPathResolutionError creates a ResolutionError for a path-level failure.
func NewPathResolutionError(entity, path, message string) *ResolutionError {
	return &ResolutionError{Entity: entity, Path: path, Message: message}
}
