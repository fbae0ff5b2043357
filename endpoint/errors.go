package endpoint

import (
	"errors"
	"fmt"
)

// UnknownEndpointError is returned when resolving a name that has no
// registered factory.
type UnknownEndpointError struct {
	Name string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("unknown endpoint %q", e.Name)
}

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller may retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DefinitionError reports an invalid entry in an endpoint catalog.
type DefinitionError struct {
	Index  int
	Name   string
	Reason string
}

func (e *DefinitionError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("catalog entry %d: %s", e.Index+1, e.Reason)
	}

	return fmt.Sprintf("catalog entry %d (%s): %s", e.Index+1, e.Name, e.Reason)
}
