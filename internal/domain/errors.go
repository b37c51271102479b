package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no or invalid caller identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput means the caller sent unusable data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the row is absent or belongs to someone else.
	ErrNotFound = errors.New("bookmark not found or unauthorized")
	// ErrUpstream means the data store or broadcast transport failed.
	ErrUpstream = errors.New("upstream failure")
)

// ValidationError names the offending field. It matches ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
