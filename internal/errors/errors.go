package errors

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the store, identity and session layers.
var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAuthInvalid     = errors.New("invalid email or password")
	ErrAuthDenied      = errors.New("account is not allowed to use this app")
	ErrSessionNotFound = errors.New("session not found")
	ErrPersistence     = errors.New("persistence failure")
	ErrConfigMissing   = errors.New("configuration missing")
)

// Persistence wraps a failed store read or write. Both ErrPersistence and
// the underlying cause stay reachable through errors.Is.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

