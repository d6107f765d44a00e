// Package sentinel names storage-level facts. The ledger and the stores
// return these, possibly wrapped, and services turn them into coded domain
// errors. Input validation never uses them.
package sentinel

import "errors"

var (
	// ErrNotFound: no record or account under the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a concurrent transaction committed first. Retrying may succeed.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyUsed: the key is already taken.
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: the record exists but cannot take this operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
