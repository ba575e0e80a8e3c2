// Package errors provides sentinel errors for objlock operations.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of lock conflict reported to callers.
type Code string

const (
	// CodeIdentityConflict means the object is held by a different locker.
	CodeIdentityConflict Code = "IDENTITY_CONFLICT"

	// CodeSessionConflict means the same locker holds the object under another session.
	CodeSessionConflict Code = "SESSION_CONFLICT"

	// CodeNotFound means no matching lock exists.
	CodeNotFound Code = "NOT_FOUND"
)

// Lock errors
var (
	// ErrIdentityConflict indicates the object is locked by a different principal.
	ErrIdentityConflict = errors.New("object is locked by another user")

	// ErrSessionConflict indicates the caller holds the lock under a different session.
	ErrSessionConflict = errors.New("object is locked by the same user in another session")

	// ErrLockNotFound indicates no lock matches the request.
	ErrLockNotFound = errors.New("lock not found")

	// ErrConcurrentModification indicates the lock kept changing underneath a request.
	ErrConcurrentModification = errors.New("lock was modified concurrently")

	// ErrLockTimeout indicates a blocking acquisition gave up after its wait timeout.
	ErrLockTimeout = errors.New("could not acquire lock, try again")
)

// Store errors
var (
	// ErrLockExists indicates an insert lost against an existing record.
	ErrLockExists = errors.New("lock record already exists")

	// ErrLockChanged indicates a conditional write matched no record.
	ErrLockChanged = errors.New("lock record changed")

	// ErrUnknownBackend indicates an unsupported lock store backend name.
	ErrUnknownBackend = errors.New("unknown lock store backend")
)

// Validation errors
var (
	// ErrInvalidObjectID indicates an empty or malformed object id.
	ErrInvalidObjectID = errors.New("invalid object id")

	// ErrInvalidSession indicates an empty or malformed session id.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrInvalidLocker indicates an empty or malformed locker id.
	ErrInvalidLocker = errors.New("invalid locker id")

	// ErrInvalidObjectName indicates a design object name that is not a safe path segment.
	ErrInvalidObjectName = errors.New("invalid object name: must be alphanumeric with '.', '_' or '-', 1-128 characters")
)

// LockError is a typed lock failure carrying a conflict code.
type LockError struct {
	Code     Code
	ObjectID string
	// Holder is the locker currently holding the object, if known.
	Holder string
}

func (e *LockError) Error() string {
	switch e.Code {
	case CodeIdentityConflict:
		return fmt.Sprintf("object %s is being edited by %s", e.ObjectID, e.Holder)
	case CodeSessionConflict:
		return fmt.Sprintf("object %s is being edited by %s in another session", e.ObjectID, e.Holder)
	default:
		return fmt.Sprintf("no lock found for object %s", e.ObjectID)
	}
}

// Unwrap maps the code onto its sentinel so errors.Is works.
func (e *LockError) Unwrap() error {
	switch e.Code {
	case CodeIdentityConflict:
		return ErrIdentityConflict
	case CodeSessionConflict:
		return ErrSessionConflict
	default:
		return ErrLockNotFound
	}
}

// NewLockError builds a LockError.
func NewLockError(code Code, objectID, holder string) *LockError {
	return &LockError{Code: code, ObjectID: objectID, Holder: holder}
}

// CodeOf returns the conflict code carried by err, or "" if there is none.
func CodeOf(err error) Code {
	var le *LockError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsConflict reports whether err is an identity or session conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrIdentityConflict) || errors.Is(err, ErrSessionConflict)
}
