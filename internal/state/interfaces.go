package state

import (
	"context"
	"time"
)

// LockStore defines the persistence boundary for lock records.
//
// Conditional writes are keyed on the owner tuple of the record the caller
// last observed, so implementations must apply them atomically.
type LockStore interface {
	Close() error
	Backend() string

	// Insert stores l if no record exists for l.ObjectID, else ErrLockExists.
	Insert(ctx context.Context, l *Lock) error
	// Get returns the record for objectID, or ErrLockNotFound.
	Get(ctx context.Context, objectID string) (*Lock, error)
	// Replace swaps old for next if old's owner still holds the object, else ErrLockChanged.
	Replace(ctx context.Context, old, next *Lock) error
	// Refresh writes l's version and expiry if l's owner holds the object, else ErrLockChanged.
	Refresh(ctx context.Context, l *Lock) error
	// Delete removes the record if l's owner holds it, else ErrLockNotFound.
	Delete(ctx context.Context, l *Lock) error
	// DeleteExpired removes the record if l's owner holds it and it expired
	// before now, else ErrLockNotFound.
	DeleteExpired(ctx context.Context, l *Lock, now time.Time) error

	FindByOwner(ctx context.Context, session, locker string) ([]*Lock, error)
	FindByObjectIDs(ctx context.Context, objectIDs []string, session, locker string) ([]*Lock, error)
	FindExpired(ctx context.Context, now time.Time) ([]*Lock, error)
}

// Ensure both backends implement LockStore
var (
	_ LockStore = (*SQLiteStore)(nil)
	_ LockStore = (*FileStore)(nil)
)
