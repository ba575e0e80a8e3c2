package lock

import (
	"context"
	"time"

	"github.com/jayteealao/objlock/internal/state"
)

// LockOperations defines the interface for lock management.
type LockOperations interface {
	CreateLock(ctx context.Context, objectID, session, locker string, version int64, override bool) (*state.Lock, error)
	CreateLockFor(ctx context.Context, objectID, session, locker string, version int64, override bool, duration time.Duration) (*state.Lock, error)
	AcquireLock(ctx context.Context, lockerID, lockKey string, waitTimeout, lockDuration time.Duration) (bool, error)
	AcquireSessionLock(ctx context.Context, session, locker, lockKey string, waitTimeout, lockDuration time.Duration) (bool, error)
	ExtendLock(ctx context.Context, objectID, session, locker string, version int64, extra time.Duration) (*state.Lock, error)
	ReleaseLock(ctx context.Context, l *state.Lock) error
	ReleaseLocks(ctx context.Context, locks []*state.Lock) error
	FindLockByObjectID(ctx context.Context, objectID, session, locker string) (*state.Lock, error)
	FindLocksByUser(ctx context.Context, session, locker string) ([]*state.Lock, error)
	FindLocksByObjectIDs(ctx context.Context, objectIDs []string, session, locker string) ([]*state.Lock, error)
	FindExpiredLocks(ctx context.Context) ([]*state.Lock, error)
	Holder(ctx context.Context, objectID string) (*state.Lock, error)
	ReapExpired(ctx context.Context) (int, error)
}

// Ensure Manager implements LockOperations
var _ LockOperations = (*Manager)(nil)
