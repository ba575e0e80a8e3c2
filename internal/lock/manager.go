// Package lock arbitrates exclusive checkout of shared objects across editor sessions.
//
// A Manager owns no state of its own beyond waiter bookkeeping: the
// state.LockStore it is built on is the single source of truth, so several
// processes sharing one store observe the same lock set.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/jayteealao/objlock/internal/validate"
	"k8s.io/klog"
)

// Retry configuration defaults
const (
	DefaultLockDuration   = 30 * time.Minute
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 10 * time.Millisecond
	defaultMaxBackoff     = 1 * time.Second
	defaultBackoffFactor  = 2
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	// DefaultDuration is used by CreateLock. Negative means "until released".
	DefaultDuration time.Duration
	// MaxAttempts bounds re-evaluation when the store changes mid-request.
	MaxAttempts int
	// InitialBackoff and MaxBackoff bound the blocking acquisition poll interval.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Clock returns the current time for lock timestamps.
	Clock func() time.Time
}

// Manager manages object locks on top of a LockStore.
type Manager struct {
	store           state.LockStore
	defaultDuration time.Duration
	maxAttempts     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	now             func() time.Time
	waiters         *waiters
	metrics         *managerMetrics
}

// NewManager creates a new lock manager backed by store.
func NewManager(store state.LockStore, opts Options) *Manager {
	m := &Manager{
		store:           store,
		defaultDuration: opts.DefaultDuration,
		maxAttempts:     opts.MaxAttempts,
		initialBackoff:  opts.InitialBackoff,
		maxBackoff:      opts.MaxBackoff,
		now:             opts.Clock,
		waiters:         newWaiters(),
		metrics:         newManagerMetrics(),
	}
	if m.defaultDuration == 0 {
		m.defaultDuration = DefaultLockDuration
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	if m.initialBackoff <= 0 {
		m.initialBackoff = defaultInitialBackoff
	}
	if m.maxBackoff < m.initialBackoff {
		m.maxBackoff = defaultMaxBackoff
		if m.maxBackoff < m.initialBackoff {
			m.maxBackoff = m.initialBackoff
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Store returns the backing lock store.
func (m *Manager) Store() state.LockStore {
	return m.store
}

// CreateLock acquires objectID for (session, locker) without waiting, using
// the manager's default duration.
//
// A lock already held by the same (session, locker) is refreshed and returned.
// A lock held by another locker fails with an identity conflict regardless of
// override. A lock held by the same locker under another session fails with a
// session conflict unless override is set, in which case it is superseded.
func (m *Manager) CreateLock(ctx context.Context, objectID, session, locker string, version int64, override bool) (*state.Lock, error) {
	return m.CreateLockFor(ctx, objectID, session, locker, version, override, m.defaultDuration)
}

// CreateLockFor is CreateLock with an explicit duration. A non-positive
// duration holds the lock until released.
func (m *Manager) CreateLockFor(ctx context.Context, objectID, session, locker string, version int64, override bool, duration time.Duration) (*state.Lock, error) {
	if err := validate.ObjectID(objectID); err != nil {
		return nil, err
	}
	if err := validate.Owner(session, locker); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		l, retry, err := m.tryCreate(ctx, objectID, session, locker, version, override, duration)
		if !retry {
			return l, err
		}
		klog.V(4).Infof("lock %s changed during create (attempt %d), retrying", objectID, attempt+1)
	}

	// Out of attempts: report whoever won the last race, if anyone still holds it.
	cur, err := m.store.Get(ctx, objectID)
	if err == nil {
		if cur.Locker != locker {
			return nil, m.conflict(apperrors.CodeIdentityConflict, cur)
		}
		if cur.Session != session && !override {
			return nil, m.conflict(apperrors.CodeSessionConflict, cur)
		}
	} else if !errors.Is(err, apperrors.ErrLockNotFound) {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	return nil, fmt.Errorf("%w: %s", apperrors.ErrConcurrentModification, objectID)
}

// tryCreate makes one decision against the current record. retry reports that
// the record changed between read and write.
func (m *Manager) tryCreate(ctx context.Context, objectID, session, locker string, version int64, override bool, duration time.Duration) (*state.Lock, bool, error) {
	now := m.now()

	cur, err := m.store.Get(ctx, objectID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrLockNotFound) {
			return nil, false, fmt.Errorf("failed to read lock: %w", err)
		}

		l := &state.Lock{
			ObjectID:  objectID,
			Session:   session,
			Locker:    locker,
			Version:   version,
			CreatedAt: now,
			ExpiresAt: state.ExpiryFrom(now, duration),
		}
		if err := m.store.Insert(ctx, l); err != nil {
			if errors.Is(err, apperrors.ErrLockExists) {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("failed to create lock: %w", err)
		}

		m.metrics.created.Inc()
		klog.V(1).Infof("lock %s created for %s (session %s)", objectID, locker, session)
		return l, false, nil
	}

	if cur.Locker != locker {
		return nil, false, m.conflict(apperrors.CodeIdentityConflict, cur)
	}

	if cur.Session == session {
		refreshed := cur.Clone()
		refreshed.Version = version
		refreshed.ExpiresAt = state.ExpiryFrom(now, duration)
		if err := m.store.Refresh(ctx, refreshed); err != nil {
			if errors.Is(err, apperrors.ErrLockChanged) {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("failed to refresh lock: %w", err)
		}

		m.metrics.refreshed.Inc()
		return refreshed, false, nil
	}

	if !override {
		return nil, false, m.conflict(apperrors.CodeSessionConflict, cur)
	}

	next := &state.Lock{
		ObjectID:  objectID,
		Session:   session,
		Locker:    locker,
		Version:   version,
		CreatedAt: now,
		ExpiresAt: state.ExpiryFrom(now, duration),
	}
	if err := m.store.Replace(ctx, cur, next); err != nil {
		if errors.Is(err, apperrors.ErrLockChanged) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("failed to supersede lock: %w", err)
	}

	m.metrics.superseded.Inc()
	m.waiters.notify(objectID)
	klog.V(1).Infof("lock %s moved from session %s to %s for %s", objectID, cur.Session, session, locker)
	return next, false, nil
}

// AcquireLock blocks until lockKey is held by lockerID or waitTimeout elapses.
// lockerID serves as both session and locker. It returns false without an
// error on timeout; errors are reserved for backend failures and ctx.
func (m *Manager) AcquireLock(ctx context.Context, lockerID, lockKey string, waitTimeout, lockDuration time.Duration) (bool, error) {
	return m.AcquireSessionLock(ctx, lockerID, lockerID, lockKey, waitTimeout, lockDuration)
}

// AcquireSessionLock is AcquireLock for an explicit (session, locker). A lock
// held by the same locker under another session is waited for, not taken over.
func (m *Manager) AcquireSessionLock(ctx context.Context, session, locker, lockKey string, waitTimeout, lockDuration time.Duration) (bool, error) {
	start := time.Now()
	deadline := start.Add(waitTimeout)
	backoff := m.initialBackoff

	for {
		// Register before trying so a release right after our attempt still wakes us.
		wake, done := m.waiters.wait(lockKey)

		_, err := m.CreateLockFor(ctx, lockKey, session, locker, 0, false, lockDuration)
		if err == nil {
			done()
			m.metrics.observeWait(start)
			return true, nil
		}
		if !apperrors.IsConflict(err) && !errors.Is(err, apperrors.ErrConcurrentModification) {
			done()
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			done()
			m.metrics.timeouts.Inc()
			klog.V(2).Infof("gave up acquiring %s for %s after %v: %v", lockKey, locker, waitTimeout, err)
			return false, nil
		}

		timer := time.NewTimer(min(backoff, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			done()
			return false, ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
		done()

		backoff = min(backoff*defaultBackoffFactor, m.maxBackoff)
	}
}

// ExtendLock pushes the expiry of a lock held by (session, locker) to now+extra.
// A non-positive extra holds the lock until released.
func (m *Manager) ExtendLock(ctx context.Context, objectID, session, locker string, version int64, extra time.Duration) (*state.Lock, error) {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		cur, err := m.store.Get(ctx, objectID)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				return nil, apperrors.NewLockError(apperrors.CodeNotFound, objectID, "")
			}
			return nil, fmt.Errorf("failed to read lock: %w", err)
		}

		if cur.Locker != locker {
			return nil, m.conflict(apperrors.CodeIdentityConflict, cur)
		}
		if cur.Session != session {
			return nil, m.conflict(apperrors.CodeSessionConflict, cur)
		}

		extended := cur.Clone()
		extended.Version = version
		extended.ExpiresAt = state.ExpiryFrom(m.now(), extra)
		if err := m.store.Refresh(ctx, extended); err != nil {
			if errors.Is(err, apperrors.ErrLockChanged) {
				klog.V(4).Infof("lock %s changed during extend (attempt %d), rereading", objectID, attempt+1)
				continue
			}
			return nil, fmt.Errorf("failed to extend lock: %w", err)
		}

		m.metrics.extended.Inc()
		return extended, nil
	}

	return nil, fmt.Errorf("%w: %s", apperrors.ErrConcurrentModification, objectID)
}

// ReleaseLock removes l if its owner still holds it, else reports NOT_FOUND.
func (m *Manager) ReleaseLock(ctx context.Context, l *state.Lock) error {
	if l == nil {
		return fmt.Errorf("cannot release a nil lock")
	}

	if err := m.store.Delete(ctx, l); err != nil {
		if errors.Is(err, apperrors.ErrLockNotFound) {
			return apperrors.NewLockError(apperrors.CodeNotFound, l.ObjectID, "")
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}

	m.metrics.released.Inc()
	m.waiters.notify(l.ObjectID)
	klog.V(1).Infof("lock %s released by %s (session %s)", l.ObjectID, l.Locker, l.Session)
	return nil
}

// ReleaseLocks releases every lock, skipping ones already gone. Other
// failures are collected and returned together after all locks are tried.
func (m *Manager) ReleaseLocks(ctx context.Context, locks []*state.Lock) error {
	var errs []error
	for _, l := range locks {
		if l == nil {
			continue
		}
		if err := m.ReleaseLock(ctx, l); err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FindLockByObjectID returns the lock on objectID only if (session, locker) holds it.
func (m *Manager) FindLockByObjectID(ctx context.Context, objectID, session, locker string) (*state.Lock, error) {
	cur, err := m.store.Get(ctx, objectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrLockNotFound) {
			return nil, apperrors.NewLockError(apperrors.CodeNotFound, objectID, "")
		}
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}
	if !cur.HeldBy(session, locker) {
		return nil, apperrors.NewLockError(apperrors.CodeNotFound, objectID, "")
	}
	return cur, nil
}

// Holder returns the lock on objectID whoever holds it.
func (m *Manager) Holder(ctx context.Context, objectID string) (*state.Lock, error) {
	cur, err := m.store.Get(ctx, objectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrLockNotFound) {
			return nil, apperrors.NewLockError(apperrors.CodeNotFound, objectID, "")
		}
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}
	return cur, nil
}

// FindLocksByUser returns every lock held by (session, locker).
func (m *Manager) FindLocksByUser(ctx context.Context, session, locker string) ([]*state.Lock, error) {
	locks, err := m.store.FindByOwner(ctx, session, locker)
	if err != nil {
		return nil, fmt.Errorf("failed to find locks for %s: %w", locker, err)
	}
	return locks, nil
}

// FindLocksByObjectIDs returns the locks among objectIDs held by (session, locker).
func (m *Manager) FindLocksByObjectIDs(ctx context.Context, objectIDs []string, session, locker string) ([]*state.Lock, error) {
	locks, err := m.store.FindByObjectIDs(ctx, objectIDs, session, locker)
	if err != nil {
		return nil, fmt.Errorf("failed to find locks by object id: %w", err)
	}
	return locks, nil
}

// FindExpiredLocks returns locks past their expiry. Nothing is released.
func (m *Manager) FindExpiredLocks(ctx context.Context) ([]*state.Lock, error) {
	locks, err := m.store.FindExpired(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find expired locks: %w", err)
	}
	return locks, nil
}

// ReapExpired releases expired locks and returns how many were released.
// Each delete is conditional on the lock still being expired, so a lock
// extended after the scan is left alone.
func (m *Manager) ReapExpired(ctx context.Context) (int, error) {
	expired, err := m.FindExpiredLocks(ctx)
	if err != nil {
		return 0, err
	}

	released := 0
	var errs []error
	for _, l := range expired {
		if err := m.store.DeleteExpired(ctx, l, m.now()); err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to release expired lock %s: %w", l.ObjectID, err))
			continue
		}

		released++
		m.metrics.released.Inc()
		m.waiters.notify(l.ObjectID)
		klog.V(1).Infof("expired lock %s of %s (session %s) released", l.ObjectID, l.Locker, l.Session)
	}

	if released > 0 {
		klog.Infof("released %d expired lock(s)", released)
	}
	return released, errors.Join(errs...)
}

// conflict records and builds a conflict error against the current holder.
func (m *Manager) conflict(code apperrors.Code, holder *state.Lock) error {
	m.metrics.conflict(code)
	klog.V(2).Infof("lock %s conflict %s: held by %s (session %s)", holder.ObjectID, code, holder.Locker, holder.Session)
	return apperrors.NewLockError(code, holder.ObjectID, holder.Locker)
}
