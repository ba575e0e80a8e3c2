package state

import "time"

// Lock is the durable record of exclusive ownership of one object.
type Lock struct {
	ObjectID string
	Session  string
	Locker   string
	// Version is carried through for callers' optimistic concurrency checks.
	Version   int64
	CreatedAt time.Time
	// ExpiresAt is zero for locks held until released.
	ExpiresAt time.Time
}

// HeldBy reports whether the lock belongs to the given owner tuple.
func (l *Lock) HeldBy(session, locker string) bool {
	return l.Session == session && l.Locker == locker
}

// Expired reports whether the lock has a deadline before now.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && l.ExpiresAt.Before(now)
}

// Clone returns a copy of the lock.
func (l *Lock) Clone() *Lock {
	c := *l
	return &c
}

// ExpiryFrom returns now+d, or the zero time when d is not positive.
func ExpiryFrom(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return now.Add(d)
}
