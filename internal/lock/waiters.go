package lock

import "github.com/puzpuzpuz/xsync/v3"

// waiters wakes blocked acquirers in this process when a key is released.
// Each key maps to a channel that is closed, and dropped, on notify. An
// entry is also dropped once its last waiter leaves, so keys released by
// other processes do not accumulate.
type waiters struct {
	entries *xsync.MapOf[string, *waitEntry]
}

type waitEntry struct {
	ch   chan struct{}
	refs int
}

func newWaiters() *waiters {
	return &waiters{entries: xsync.NewMapOf[string, *waitEntry]()}
}

// wait returns a channel closed by the next notify for key, and a func the
// caller must call once it stops waiting on that channel.
// Callers must obtain it before checking the store, or a release may be missed.
func (w *waiters) wait(key string) (<-chan struct{}, func()) {
	var ch chan struct{}
	w.entries.Compute(key, func(e *waitEntry, loaded bool) (*waitEntry, bool) {
		if !loaded {
			e = &waitEntry{ch: make(chan struct{})}
		}
		e.refs++
		ch = e.ch
		return e, false
	})
	return ch, func() { w.leave(key, ch) }
}

// leave drops one waiter from key's entry, removing the entry when it was the last.
func (w *waiters) leave(key string, ch chan struct{}) {
	w.entries.Compute(key, func(e *waitEntry, loaded bool) (*waitEntry, bool) {
		if !loaded {
			return e, true
		}
		// Entry was notified and replaced since we joined
		if e.ch != ch {
			return e, false
		}
		e.refs--
		return e, e.refs == 0
	})
}

// notify wakes everyone waiting on key.
func (w *waiters) notify(key string) {
	if e, ok := w.entries.LoadAndDelete(key); ok {
		close(e.ch)
	}
}

// size returns the number of keys with pending waiters.
func (w *waiters) size() int {
	return w.entries.Size()
}
