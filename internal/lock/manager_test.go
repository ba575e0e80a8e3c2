package lock

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T, backend string) (*Manager, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "objlock-lock-test-*")
	require.NoError(t, err)

	store, err := state.Open(state.Config{Backend: backend, DataDir: tmpDir})
	require.NoError(t, err)

	manager := NewManager(store, Options{DefaultDuration: time.Minute})

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return manager, cleanup
}

// forEachBackend runs fn against a fresh manager on every store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, manager *Manager)) {
	for _, backend := range state.Backends() {
		t.Run(backend, func(t *testing.T) {
			manager, cleanup := setupTestManager(t, backend)
			defer cleanup()
			fn(t, manager)
		})
	}
}

func TestManager_CreateLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		t.Run("create new lock", func(t *testing.T) {
			l, err := manager.CreateLock(ctx, "doc-1", "s", "l", 4, false)
			require.NoError(t, err)
			assert.Equal(t, "doc-1", l.ObjectID)
			assert.Equal(t, "s", l.Session)
			assert.Equal(t, "l", l.Locker)
			assert.Equal(t, int64(4), l.Version)
			assert.False(t, l.ExpiresAt.IsZero())
		})

		t.Run("idempotent re-acquire", func(t *testing.T) {
			first, err := manager.CreateLock(ctx, "doc-2", "s", "l", 0, false)
			require.NoError(t, err)

			second, err := manager.CreateLock(ctx, "doc-2", "s", "l", 0, false)
			require.NoError(t, err)
			assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "same logical lock")
			assert.False(t, second.ExpiresAt.Before(first.ExpiresAt))

			third, err := manager.CreateLock(ctx, "doc-2", "s", "l", 0, true)
			require.NoError(t, err)
			assert.True(t, first.CreatedAt.Equal(third.CreatedAt))

			locks, err := manager.FindLocksByUser(ctx, "s", "l")
			require.NoError(t, err)
			count := 0
			for _, l := range locks {
				if l.ObjectID == "doc-2" {
					count++
				}
			}
			assert.Equal(t, 1, count)
		})

		t.Run("identity conflict with and without override", func(t *testing.T) {
			_, err := manager.CreateLock(ctx, "doc-3", "s", "l", 0, false)
			require.NoError(t, err)

			_, err = manager.CreateLock(ctx, "doc-3", "s2", "l2", 0, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrIdentityConflict)
			assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))
			assert.Contains(t, err.Error(), "being edited by l")

			_, err = manager.CreateLock(ctx, "doc-3", "s2", "l2", 0, true)
			assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))

			// Same session id does not make a different locker the owner
			_, err = manager.CreateLock(ctx, "doc-3", "s", "l2", 0, true)
			assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))

			holder, err := manager.Holder(ctx, "doc-3")
			require.NoError(t, err)
			assert.Equal(t, "l", holder.Locker)
		})

		t.Run("session conflict then override", func(t *testing.T) {
			_, err := manager.CreateLock(ctx, "doc-4", "s", "l", 0, false)
			require.NoError(t, err)

			_, err = manager.CreateLock(ctx, "doc-4", "s2", "l", 0, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSessionConflict)
			assert.Equal(t, apperrors.CodeSessionConflict, apperrors.CodeOf(err))

			l, err := manager.CreateLock(ctx, "doc-4", "s2", "l", 0, true)
			require.NoError(t, err)
			assert.Equal(t, "s2", l.Session)

			found, err := manager.FindLockByObjectID(ctx, "doc-4", "s2", "l")
			require.NoError(t, err)
			assert.Equal(t, "s2", found.Session)

			_, err = manager.FindLockByObjectID(ctx, "doc-4", "s", "l")
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
			assert.ErrorIs(t, err, apperrors.ErrLockNotFound)
		})

		t.Run("invalid input", func(t *testing.T) {
			_, err := manager.CreateLock(ctx, "", "s", "l", 0, false)
			assert.ErrorIs(t, err, apperrors.ErrInvalidObjectID)

			_, err = manager.CreateLock(ctx, "doc-x", "", "l", 0, false)
			assert.ErrorIs(t, err, apperrors.ErrInvalidSession)

			_, err = manager.CreateLock(ctx, "doc-x", "s", "", 0, false)
			assert.ErrorIs(t, err, apperrors.ErrInvalidLocker)
		})

		t.Run("non-positive duration holds until released", func(t *testing.T) {
			l, err := manager.CreateLockFor(ctx, "doc-5", "s", "l", 0, false, 0)
			require.NoError(t, err)
			assert.True(t, l.ExpiresAt.IsZero())

			expired, err := manager.FindExpiredLocks(ctx)
			require.NoError(t, err)
			assert.NotContains(t, lockIDs(expired), "doc-5")
		})
	})
}

func TestManager_ConcurrentCreateLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		const workers = 20
		var wins atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				locker := fmt.Sprintf("user-%d", i)
				_, err := manager.CreateLock(ctx, "hot-object", "session-"+locker, locker, 0, true)
				if err == nil {
					wins.Add(1)
					return
				}
				if apperrors.CodeOf(err) != apperrors.CodeIdentityConflict {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestManager_ExtendLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		l, err := manager.CreateLock(ctx, "ext", "s", "l", 0, false)
		require.NoError(t, err)

		t.Run("extend by owner", func(t *testing.T) {
			extended, err := manager.ExtendLock(ctx, "ext", "s", "l", 2, 200*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, int64(2), extended.Version)
			assert.True(t, l.CreatedAt.Equal(extended.CreatedAt))

			expired, err := manager.FindExpiredLocks(ctx)
			require.NoError(t, err)
			assert.NotContains(t, lockIDs(expired), "ext")

			time.Sleep(300 * time.Millisecond)

			expired, err = manager.FindExpiredLocks(ctx)
			require.NoError(t, err)
			assert.Contains(t, lockIDs(expired), "ext")

			// Expired but not released
			found, err := manager.FindLockByObjectID(ctx, "ext", "s", "l")
			require.NoError(t, err)
			assert.Equal(t, "ext", found.ObjectID)
		})

		t.Run("extend by other locker", func(t *testing.T) {
			_, err := manager.ExtendLock(ctx, "ext", "s", "intruder", 0, time.Minute)
			assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))
		})

		t.Run("extend from other session", func(t *testing.T) {
			_, err := manager.ExtendLock(ctx, "ext", "s-other", "l", 0, time.Minute)
			assert.Equal(t, apperrors.CodeSessionConflict, apperrors.CodeOf(err))
		})

		t.Run("extend missing lock", func(t *testing.T) {
			_, err := manager.ExtendLock(ctx, "nothing", "s", "l", 0, time.Minute)
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		})
	})
}

func TestManager_Release(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		l, err := manager.CreateLock(ctx, "rel", "s", "l", 0, false)
		require.NoError(t, err)

		t.Run("bulk release is idempotent", func(t *testing.T) {
			require.NoError(t, manager.ReleaseLocks(ctx, []*state.Lock{l}))
			require.NoError(t, manager.ReleaseLocks(ctx, []*state.Lock{l}))

			_, err := manager.Holder(ctx, "rel")
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		})

		t.Run("single release of absent lock", func(t *testing.T) {
			err := manager.ReleaseLock(ctx, l)
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		})

		t.Run("release by non owner leaves lock", func(t *testing.T) {
			held, err := manager.CreateLock(ctx, "rel-2", "s", "l", 0, false)
			require.NoError(t, err)

			forged := held.Clone()
			forged.Locker = "mallory"
			assert.Error(t, manager.ReleaseLock(ctx, forged))

			_, err = manager.FindLockByObjectID(ctx, "rel-2", "s", "l")
			assert.NoError(t, err)
		})

		t.Run("nil lock", func(t *testing.T) {
			assert.Error(t, manager.ReleaseLock(ctx, nil))
			assert.NoError(t, manager.ReleaseLocks(ctx, []*state.Lock{nil}))
		})

		t.Run("released object can be locked by someone else", func(t *testing.T) {
			_, err := manager.CreateLock(ctx, "rel", "s9", "other", 0, false)
			assert.NoError(t, err)
		})
	})
}

func TestManager_Queries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		for _, id := range []string{"q1", "q2", "q3"} {
			_, err := manager.CreateLock(ctx, id, "s", "alice", 0, false)
			require.NoError(t, err)
		}
		_, err := manager.CreateLock(ctx, "q4", "s", "bob", 0, false)
		require.NoError(t, err)
		_, err = manager.CreateLockFor(ctx, "q5", "s", "bob", 0, false, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		t.Run("by user", func(t *testing.T) {
			locks, err := manager.FindLocksByUser(ctx, "s", "alice")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"q1", "q2", "q3"}, lockIDs(locks))
		})

		t.Run("by object ids", func(t *testing.T) {
			locks, err := manager.FindLocksByObjectIDs(ctx, []string{"q1", "q3", "q4", "missing"}, "s", "alice")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"q1", "q3"}, lockIDs(locks))
		})

		t.Run("expired is read only", func(t *testing.T) {
			expired, err := manager.FindExpiredLocks(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"q5"}, lockIDs(expired))

			again, err := manager.FindExpiredLocks(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"q5"}, lockIDs(again))
		})

		t.Run("reap releases expired only", func(t *testing.T) {
			n, err := manager.ReapExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = manager.Holder(ctx, "q5")
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
			_, err = manager.Holder(ctx, "q4")
			assert.NoError(t, err)
		})
	})
}

func TestManager_AcquireLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		t.Run("acquire free key", func(t *testing.T) {
			ok, err := manager.AcquireLock(ctx, "worker-1", "key-a", 100*time.Millisecond, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			l, err := manager.FindLockByObjectID(ctx, "key-a", "worker-1", "worker-1")
			require.NoError(t, err)
			assert.False(t, l.ExpiresAt.IsZero())
		})

		t.Run("timeout returns false without error", func(t *testing.T) {
			start := time.Now()
			ok, err := manager.AcquireLock(ctx, "worker-2", "key-a", 80*time.Millisecond, time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
			assert.Equal(t, 0, manager.waiters.size(), "timed out waiter left its entry behind")
		})

		t.Run("zero timeout tries once", func(t *testing.T) {
			ok, err := manager.AcquireLock(ctx, "worker-2", "key-a", 0, time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("non-positive duration holds until released", func(t *testing.T) {
			ok, err := manager.AcquireLock(ctx, "worker-3", "key-forever", 0, 0)
			require.NoError(t, err)
			require.True(t, ok)

			l, err := manager.Holder(ctx, "key-forever")
			require.NoError(t, err)
			assert.True(t, l.ExpiresAt.IsZero())
		})

		t.Run("cancelled context", func(t *testing.T) {
			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()

			ok, err := manager.AcquireLock(cctx, "worker-2", "key-a", 5*time.Second, time.Minute)
			assert.False(t, ok)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})

		t.Run("invalid key is an error", func(t *testing.T) {
			ok, err := manager.AcquireLock(ctx, "worker-2", "", time.Second, time.Minute)
			assert.False(t, ok)
			assert.ErrorIs(t, err, apperrors.ErrInvalidObjectID)
		})
	})
}

func TestManager_AcquireLockWakesOnRelease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		// Poll interval far longer than the wait, so only a notify can wake it early
		manager.initialBackoff = 2 * time.Second
		manager.maxBackoff = 2 * time.Second

		held, err := manager.CreateLock(ctx, "wake-key", "holder", "holder", 0, false)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			manager.ReleaseLock(ctx, held)
		}()

		start := time.Now()
		ok, err := manager.AcquireLock(ctx, "waiter", "wake-key", 5*time.Second, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Less(t, time.Since(start), time.Second)
	})
}

// TestManager_AcquireLockContention has 10 workers x 10 iterations contend
// for two keys, tracking how many workers believe they hold each key.
func TestManager_AcquireLockContention(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		const (
			workers    = 10
			iterations = 10
		)
		keys := []string{ObjectKey("design", "header"), ObjectKey("design", "footer")}

		var held [2]atomic.Int32
		var maxHeld [2]atomic.Int32
		var acquired atomic.Int32

		var wg sync.WaitGroup
		errs := make(chan error, workers*iterations)

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()

				rng := rand.New(rand.NewPCG(uint64(w), 42))
				locker := fmt.Sprintf("editor-%d", w)
				holding := map[int]bool{}

				release := func(k int) {
					held[k].Add(-1)
					delete(holding, k)
					err := manager.ReleaseLock(ctx, &state.Lock{ObjectID: keys[k], Session: locker, Locker: locker})
					if err != nil {
						errs <- err
					}
				}

				for i := 0; i < iterations; i++ {
					k := rng.IntN(len(keys))
					wait := time.Duration(10+rng.IntN(60)) * time.Millisecond

					ok, err := manager.AcquireLock(ctx, locker, keys[k], wait, 0)
					if err != nil {
						errs <- err
						continue
					}
					if !ok {
						continue
					}
					acquired.Add(1)

					if !holding[k] {
						holding[k] = true
						n := held[k].Add(1)
						for {
							prev := maxHeld[k].Load()
							if n <= prev || maxHeld[k].CompareAndSwap(prev, n) {
								break
							}
						}
					}

					time.Sleep(time.Duration(rng.IntN(3)) * time.Millisecond)

					if rng.Float64() < 0.7 {
						release(k)
					}
				}

				for k := range holding {
					release(k)
				}
			}(w)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}
		for k := range keys {
			assert.LessOrEqual(t, maxHeld[k].Load(), int32(1), "key %d held concurrently", k)
			assert.Equal(t, int32(0), held[k].Load())
		}
		assert.Positive(t, acquired.Load())
	})
}

// TestManager_AcquireLockChurn has many lockers hammer one key, releasing as
// soon as they get it, so inserts keep losing races to fresh holders.
func TestManager_AcquireLockChurn(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		const (
			workers    = 20
			iterations = 25
		)

		var held, maxHeld, acquired atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, workers*iterations)

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				locker := fmt.Sprintf("e-%d", w)

				for i := 0; i < iterations; i++ {
					ok, err := manager.AcquireLock(ctx, locker, "churn", 500*time.Millisecond, 0)
					if err != nil {
						errs <- err
						continue
					}
					if !ok {
						continue
					}
					acquired.Add(1)

					n := held.Add(1)
					for {
						prev := maxHeld.Load()
						if n <= prev || maxHeld.CompareAndSwap(prev, n) {
							break
						}
					}
					held.Add(-1)

					if err := manager.ReleaseLock(ctx, &state.Lock{ObjectID: "churn", Session: locker, Locker: locker}); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}
		assert.LessOrEqual(t, maxHeld.Load(), int32(1))
		assert.Positive(t, acquired.Load())
		assert.Equal(t, 0, manager.waiters.size())
	})
}

// racingStore lets a test run a competing change right before a store call.
type racingStore struct {
	state.LockStore
	missingGets         int
	beforeRefresh       func()
	beforeDeleteExpired func()
}

func (r *racingStore) Get(ctx context.Context, objectID string) (*state.Lock, error) {
	if r.missingGets > 0 {
		r.missingGets--
		return nil, apperrors.ErrLockNotFound
	}
	return r.LockStore.Get(ctx, objectID)
}

func (r *racingStore) Refresh(ctx context.Context, l *state.Lock) error {
	if f := r.beforeRefresh; f != nil {
		r.beforeRefresh = nil
		f()
	}
	return r.LockStore.Refresh(ctx, l)
}

func (r *racingStore) DeleteExpired(ctx context.Context, l *state.Lock, now time.Time) error {
	if f := r.beforeDeleteExpired; f != nil {
		r.beforeDeleteExpired = nil
		f()
	}
	return r.LockStore.DeleteExpired(ctx, l, now)
}

func TestManager_CreateLockRetriesExhausted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()

		_, err := manager.CreateLock(ctx, "raced", "b1", "bob", 0, false)
		require.NoError(t, err)

		// Every decision sees a free object, and every insert loses
		racing := &racingStore{LockStore: manager.Store(), missingGets: defaultMaxAttempts}
		contender := NewManager(racing, Options{})

		_, err = contender.CreateLock(ctx, "raced", "a1", "alice", 0, false)
		assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))
		assert.NotErrorIs(t, err, apperrors.ErrConcurrentModification)
	})
}

func TestManager_ExtendLockRaced(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()
		racing := &racingStore{LockStore: manager.Store()}
		extender := NewManager(racing, Options{})

		t.Run("overridden by own other session", func(t *testing.T) {
			_, err := manager.CreateLock(ctx, "ext-a", "s1", "alice", 0, false)
			require.NoError(t, err)

			racing.beforeRefresh = func() {
				_, err := manager.CreateLock(ctx, "ext-a", "s2", "alice", 0, true)
				require.NoError(t, err)
			}

			_, err = extender.ExtendLock(ctx, "ext-a", "s1", "alice", 0, time.Hour)
			assert.Equal(t, apperrors.CodeSessionConflict, apperrors.CodeOf(err))
		})

		t.Run("released and taken by another locker", func(t *testing.T) {
			held, err := manager.CreateLock(ctx, "ext-b", "s1", "alice", 0, false)
			require.NoError(t, err)

			racing.beforeRefresh = func() {
				require.NoError(t, manager.ReleaseLock(ctx, held))
				_, err := manager.CreateLock(ctx, "ext-b", "b1", "bob", 0, false)
				require.NoError(t, err)
			}

			_, err = extender.ExtendLock(ctx, "ext-b", "s1", "alice", 0, time.Hour)
			assert.Equal(t, apperrors.CodeIdentityConflict, apperrors.CodeOf(err))
		})

		t.Run("released", func(t *testing.T) {
			held, err := manager.CreateLock(ctx, "ext-c", "s1", "alice", 0, false)
			require.NoError(t, err)

			racing.beforeRefresh = func() {
				require.NoError(t, manager.ReleaseLock(ctx, held))
			}

			_, err = extender.ExtendLock(ctx, "ext-c", "s1", "alice", 0, time.Hour)
			assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
		})
	})
}

func TestManager_ReapSkipsExtendedLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, manager *Manager) {
		ctx := context.Background()
		racing := &racingStore{LockStore: manager.Store()}
		reaper := NewManager(racing, Options{})

		_, err := manager.CreateLockFor(ctx, "late", "s", "alice", 0, false, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		// Owner extends between the scan and the delete
		racing.beforeDeleteExpired = func() {
			_, err := manager.ExtendLock(ctx, "late", "s", "alice", 0, time.Hour)
			require.NoError(t, err)
		}

		n, err := reaper.ReapExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		l, err := manager.Holder(ctx, "late")
		require.NoError(t, err)
		assert.False(t, l.Expired(time.Now()))
	})
}

func TestManager_Metrics(t *testing.T) {
	manager, cleanup := setupTestManager(t, state.BackendSQLite)
	defer cleanup()

	ctx := context.Background()
	l, err := manager.CreateLock(ctx, "m", "s", "l", 0, false)
	require.NoError(t, err)
	_, err = manager.CreateLock(ctx, "m", "s2", "l2", 0, false)
	require.Error(t, err)
	require.NoError(t, manager.ReleaseLock(ctx, l))

	var buf bytes.Buffer
	manager.WriteMetrics(&buf)
	out := buf.String()

	assert.Contains(t, out, "objlock_locks_created_total 1")
	assert.Contains(t, out, "objlock_locks_released_total 1")
	assert.Contains(t, out, `objlock_lock_conflicts_total{code="IDENTITY_CONFLICT"} 1`)
}

func TestNewManager_Defaults(t *testing.T) {
	manager := NewManager(nil, Options{})
	assert.Equal(t, DefaultLockDuration, manager.defaultDuration)
	assert.Equal(t, defaultMaxAttempts, manager.maxAttempts)
	assert.Equal(t, defaultInitialBackoff, manager.initialBackoff)
	assert.Equal(t, defaultMaxBackoff, manager.maxBackoff)
	assert.NotNil(t, manager.now)
}

func lockIDs(locks []*state.Lock) []string {
	ids := make([]string, 0, len(locks))
	for _, l := range locks {
		ids = append(ids, l.ObjectID)
	}
	return ids
}
