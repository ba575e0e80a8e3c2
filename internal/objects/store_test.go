package objects

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *lock.Manager) {
	t.Helper()

	tmpDir := t.TempDir()
	lockStore, err := state.NewFileStore(filepath.Join(tmpDir, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { lockStore.Close() })

	manager := lock.NewManager(lockStore, lock.Options{})
	store, err := New(filepath.Join(tmpDir, "objects"), manager, Options{
		WaitTimeout:  2 * time.Second,
		LockDuration: time.Minute,
	})
	require.NoError(t, err)

	return store, manager
}

func writeFiles(files map[string]string) func(dir string) error {
	return func(dir string) error {
		for name, content := range files {
			path := filepath.Join(dir, name)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return err
			}
		}
		return nil
	}
}

func readFile(t *testing.T, store *Store, name, file string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(store.Path(name), file))
	require.NoError(t, err)
	return string(data)
}

func TestStore_Replace(t *testing.T) {
	store, manager := setupTestStore(t)
	ctx := context.Background()

	t.Run("create new object", func(t *testing.T) {
		err := store.Replace(ctx, "alice", "header", writeFiles(map[string]string{
			"index.html":   "v1",
			"css/site.css": "body{}",
		}))
		require.NoError(t, err)

		files, err := store.Read("header")
		require.NoError(t, err)
		assert.Equal(t, []string{"css/site.css", "index.html"}, files)
	})

	t.Run("replace existing object", func(t *testing.T) {
		err := store.Replace(ctx, "alice", "header", writeFiles(map[string]string{
			"index.html": "v2",
		}))
		require.NoError(t, err)

		files, err := store.Read("header")
		require.NoError(t, err)
		assert.Equal(t, []string{"index.html"}, files)
		assert.Equal(t, "v2", readFile(t, store, "header", "index.html"))
	})

	t.Run("failed write restores previous contents", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Replace(ctx, "alice", "header", func(dir string) error {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.html"), []byte("x"), 0644))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		files, err := store.Read("header")
		require.NoError(t, err)
		assert.Equal(t, []string{"index.html"}, files)
		assert.Equal(t, "v2", readFile(t, store, "header", "index.html"))
	})

	t.Run("failed first write leaves nothing", func(t *testing.T) {
		err := store.Replace(ctx, "alice", "footer", func(dir string) error {
			return errors.New("nope")
		})
		assert.Error(t, err)
		assert.NoDirExists(t, store.Path("footer"))
	})

	t.Run("no backups left behind", func(t *testing.T) {
		entries, err := os.ReadDir(store.root)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".bak-")
		}

		names, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"header"}, names)
	})

	t.Run("lock released after replace", func(t *testing.T) {
		_, err := manager.Holder(ctx, store.LockKey("header"))
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestStore_ReplaceWhileLocked(t *testing.T) {
	store, manager := setupTestStore(t)
	store.opts.WaitTimeout = 50 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, "alice", "nav", writeFiles(map[string]string{"a.txt": "alice"})))

	// Bob is editing nav
	ok, err := manager.AcquireLock(ctx, "bob", store.LockKey("nav"), 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = store.Replace(ctx, "alice", "nav", func(dir string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrLockTimeout)
	assert.False(t, called)
	assert.Equal(t, "alice", readFile(t, store, "nav", "a.txt"))
}

func TestStore_ConcurrentReplace(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	const editors = 5
	var wg sync.WaitGroup
	errs := make(chan error, editors)

	for i := 0; i < editors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			editor := fmt.Sprintf("editor-%d", i)
			errs <- store.Replace(ctx, editor, "shared", func(dir string) error {
				// Every writer starts from an empty directory
				entries, err := os.ReadDir(dir)
				if err != nil {
					return err
				}
				if len(entries) != 0 {
					return fmt.Errorf("%s saw %d entries in fresh directory", editor, len(entries))
				}
				time.Sleep(5 * time.Millisecond)
				return os.WriteFile(filepath.Join(dir, "owner.txt"), []byte(editor), 0644)
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	files, err := store.Read("shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner.txt"}, files)
}

func TestStore_ConcurrentReplaceSameLocker(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	const runs = 3
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, runs)

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Replace(ctx, "alice", "shared", func(dir string) error {
				n := inside.Add(1)
				defer inside.Add(-1)
				for {
					prev := maxInside.Load()
					if n <= prev || maxInside.CompareAndSwap(prev, n) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				return os.WriteFile(filepath.Join(dir, "run.txt"), []byte(fmt.Sprint(i)), 0644)
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), maxInside.Load(), "same locker wrote concurrently")

	files, err := store.Read("shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"run.txt"}, files)
}

func TestStore_ReplaceHoldsLockForWrite(t *testing.T) {
	store, manager := setupTestStore(t)
	ctx := context.Background()

	err := store.Replace(ctx, "alice", "held", func(dir string) error {
		l, err := manager.Holder(ctx, store.LockKey("held"))
		require.NoError(t, err)
		assert.Equal(t, "alice", l.Locker)
		assert.NotEqual(t, "alice", l.Session)

		// Same locker from another run must wait
		ok, err := manager.AcquireSessionLock(ctx, "alice/other", "alice", store.LockKey("held"), 0, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	_, err = manager.Holder(ctx, store.LockKey("held"))
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestStore_InvalidName(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Replace(context.Background(), "alice", "../escape", writeFiles(nil))
	assert.ErrorIs(t, err, apperrors.ErrInvalidObjectName)

	_, err = store.Read("../escape")
	assert.ErrorIs(t, err, apperrors.ErrInvalidObjectName)
}

func TestStore_ReadMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Read("ghost")
	assert.Error(t, err)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "img"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "img", "logo.svg"), []byte("<svg/>"), 0600))

	store, _ := setupTestStore(t)
	require.NoError(t, store.Replace(context.Background(), "alice", "site", CopyTree(src)))

	files, err := store.Read("site")
	require.NoError(t, err)
	assert.Equal(t, []string{"img/logo.svg", "index.html"}, files)
	assert.Equal(t, "hello", readFile(t, store, "site", "index.html"))

	info, err := os.Stat(filepath.Join(store.Path("site"), "img", "logo.svg"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
