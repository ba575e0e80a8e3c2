// Package objects provides a filesystem-backed store of design objects whose
// contents are replaced atomically under an object lock.
package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/recoverable"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/jayteealao/objlock/internal/validate"
	"k8s.io/klog"
)

// Locker is the part of the lock manager the store needs.
type Locker interface {
	AcquireSessionLock(ctx context.Context, session, locker, lockKey string, waitTimeout, lockDuration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, l *state.Lock) error
}

// Options configures lock behaviour for replacements.
type Options struct {
	WaitTimeout  time.Duration
	LockDuration time.Duration
	OnVerbose    func(msg string) // Callback for verbose messages
}

// Store keeps each design object as a directory under root.
type Store struct {
	root   string
	locker Locker
	opts   Options
}

// New creates a Store rooted at root, creating the directory if needed.
func New(root string, locker Locker, opts Options) (*Store, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}
	if opts.OnVerbose == nil {
		opts.OnVerbose = func(msg string) {}
	}
	return &Store{root: root, locker: locker, opts: opts}, nil
}

// Path returns the directory holding the named object.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// LockKey returns the lock key guarding the named object.
func (s *Store) LockKey(name string) string {
	return lock.PathKey(s.Path(name))
}

// Replace swaps the named object's contents for whatever write produces.
//
// The old directory is moved aside before write runs against a fresh
// directory. If write fails the partial directory is removed and the old one
// restored; otherwise the old one is deleted. The object lock is held for the
// whole operation.
func (s *Store) Replace(ctx context.Context, lockerID, name string, write func(dir string) error) error {
	if err := validate.ObjectName(name); err != nil {
		return err
	}

	dir := s.Path(name)
	key := lock.PathKey(dir)

	// Unique per call, so concurrent runs by one locker exclude each other
	session := lockerID + "/" + uuid.NewString()

	s.opts.OnVerbose(fmt.Sprintf("Acquiring lock for %s...", name))
	ok, err := s.locker.AcquireSessionLock(ctx, session, lockerID, key, s.opts.WaitTimeout, s.opts.LockDuration)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, apperrors.ErrLockTimeout)
	}
	defer func() {
		held := &state.Lock{ObjectID: key, Session: session, Locker: lockerID}
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), held); err != nil {
			klog.Warningf("failed to release lock for %s: %v", name, err)
		}
	}()

	backup := filepath.Join(s.root, fmt.Sprintf(".%s.bak-%s", name, uuid.NewString()))
	original := recoverable.New(dir)
	renamed, err := original.RenameTo(backup)
	if err != nil {
		return fmt.Errorf("failed to move %s aside: %w", name, err)
	}
	if renamed {
		s.opts.OnVerbose(fmt.Sprintf("Moved current %s aside to %s", name, filepath.Base(backup)))
	}

	// Set up rollback on failure
	success := false
	defer func() {
		if success {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			klog.Errorf("failed to remove partial contents of %s: %v", name, err)
			return
		}
		if !renamed {
			return
		}
		if ok, err := original.Recover(); err != nil || !ok {
			klog.Errorf("failed to restore %s from %s (recovered=%v): %v", name, backup, ok, err)
		}
	}()

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}

	if err := checkContext(ctx); err != nil {
		return fmt.Errorf("replace cancelled: %w", err)
	}

	if err := write(dir); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	success = true

	if renamed {
		if _, err := original.Delete(); err != nil {
			// New contents are committed; only the backup is left behind
			klog.Warningf("failed to delete backup %s: %v", backup, err)
		}
	}

	s.opts.OnVerbose(fmt.Sprintf("Replaced %s", name))
	return nil
}

// Read lists the files of the named object, relative to its directory.
func (s *Store) Read(name string) ([]string, error) {
	if err := validate.ObjectName(name); err != nil {
		return nil, err
	}

	dir := s.Path(name)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %q not found", name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	sort.Strings(files)
	return files, nil
}

// List returns the names of stored objects. Backups are skipped.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// CopyTree returns a write function that copies the tree at src into dir.
func CopyTree(src string) func(dir string) error {
	return func(dir string) error {
		return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			target := filepath.Join(dir, rel)

			if d.IsDir() {
				return os.MkdirAll(target, 0750)
			}
			if !d.Type().IsRegular() {
				return nil
			}
			return copyFile(path, target)
		})
	}
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// checkContext returns an error if the context is cancelled.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
