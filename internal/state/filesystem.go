package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	apperrors "github.com/jayteealao/objlock/internal/errors"
)

const (
	recordSuffix   = ".json"
	guardFileName  = ".store.lock"
	guardRetryWait = 5 * time.Millisecond
)

// recordNamespace derives record file names from object ids.
var recordNamespace = uuid.MustParse("0b6d2f4e-3c1a-5e8f-9a7b-2d4c6e8f0a1b")

// FileStore keeps one JSON record per locked object in a directory.
// Mutations are serialized by an in-process mutex and a flock on the
// directory, so it is safe for several processes on one host but not
// across hosts.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	guard *flock.Flock
}

type fileRecord struct {
	ObjectID  string    `json:"object_id"`
	Session   string    `json:"session"`
	Locker    string    `json:"locker"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// NewFileStore creates a FileStore under <dataDir>/locks.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		guard: flock.New(filepath.Join(dir, guardFileName)),
	}, nil
}

// Close releases the directory guard if it is still held.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard.Close()
}

// Backend returns the backend name.
func (s *FileStore) Backend() string {
	return BackendFilesystem
}

// Insert writes a new record unless one exists for the object.
func (s *FileStore) Insert(ctx context.Context, l *Lock) error {
	return s.withGuard(ctx, func() error {
		if _, err := s.read(l.ObjectID); err == nil {
			return apperrors.ErrLockExists
		} else if !errors.Is(err, apperrors.ErrLockNotFound) {
			return err
		}
		return s.write(l)
	})
}

// Get reads the record for an object.
func (s *FileStore) Get(ctx context.Context, objectID string) (*Lock, error) {
	return s.read(objectID)
}

// Replace supersedes old with next if old's owner still holds the object.
func (s *FileStore) Replace(ctx context.Context, old, next *Lock) error {
	if old.ObjectID != next.ObjectID {
		return fmt.Errorf("cannot replace lock on %q with lock on %q", old.ObjectID, next.ObjectID)
	}
	return s.withGuard(ctx, func() error {
		if err := s.expectHeld(old, apperrors.ErrLockChanged); err != nil {
			return err
		}
		return s.write(next)
	})
}

// Refresh rewrites version and expiry if l's owner holds the object.
func (s *FileStore) Refresh(ctx context.Context, l *Lock) error {
	return s.withGuard(ctx, func() error {
		cur, err := s.read(l.ObjectID)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				return apperrors.ErrLockChanged
			}
			return err
		}
		if !cur.HeldBy(l.Session, l.Locker) {
			return apperrors.ErrLockChanged
		}
		cur.Version = l.Version
		cur.ExpiresAt = l.ExpiresAt
		return s.write(cur)
	})
}

// Delete removes the record if l's owner holds it.
func (s *FileStore) Delete(ctx context.Context, l *Lock) error {
	return s.withGuard(ctx, func() error {
		if err := s.expectHeld(l, apperrors.ErrLockNotFound); err != nil {
			return err
		}
		return s.remove(l.ObjectID)
	})
}

// DeleteExpired removes the record if l's owner holds it and it expired before now.
func (s *FileStore) DeleteExpired(ctx context.Context, l *Lock, now time.Time) error {
	return s.withGuard(ctx, func() error {
		cur, err := s.read(l.ObjectID)
		if err != nil {
			return err
		}
		if !cur.HeldBy(l.Session, l.Locker) || !cur.Expired(now) {
			return apperrors.ErrLockNotFound
		}
		return s.remove(l.ObjectID)
	})
}

// FindByOwner returns all locks held by the owner tuple.
func (s *FileStore) FindByOwner(ctx context.Context, session, locker string) ([]*Lock, error) {
	return s.scan(ctx, func(l *Lock) bool {
		return l.HeldBy(session, locker)
	})
}

// FindByObjectIDs returns the locks among objectIDs held by the owner tuple.
func (s *FileStore) FindByObjectIDs(ctx context.Context, objectIDs []string, session, locker string) ([]*Lock, error) {
	var locks []*Lock
	seen := make(map[string]bool, len(objectIDs))
	for _, id := range objectIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		l, err := s.read(id)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				continue
			}
			return nil, err
		}
		if l.HeldBy(session, locker) {
			locks = append(locks, l)
		}
	}
	sortLocks(locks)
	return locks, nil
}

// FindExpired returns locks whose deadline is before now.
func (s *FileStore) FindExpired(ctx context.Context, now time.Time) ([]*Lock, error) {
	return s.scan(ctx, func(l *Lock) bool {
		return l.Expired(now)
	})
}

// withGuard runs fn while holding both the process mutex and the directory flock.
func (s *FileStore) withGuard(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.guard.TryLockContext(ctx, guardRetryWait)
	if err != nil {
		return fmt.Errorf("failed to lock store directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock store directory %s", s.dir)
	}
	defer s.guard.Unlock()

	return fn()
}

func (s *FileStore) expectHeld(l *Lock, notHeld error) error {
	cur, err := s.read(l.ObjectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrLockNotFound) {
			return notHeld
		}
		return err
	}
	if !cur.HeldBy(l.Session, l.Locker) {
		return notHeld
	}
	return nil
}

func (s *FileStore) scan(ctx context.Context, match func(*Lock) bool) ([]*Lock, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list lock records: %w", err)
	}

	var locks []*Lock
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordSuffix) {
			continue
		}

		l, err := readRecord(filepath.Join(s.dir, name))
		if err != nil {
			// Released between ReadDir and open
			if errors.Is(err, apperrors.ErrLockNotFound) {
				continue
			}
			return nil, err
		}
		if match(l) {
			locks = append(locks, l)
		}
	}

	sortLocks(locks)
	return locks, nil
}

func (s *FileStore) remove(objectID string) error {
	if err := os.Remove(s.recordPath(objectID)); err != nil {
		if os.IsNotExist(err) {
			return apperrors.ErrLockNotFound
		}
		return fmt.Errorf("failed to delete lock record: %w", err)
	}
	return nil
}

func (s *FileStore) recordPath(objectID string) string {
	return filepath.Join(s.dir, uuid.NewSHA1(recordNamespace, []byte(objectID)).String()+recordSuffix)
}

func (s *FileStore) read(objectID string) (*Lock, error) {
	l, err := readRecord(s.recordPath(objectID))
	if err != nil {
		return nil, err
	}
	if l.ObjectID != objectID {
		return nil, fmt.Errorf("lock record for %q holds object %q", objectID, l.ObjectID)
	}
	return l, nil
}

// write replaces the record atomically via a temp file and rename.
func (s *FileStore) write(l *Lock) error {
	data, err := json.Marshal(fileRecord{
		ObjectID:  l.ObjectID,
		Session:   l.Session,
		Locker:    l.Locker,
		Version:   l.Version,
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode lock record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary lock record: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write lock record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync lock record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close lock record: %w", err)
	}

	if err := os.Rename(tmpPath, s.recordPath(l.ObjectID)); err != nil {
		return fmt.Errorf("failed to move lock record into place: %w", err)
	}

	success = true
	return nil
}

func readRecord(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to read lock record: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode lock record %s: %w", filepath.Base(path), err)
	}

	return &Lock{
		ObjectID:  rec.ObjectID,
		Session:   rec.Session,
		Locker:    rec.Locker,
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func sortLocks(locks []*Lock) {
	sort.Slice(locks, func(i, j int) bool {
		if !locks[i].CreatedAt.Equal(locks[j].CreatedAt) {
			return locks[i].CreatedAt.Before(locks[j].CreatedAt)
		}
		return locks[i].ObjectID < locks[j].ObjectID
	})
}
