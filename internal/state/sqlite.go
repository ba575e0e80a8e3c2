// Package state provides the durable lock record stores for objlock.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/jayteealao/objlock/internal/errors"
	sqlite3 "github.com/mattn/go-sqlite3"
)

//go:embed migrations/001_initial.sql
var initialMigration string

// SQLiteStore keeps lock records in a relational table.
type SQLiteStore struct {
	db      *sql.DB
	dataDir string
}

// NewSQLiteStore creates a new SQLiteStore with the given data directory.
// The database file will be created at <dataDir>/objlock.db.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "objlock.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:      db,
		dataDir: dataDir,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Backend returns the backend name.
func (s *SQLiteStore) Backend() string {
	return BackendSQLite
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(initialMigration); err != nil {
			return fmt.Errorf("failed to run initial migration: %w", err)
		}
	}

	return nil
}

const lockColumns = `object_id, session, locker, version, created_at, expires_at`

// Insert stores a new lock record unless one exists for the object.
func (s *SQLiteStore) Insert(ctx context.Context, l *Lock) error {
	query := `INSERT INTO locks (` + lockColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		l.ObjectID, l.Session, l.Locker, l.Version,
		l.CreatedAt.UnixNano(), nullTime(l.ExpiresAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.ErrLockExists
		}
		return fmt.Errorf("failed to insert lock: %w", err)
	}

	return nil
}

// Get retrieves the lock record for an object.
func (s *SQLiteStore) Get(ctx context.Context, objectID string) (*Lock, error) {
	query := `SELECT ` + lockColumns + ` FROM locks WHERE object_id = ?`

	l, err := scanLock(s.db.QueryRowContext(ctx, query, objectID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	return l, nil
}

// Replace supersedes old with next in a single conditional update.
func (s *SQLiteStore) Replace(ctx context.Context, old, next *Lock) error {
	if old.ObjectID != next.ObjectID {
		return fmt.Errorf("cannot replace lock on %q with lock on %q", old.ObjectID, next.ObjectID)
	}

	query := `
		UPDATE locks SET session = ?, locker = ?, version = ?, created_at = ?, expires_at = ?
		WHERE object_id = ? AND session = ? AND locker = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		next.Session, next.Locker, next.Version, next.CreatedAt.UnixNano(), nullTime(next.ExpiresAt),
		old.ObjectID, old.Session, old.Locker,
	)
	if err != nil {
		return fmt.Errorf("failed to replace lock: %w", err)
	}

	return expectOneRow(result, apperrors.ErrLockChanged)
}

// Refresh updates version and expiry of a lock still held by l's owner.
func (s *SQLiteStore) Refresh(ctx context.Context, l *Lock) error {
	query := `
		UPDATE locks SET version = ?, expires_at = ?
		WHERE object_id = ? AND session = ? AND locker = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		l.Version, nullTime(l.ExpiresAt), l.ObjectID, l.Session, l.Locker,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}

	return expectOneRow(result, apperrors.ErrLockChanged)
}

// Delete removes a lock record held by l's owner.
func (s *SQLiteStore) Delete(ctx context.Context, l *Lock) error {
	query := `DELETE FROM locks WHERE object_id = ? AND session = ? AND locker = ?`
	result, err := s.db.ExecContext(ctx, query, l.ObjectID, l.Session, l.Locker)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}

	return expectOneRow(result, apperrors.ErrLockNotFound)
}

// DeleteExpired removes a lock record held by l's owner that expired before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, l *Lock, now time.Time) error {
	query := `
		DELETE FROM locks
		WHERE object_id = ? AND session = ? AND locker = ?
			AND expires_at IS NOT NULL AND expires_at < ?
	`
	result, err := s.db.ExecContext(ctx, query, l.ObjectID, l.Session, l.Locker, now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to delete expired lock: %w", err)
	}

	return expectOneRow(result, apperrors.ErrLockNotFound)
}

// FindByOwner returns all locks held by the owner tuple.
func (s *SQLiteStore) FindByOwner(ctx context.Context, session, locker string) ([]*Lock, error) {
	query := `
		SELECT ` + lockColumns + ` FROM locks
		WHERE session = ? AND locker = ?
		ORDER BY created_at, object_id
	`
	return s.queryLocks(ctx, query, session, locker)
}

// FindByObjectIDs returns the locks among objectIDs held by the owner tuple.
func (s *SQLiteStore) FindByObjectIDs(ctx context.Context, objectIDs []string, session, locker string) ([]*Lock, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(objectIDs)), ", ")
	query := `
		SELECT ` + lockColumns + ` FROM locks
		WHERE session = ? AND locker = ? AND object_id IN (` + placeholders + `)
		ORDER BY created_at, object_id
	`

	args := make([]any, 0, len(objectIDs)+2)
	args = append(args, session, locker)
	for _, id := range objectIDs {
		args = append(args, id)
	}

	return s.queryLocks(ctx, query, args...)
}

// FindExpired returns locks whose deadline is before now.
func (s *SQLiteStore) FindExpired(ctx context.Context, now time.Time) ([]*Lock, error) {
	query := `
		SELECT ` + lockColumns + ` FROM locks
		WHERE expires_at IS NOT NULL AND expires_at < ?
		ORDER BY expires_at, object_id
	`
	return s.queryLocks(ctx, query, now.UnixNano())
}

func (s *SQLiteStore) queryLocks(ctx context.Context, query string, args ...any) ([]*Lock, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer rows.Close()

	var locks []*Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, l)
	}

	return locks, rows.Err()
}

// --- Helper Functions ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(row rowScanner) (*Lock, error) {
	var l Lock
	var createdAt int64
	var expiresAt sql.NullInt64
	if err := row.Scan(&l.ObjectID, &l.Session, &l.Locker, &l.Version, &createdAt, &expiresAt); err != nil {
		return nil, err
	}

	l.CreatedAt = time.Unix(0, createdAt)
	if expiresAt.Valid {
		l.ExpiresAt = time.Unix(0, expiresAt.Int64)
	}
	return &l, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func expectOneRow(result sql.Result, notMatched error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notMatched
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique)
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
