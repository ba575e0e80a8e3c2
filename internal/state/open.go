package state

import (
	"fmt"

	apperrors "github.com/jayteealao/objlock/internal/errors"
)

// Supported lock store backends.
const (
	BackendSQLite     = "sqlite"
	BackendFilesystem = "filesystem"
)

// Config selects and locates a lock store backend.
type Config struct {
	Backend string
	DataDir string
}

// Backends lists the names accepted by Open.
func Backends() []string {
	return []string{BackendSQLite, BackendFilesystem}
}

// Open returns the LockStore named by cfg.Backend. An empty backend means sqlite.
func Open(cfg Config) (LockStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("lock store data directory is required")
	}

	switch cfg.Backend {
	case "", BackendSQLite:
		return NewSQLiteStore(cfg.DataDir)
	case BackendFilesystem:
		return NewFileStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", apperrors.ErrUnknownBackend, cfg.Backend, Backends())
	}
}
