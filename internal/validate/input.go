// Package validate provides input validation for objlock.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/jayteealao/objlock/internal/errors"
)

// maxIdentifierLength bounds object ids, sessions and lockers.
const maxIdentifierLength = 255

// objectNameRegex validates design object names (1-128 chars).
// Must start with an alphanumeric, rest may contain '.', '_' and '-'.
var objectNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ObjectID validates a lock object id.
func ObjectID(id string) error {
	if err := identifier(id); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidObjectID, err)
	}
	return nil
}

// Session validates a session id.
func Session(session string) error {
	if err := identifier(session); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidSession, err)
	}
	return nil
}

// Locker validates a locker (principal) id.
func Locker(locker string) error {
	if err := identifier(locker); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidLocker, err)
	}
	return nil
}

// Owner validates a (session, locker) pair.
func Owner(session, locker string) error {
	if err := Session(session); err != nil {
		return err
	}
	return Locker(locker)
}

// identifier rejects empty, oversized and control-character values.
func identifier(s string) error {
	if s == "" {
		return fmt.Errorf("cannot be empty")
	}
	if len(s) > maxIdentifierLength {
		return fmt.Errorf("longer than %d bytes", maxIdentifierLength)
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("leading or trailing whitespace")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("contains control character %q", r)
		}
	}
	return nil
}

// ObjectName validates a design object name.
// Object names must be:
// - 1-128 characters long
// - Alphanumeric plus '.', '_' and '-'
// - Start with an alphanumeric character
// - No path traversal characters
func ObjectName(name string) error {
	if name == "" {
		return errors.ErrInvalidObjectName
	}

	// Check for path traversal attempts
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: path traversal not allowed", errors.ErrInvalidObjectName)
	}

	if !objectNameRegex.MatchString(name) {
		return errors.ErrInvalidObjectName
	}

	return nil
}

// Directory validates that path exists and is a directory.
func Directory(path string) error {
	if path == "" {
		return fmt.Errorf("directory path cannot be empty")
	}

	expandedPath, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("failed to expand path: %w", err)
	}

	info, err := os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", path)
		}
		return fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
