// Package recoverable provides a rename-aside helper for replacing a file or
// directory tree so an aborted replacement can be rolled back.
//
// A typical replacement under a held lock is:
//
//	f := recoverable.New(path)
//	f.RenameTo(backup)   // move the current contents aside
//	write(path)          // write new contents at the original path
//	f.Delete()           // commit: drop the backup
//	f.Recover()          // or abort: move the backup back
//
// State-changing methods report whether the transition happened; errors are
// reserved for underlying I/O failures.
package recoverable

import (
	"fmt"
	"os"
	"sync"
)

// State is the position of a File in its lifecycle.
type State int

const (
	Unmodified State = iota
	Renamed
	Recovered
	Deleted
)

func (s State) String() string {
	switch s {
	case Unmodified:
		return "unmodified"
	case Renamed:
		return "renamed"
	case Recovered:
		return "recovered"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// File tracks one path through Unmodified -> Renamed -> {Recovered | Deleted}.
type File struct {
	mu    sync.Mutex
	path  string
	dest  string
	state State
}

// New returns a File for path in the Unmodified state.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the original path.
func (f *File) Path() string {
	return f.path
}

// Dest returns the rename destination, or "" before RenameTo succeeds.
func (f *File) Dest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dest
}

// State returns the current state.
func (f *File) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// RenameTo moves the original path to dest. It returns false if the file was
// already renamed or deleted, the source is missing, or dest exists.
func (f *File) RenameTo(dest string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Unmodified {
		return false, nil
	}

	exists, err := pathExists(f.path)
	if err != nil || !exists {
		return false, err
	}
	exists, err = pathExists(dest)
	if err != nil || exists {
		return false, err
	}

	if err := os.Rename(f.path, dest); err != nil {
		return false, fmt.Errorf("failed to rename %s to %s: %w", f.path, dest, err)
	}

	f.dest = dest
	f.state = Renamed
	return true, nil
}

// Recover moves the renamed file back to its original path. It returns false
// unless the file is in the Renamed state, or if something now occupies the
// original path.
func (f *File) Recover() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Renamed {
		return false, nil
	}

	exists, err := pathExists(f.path)
	if err != nil || exists {
		return false, err
	}

	if err := os.Rename(f.dest, f.path); err != nil {
		return false, fmt.Errorf("failed to restore %s from %s: %w", f.path, f.dest, err)
	}

	f.state = Recovered
	return true, nil
}

// Delete removes whichever of the original path or the rename destination
// the file currently lives at. It returns false on a redundant call.
func (f *File) Delete() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var target string
	switch f.state {
	case Unmodified, Recovered:
		target = f.path
	case Renamed:
		target = f.dest
	default:
		return false, nil
	}

	exists, err := pathExists(target)
	if err != nil {
		return false, err
	}
	if exists {
		if err := os.RemoveAll(target); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", target, err)
		}
	}

	f.state = Deleted
	return exists, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
