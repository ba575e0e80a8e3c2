package lock

import (
	"path/filepath"

	"github.com/google/uuid"
)

// keyNamespace roots every lock key derived by this package.
var keyNamespace = uuid.MustParse("6f1d3c0a-9b2e-5d47-8c1f-3a5e7b9d2c40")

// pathNamespace keeps path keys apart from type/id keys.
var pathNamespace = uuid.NewSHA1(keyNamespace, []byte("path"))

// ObjectKey derives the lock key for an object of the given type and id.
// The same (type, id) always yields the same key.
func ObjectKey(objectType, id string) string {
	return uuid.NewSHA1(keyNamespace, []byte(objectType+"\x00"+id)).String()
}

// PathKey derives the lock key for a filesystem path. The path is cleaned
// and made absolute first, so equivalent spellings share a key.
func PathKey(path string) string {
	p := filepath.Clean(path)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return uuid.NewSHA1(pathNamespace, []byte(p)).String()
}
