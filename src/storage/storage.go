// Package storage is the filesystem contract used to persist identities,
// known destinations and paths. The protocol core treats it as a blob store
// keyed by slash-separated relative paths.
package storage

import (
	"errors"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrNoSpace     = errors.New("storage: no space left")
	ErrInvalidPath = errors.New("storage: invalid path")
	ErrUnsupported = errors.New("storage: not supported on this platform")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Filesystem is implemented by storage backends.
type Filesystem interface {
	FileExists(name string) bool
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) (int, error)
	RemoveFile(name string) error
	RenameFile(from, to string) error
	DirectoryExists(name string) bool
	CreateDirectory(name string) error
	RemoveDirectory(name string) error
	ListDirectory(name string) ([]string, error)
	StorageSize() (uint64, error)
	StorageAvailable() (uint64, error)
}

// clean normalises a relative path and rejects anything that would leave the
// storage root.
func clean(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		name = strings.TrimLeft(name, "/")
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	c := path.Clean(name)
	if c == "." {
		return "", nil
	}
	return c, nil
}
