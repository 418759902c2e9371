package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
)

// OSFS stores files in a directory on the host filesystem.
type OSFS struct {
	root string
}

// NewOSFS returns a Filesystem rooted at root, creating the directory if
// needed.
func NewOSFS(root string) (*OSFS, error) {
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &OSFS{root: root}, nil
}

// Root returns the host directory backing the store.
func (fs *OSFS) Root() string { return fs.root }

func (fs *OSFS) pathFor(name string) (string, error) {
	c, err := clean(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(c)), nil
}

func notFound(err error) error {
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (fs *OSFS) FileExists(name string) bool {
	p, err := fs.pathFor(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (fs *OSFS) ReadFile(name string) ([]byte, error) {
	p, err := fs.pathFor(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// WriteFile replaces the file with data. The contents are synced before the
// call returns.
func (fs *OSFS) WriteFile(name string, data []byte) (int, error) {
	p, err := fs.pathFor(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if err != nil {
		_ = f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

func (fs *OSFS) RemoveFile(name string) error {
	p, err := fs.pathFor(name)
	if err != nil {
		return err
	}
	return notFound(os.Remove(p))
}

func (fs *OSFS) RenameFile(from, to string) error {
	src, err := fs.pathFor(from)
	if err != nil {
		return err
	}
	dst, err := fs.pathFor(to)
	if err != nil {
		return err
	}
	return notFound(os.Rename(src, dst))
}

func (fs *OSFS) DirectoryExists(name string) bool {
	p, err := fs.pathFor(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func (fs *OSFS) CreateDirectory(name string) error {
	p, err := fs.pathFor(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o700)
}

func (fs *OSFS) RemoveDirectory(name string) error {
	p, err := fs.pathFor(name)
	if err != nil {
		return err
	}
	if p == filepath.Clean(fs.root) {
		return ErrInvalidPath
	}
	if _, err := os.Stat(p); err != nil {
		return notFound(err)
	}
	return os.RemoveAll(p)
}

func (fs *OSFS) ListDirectory(name string) ([]string, error) {
	p, err := fs.pathFor(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, notFound(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (fs *OSFS) StorageSize() (uint64, error) {
	total, _, err := diskUsage(fs.root)
	return total, err
}

func (fs *OSFS) StorageAvailable() (uint64, error) {
	_, free, err := diskUsage(fs.root)
	return free, err
}
