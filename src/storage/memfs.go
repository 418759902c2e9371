package storage

import (
	"sort"
	"strings"
	"sync"
)

// DefaultMemoryCapacity is the capacity of a MemoryFS created with zero
// capacity.
const DefaultMemoryCapacity = 1 << 20

// MemoryFS is an in-memory Filesystem with a fixed capacity, for tests and
// for nodes without persistent storage.
type MemoryFS struct {
	mutex    sync.Mutex
	capacity uint64
	used     uint64
	files    map[string][]byte
	dirs     map[string]struct{}
}

// NewMemoryFS returns an empty store holding at most capacity bytes.
func NewMemoryFS(capacity uint64) *MemoryFS {
	if capacity == 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryFS{
		capacity: capacity,
		files:    make(map[string][]byte),
		dirs:     map[string]struct{}{"": {}},
	}
}

func (m *MemoryFS) FileExists(name string) bool {
	c, err := clean(name)
	if err != nil {
		return false
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.files[c]
	return ok
}

func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	c, err := clean(name)
	if err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	b, ok := m.files[c]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryFS) WriteFile(name string, data []byte) (int, error) {
	c, err := clean(name)
	if err != nil {
		return 0, err
	}
	if c == "" {
		return 0, ErrInvalidPath
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	used := m.used - uint64(len(m.files[c])) + uint64(len(data))
	if used > m.capacity {
		return 0, ErrNoSpace
	}
	m.files[c] = append([]byte(nil), data...)
	m.used = used
	m._mkdirAll(parent(c))
	return len(data), nil
}

func (m *MemoryFS) RemoveFile(name string) error {
	c, err := clean(name)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	b, ok := m.files[c]
	if !ok {
		return ErrNotFound
	}
	m.used -= uint64(len(b))
	delete(m.files, c)
	return nil
}

func (m *MemoryFS) RenameFile(from, to string) error {
	src, err := clean(from)
	if err != nil {
		return err
	}
	dst, err := clean(to)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	b, ok := m.files[src]
	if !ok {
		return ErrNotFound
	}
	if old, ok := m.files[dst]; ok {
		m.used -= uint64(len(old))
	}
	delete(m.files, src)
	m.files[dst] = b
	m._mkdirAll(parent(dst))
	return nil
}

func (m *MemoryFS) DirectoryExists(name string) bool {
	c, err := clean(name)
	if err != nil {
		return false
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.dirs[c]
	return ok
}

func (m *MemoryFS) CreateDirectory(name string) error {
	c, err := clean(name)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m._mkdirAll(c)
	return nil
}

func (m *MemoryFS) RemoveDirectory(name string) error {
	c, err := clean(name)
	if err != nil {
		return err
	}
	if c == "" {
		return ErrInvalidPath
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.dirs[c]; !ok {
		return ErrNotFound
	}
	prefix := c + "/"
	for f, b := range m.files {
		if strings.HasPrefix(f, prefix) {
			m.used -= uint64(len(b))
			delete(m.files, f)
		}
	}
	for d := range m.dirs {
		if d == c || strings.HasPrefix(d, prefix) {
			delete(m.dirs, d)
		}
	}
	return nil
}

func (m *MemoryFS) ListDirectory(name string) ([]string, error) {
	c, err := clean(name)
	if err != nil {
		return nil, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.dirs[c]; !ok {
		return nil, ErrNotFound
	}
	seen := make(map[string]struct{})
	add := func(p string) {
		if p != "" && parent(p) == c {
			seen[p[strings.LastIndex(p, "/")+1:]] = struct{}{}
		}
	}
	for f := range m.files {
		add(f)
	}
	for d := range m.dirs {
		add(d)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryFS) StorageSize() (uint64, error) {
	return m.capacity, nil
}

func (m *MemoryFS) StorageAvailable() (uint64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.capacity - m.used, nil
}

func (m *MemoryFS) _mkdirAll(dir string) {
	for {
		m.dirs[dir] = struct{}{}
		if dir == "" {
			return
		}
		dir = parent(dir)
	}
}

func parent(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
