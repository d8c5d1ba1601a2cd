package mocks

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/user/h264plugin/pkg/ports"
)

// FileSystem is an in-memory ports.FileSystem. Open returns seekable
// handles and counts the ones not yet closed, so tests can check that
// media files are released.
type FileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
	open  int

	OpenFunc      func(path string) (io.ReadSeekCloser, error)
	ReadFileFunc  func(path string) ([]byte, error)
	WriteFileFunc func(path string, data []byte) error
	MkdirAllFunc  func(path string) error
	ExistsFunc    func(path string) (bool, error)
}

// NewFileSystem creates an empty in-memory file system.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// AddFile stores data at p and marks its parent directories as existing.
func (m *FileSystem) AddFile(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = data
	for dir := path.Dir(p); dir != "." && dir != "/" && !m.dirs[dir]; dir = path.Dir(dir) {
		m.dirs[dir] = true
	}
}

func notFound(op, p string) error {
	return fmt.Errorf("%s %s: %w", op, p, fs.ErrNotExist)
}

func (m *FileSystem) Open(p string) (io.ReadSeekCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, notFound("open", p)
	}
	m.open++
	return &handle{ReadSeeker: bytes.NewReader(data), fs: m}, nil
}

// handle decrements the open count once, however often it is closed.
type handle struct {
	io.ReadSeeker
	fs   *FileSystem
	once sync.Once
}

func (h *handle) Close() error {
	h.once.Do(func() {
		h.fs.mu.Lock()
		h.fs.open--
		h.fs.mu.Unlock()
	})
	return nil
}

// OpenHandles returns the number of handles returned by Open and not closed.
func (m *FileSystem) OpenHandles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

func (m *FileSystem) ReadFile(p string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(p)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.files[p]; ok {
		return data, nil
	}
	return nil, notFound("read", p)
}

// WriteFile stores a copy of data.
func (m *FileSystem) WriteFile(p string, data []byte) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(p, data)
	}
	m.AddFile(p, append([]byte(nil), data...))
	return nil
}

func (m *FileSystem) MkdirAll(p string) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[p] = true
	return nil
}

func (m *FileSystem) Exists(p string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(p)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, file := m.files[p]
	return file || m.dirs[p], nil
}

// GetFile returns the contents of a file (for test verification).
func (m *FileSystem) GetFile(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[p]
	return data, ok
}

// GetAllFiles returns a snapshot of every stored file.
func (m *FileSystem) GetAllFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		result[k] = v
	}
	return result
}

var _ ports.FileSystem = (*FileSystem)(nil)
