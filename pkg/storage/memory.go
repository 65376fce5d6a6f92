package storage

import (
	"fmt"
	"sync"
)

// MemStore keeps files in memory. It backs tests and tables that never need
// to outlive the process.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

// Create stores a private copy of data at path, replacing any previous file
func (s *MemStore) Create(path string, data []byte) (File, error) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.files[path] = buf
	s.mu.Unlock()

	return &memFile{data: buf}, nil
}

// Open returns a handle to the file at path
func (s *MemStore) Open(path string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return &memFile{data: data}, nil
}

// ReadAll returns a copy of the file contents at path
func (s *MemStore) ReadAll(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return append([]byte(nil), data...), nil
}

// memFile is a read-only view over a stored buffer
type memFile struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

func (f *memFile) ReadRange(offset, length uint64) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, length, uint64(len(f.data))); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, f.data[offset:offset+length])
	return out, nil
}

func (f *memFile) Size() uint64 {
	return uint64(len(f.data))
}

func (f *memFile) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
