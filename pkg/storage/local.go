package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore persists files under a directory on the local filesystem
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}

// Create writes data to a temporary file, syncs it and renames it into place
// so readers never observe a partially written table.
func (s *LocalStore) Create(path string, data []byte) (File, error) {
	finalPath := s.resolve(path)
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(finalPath)))

	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := file.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("wrote incomplete file: %d of %d bytes", n, len(data))
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write %s: %w", finalPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return s.Open(path)
}

// Open opens an existing file for positional reads
func (s *LocalStore) Open(path string) (File, error) {
	fullPath := s.resolve(path)
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fullPath)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &localFile{
		path: fullPath,
		file: file,
		size: uint64(stat.Size()),
	}, nil
}

// Remove deletes a file from the store
func (s *LocalStore) Remove(path string) error {
	return os.Remove(s.resolve(path))
}

// localFile handles positional reads against an open os.File
type localFile struct {
	path string
	file *os.File
	size uint64
	mu   sync.RWMutex
}

// ReadRange reads exactly length bytes at offset
func (f *localFile) ReadRange(offset, length uint64) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.file == nil {
		return nil, ErrClosed
	}
	if err := checkRange(offset, length, f.size); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	n, err := f.file.ReadAt(data, int64(offset))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(n) == length) {
		return nil, fmt.Errorf("failed to read %s at offset %d: %w", f.path, offset, err)
	}
	return data, nil
}

// Size returns the size of the file
func (f *localFile) Size() uint64 {
	return f.size
}

// Close closes the file
func (f *localFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
