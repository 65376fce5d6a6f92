// Package storage provides the byte-range file stores that sstkit tables are
// persisted to and read back from.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when opening a path that does not exist
	ErrNotFound = errors.New("storage: file not found")
	// ErrClosed is returned when reading from a closed file
	ErrClosed = errors.New("storage: file is closed")
	// ErrOutOfRange is returned when a read extends past the end of a file
	ErrOutOfRange = errors.New("storage: read out of range")
)

// File is an immutable, persisted byte sequence supporting positional reads.
// Implementations must be safe for concurrent ReadRange calls.
type File interface {
	// ReadRange returns length bytes starting at offset
	ReadRange(offset, length uint64) ([]byte, error)
	// Size returns the total number of bytes in the file
	Size() uint64
	// Close releases the underlying handle
	Close() error
}

// FileStore creates and opens Files
type FileStore interface {
	// Create persists data at path and returns a handle to read it back
	Create(path string, data []byte) (File, error)
	// Open returns a handle to a previously created file
	Open(path string) (File, error)
}

func checkRange(offset, length, size uint64) error {
	if offset > size || length > size-offset {
		return fmt.Errorf("%w: offset=%d length=%d size=%d", ErrOutOfRange, offset, length, size)
	}
	return nil
}
