// Package sstable builds, persists and reads sorted string tables.
//
// A table is a run of size-bounded, checksummed blocks followed by a meta
// section indexing each block by its first and last key, a bloom filter over
// every key and a whole-file checksum. Tables are immutable once built and are
// shared between readers by reference counting.
package sstable

import (
	"errors"

	"github.com/KevoDB/sstkit/pkg/sstable/block"
)

const (
	// DefaultBlockSize is the target size for data blocks
	DefaultBlockSize = block.DefaultBlockSize
	// offsetSize is the width of the meta and bloom section offsets
	offsetSize = 4
)

var (
	// ErrIO wraps failures reported by the file store
	ErrIO = errors.New("sstable i/o error")
	// ErrCorruption indicates a checksum mismatch or undecodable section
	ErrCorruption = errors.New("sstable corruption detected")
	// ErrEmptyTable is returned when building a table with no entries
	ErrEmptyTable = errors.New("cannot build empty sstable")
	// ErrIndexOverflow indicates a block index or offset outside the table
	ErrIndexOverflow = errors.New("sstable block index overflow")
	// ErrOutOfOrder is returned when keys are not added in strictly increasing order
	ErrOutOfOrder = errors.New("keys must be added in strictly increasing order")
	// ErrEntryTooLarge is returned when a single entry cannot fit in an empty block
	ErrEntryTooLarge = errors.New("entry exceeds block size")
	// ErrBuilderFinished is returned when using a builder after Build
	ErrBuilderFinished = errors.New("sstable builder already finished")
	// ErrTableClosed is returned when referencing a table whose last reference was released
	ErrTableClosed = errors.New("sstable is closed")
	// ErrNotFound indicates a key was not found in the SSTable
	ErrNotFound = errors.New("key not found in sstable")
)
