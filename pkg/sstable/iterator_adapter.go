package sstable

import (
	"github.com/KevoDB/sstkit/pkg/common/iterator"
)

var _ iterator.Iterator = (*IteratorAdapter)(nil)

// IteratorAdapter adapts an sstable.Iterator to the common Iterator interface.
// Errors from the table iterator invalidate the adapter and are kept for Error.
type IteratorAdapter struct {
	iter *Iterator
	err  error
}

// NewIteratorAdapter creates a new adapter for an sstable iterator
func NewIteratorAdapter(iter *Iterator) *IteratorAdapter {
	return &IteratorAdapter{iter: iter}
}

// SeekToFirst positions the iterator at the first key
func (a *IteratorAdapter) SeekToFirst() {
	a.record(a.iter.SeekToFirst())
}

// SeekToLast positions the iterator at the last key
func (a *IteratorAdapter) SeekToLast() {
	a.record(a.iter.SeekToLast())
}

// Seek positions the iterator at the first key >= target
func (a *IteratorAdapter) Seek(target []byte) bool {
	a.record(a.iter.SeekToKey(target))
	return a.Valid()
}

// Next advances the iterator to the next key
func (a *IteratorAdapter) Next() bool {
	if !a.Valid() {
		return false
	}
	a.record(a.iter.Next())
	return a.Valid()
}

// Key returns the current key
func (a *IteratorAdapter) Key() []byte {
	if !a.Valid() {
		return nil
	}
	return a.iter.Key()
}

// Value returns the current value
func (a *IteratorAdapter) Value() []byte {
	if !a.Valid() {
		return nil
	}
	return a.iter.Value()
}

// Valid returns true if the iterator is positioned at a valid entry
func (a *IteratorAdapter) Valid() bool {
	return a.err == nil && a.iter != nil && a.iter.Valid()
}

// Error returns the error that stopped iteration, if any
func (a *IteratorAdapter) Error() error {
	return a.err
}

// Close releases the underlying table iterator
func (a *IteratorAdapter) Close() error {
	return a.iter.Close()
}

func (a *IteratorAdapter) record(err error) {
	a.err = err
}
