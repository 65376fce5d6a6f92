// Package filtered provides iterators that filter keys based on different criteria
package filtered

import (
	"bytes"

	"github.com/KevoDB/sstkit/pkg/common/iterator"
)

// KeyFilterFunc is a function type for filtering keys
type KeyFilterFunc func(key []byte) bool

// FilteredIterator wraps an iterator and skips keys the filter rejects
type FilteredIterator struct {
	iter      iterator.Iterator
	keyFilter KeyFilterFunc
}

// NewFilteredIterator creates a new iterator with a key filter
func NewFilteredIterator(iter iterator.Iterator, filter KeyFilterFunc) *FilteredIterator {
	return &FilteredIterator{
		iter:      iter,
		keyFilter: filter,
	}
}

// skip advances the source until it rests on an accepted key
func (fi *FilteredIterator) skip() bool {
	for fi.iter.Valid() {
		if fi.keyFilter(fi.iter.Key()) {
			return true
		}
		fi.iter.Next()
	}
	return false
}

// SeekToFirst positions at the first key that passes the filter
func (fi *FilteredIterator) SeekToFirst() {
	fi.iter.SeekToFirst()
	fi.skip()
}

// SeekToLast positions at the last key that passes the filter. Sources only
// move forward, so a rejected last key forces a full scan.
func (fi *FilteredIterator) SeekToLast() {
	fi.iter.SeekToLast()
	if !fi.iter.Valid() || fi.keyFilter(fi.iter.Key()) {
		return
	}

	var last []byte
	found := false
	for fi.SeekToFirst(); fi.Valid(); fi.Next() {
		last = append(last[:0], fi.iter.Key()...)
		found = true
	}
	if found {
		fi.iter.Seek(last)
	}
}

// Seek positions at the first key >= target that passes the filter
func (fi *FilteredIterator) Seek(target []byte) bool {
	fi.iter.Seek(target)
	return fi.skip()
}

// Next advances to the next key that passes the filter
func (fi *FilteredIterator) Next() bool {
	if !fi.iter.Next() {
		return false
	}
	return fi.skip()
}

// Key returns the current key
func (fi *FilteredIterator) Key() []byte {
	return fi.iter.Key()
}

// Value returns the current value
func (fi *FilteredIterator) Value() []byte {
	return fi.iter.Value()
}

// Valid returns true if the iterator is at a valid position
func (fi *FilteredIterator) Valid() bool {
	return fi.iter.Valid() && fi.keyFilter(fi.iter.Key())
}

// Error returns the source iterator's error
func (fi *FilteredIterator) Error() error {
	return fi.iter.Error()
}

// PrefixFilterFunc creates a filter function for keys with a specific prefix
func PrefixFilterFunc(prefix []byte) KeyFilterFunc {
	return func(key []byte) bool {
		return bytes.HasPrefix(key, prefix)
	}
}

// NewPrefixIterator returns an iterator that filters keys by prefix
func NewPrefixIterator(iter iterator.Iterator, prefix []byte) *FilteredIterator {
	return NewFilteredIterator(iter, PrefixFilterFunc(prefix))
}
