package bounded

import (
	"bytes"

	"github.com/KevoDB/sstkit/pkg/common/iterator"
)

// BoundedIterator limits an iterator to the key range [start, end).
// A nil bound leaves that side of the range open.
type BoundedIterator struct {
	iterator.Iterator
	start []byte
	end   []byte
}

// NewBoundedIterator creates a new bounded iterator
func NewBoundedIterator(iter iterator.Iterator, startKey, endKey []byte) *BoundedIterator {
	return &BoundedIterator{
		Iterator: iter,
		start:    cloneBound(startKey),
		end:      cloneBound(endKey),
	}
}

func cloneBound(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// SeekToFirst positions at the first key in the bounded range
func (b *BoundedIterator) SeekToFirst() {
	if b.start != nil {
		b.Iterator.Seek(b.start)
	} else {
		b.Iterator.SeekToFirst()
	}
}

// SeekToLast positions at the last key in the bounded range. The source only
// moves forward, so with an end bound this scans from the start of the range.
func (b *BoundedIterator) SeekToLast() {
	if b.end == nil {
		b.Iterator.SeekToLast()
		return
	}

	var last []byte
	found := false
	for b.SeekToFirst(); b.Valid(); b.Next() {
		last = append(last[:0], b.Iterator.Key()...)
		found = true
	}
	if found {
		b.Iterator.Seek(last)
	}
}

// Seek positions at the first key >= target within bounds
func (b *BoundedIterator) Seek(target []byte) bool {
	if b.beforeStart(target) {
		target = b.start
	}
	b.Iterator.Seek(target)
	return b.Valid()
}

// Next advances to the next key within bounds
func (b *BoundedIterator) Next() bool {
	if !b.Valid() {
		return false
	}
	b.Iterator.Next()
	return b.Valid()
}

// Valid returns true if the iterator is positioned at a key within bounds
func (b *BoundedIterator) Valid() bool {
	if !b.Iterator.Valid() {
		return false
	}
	key := b.Iterator.Key()
	return !b.beforeStart(key) && !b.atOrPastEnd(key)
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

func (b *BoundedIterator) beforeStart(key []byte) bool {
	return b.start != nil && bytes.Compare(key, b.start) < 0
}

func (b *BoundedIterator) atOrPastEnd(key []byte) bool {
	return b.end != nil && bytes.Compare(key, b.end) >= 0
}
