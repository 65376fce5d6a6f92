// Package merged combines several sorted iterators into one ordered view.
package merged

import (
	"bytes"

	"github.com/KevoDB/sstkit/pkg/common/iterator"
)

// MergingIterator yields the union of its sources in key order. Sources are
// ordered newest to oldest; when several hold the same key, the newest
// source's value is returned and the older entries are skipped.
type MergingIterator struct {
	sources []iterator.Iterator
	current int // index of the source holding the current entry, -1 when invalid
	key     []byte
}

// NewMergingIterator creates a merging iterator over sources, newest first
func NewMergingIterator(sources []iterator.Iterator) *MergingIterator {
	return &MergingIterator{sources: sources, current: -1}
}

// SeekToFirst positions the iterator at the smallest key of any source
func (m *MergingIterator) SeekToFirst() {
	for _, src := range m.sources {
		src.SeekToFirst()
	}
	m.pickSmallest()
}

// SeekToLast positions the iterator at the largest key of any source
func (m *MergingIterator) SeekToLast() {
	for _, src := range m.sources {
		src.SeekToLast()
	}

	m.current = -1
	for i, src := range m.sources {
		if !src.Valid() {
			continue
		}
		if m.current < 0 || bytes.Compare(src.Key(), m.sources[m.current].Key()) > 0 {
			m.current = i
		}
	}
	m.captureKey()
}

// Seek positions the iterator at the first key >= target
func (m *MergingIterator) Seek(target []byte) bool {
	for _, src := range m.sources {
		src.Seek(target)
	}
	m.pickSmallest()
	return m.Valid()
}

// Next advances past the current key in every source
func (m *MergingIterator) Next() bool {
	if !m.Valid() {
		return false
	}
	for _, src := range m.sources {
		for src.Valid() && bytes.Compare(src.Key(), m.key) <= 0 {
			src.Next()
		}
	}
	m.pickSmallest()
	return m.Valid()
}

// Key returns the current key
func (m *MergingIterator) Key() []byte {
	if !m.Valid() {
		return nil
	}
	return m.key
}

// Value returns the value of the newest source holding the current key
func (m *MergingIterator) Value() []byte {
	if !m.Valid() {
		return nil
	}
	return m.sources[m.current].Value()
}

// Valid returns true if the iterator is positioned at a valid entry
func (m *MergingIterator) Valid() bool {
	return m.current >= 0
}

// Error returns the first error reported by a source
func (m *MergingIterator) Error() error {
	for _, src := range m.sources {
		if err := src.Error(); err != nil {
			return err
		}
	}
	return nil
}

// NumSources returns the number of source iterators
func (m *MergingIterator) NumSources() int {
	return len(m.sources)
}

// pickSmallest selects the smallest key across sources. Ties go to the
// earliest, and therefore newest, source.
func (m *MergingIterator) pickSmallest() {
	m.current = -1
	for i, src := range m.sources {
		if !src.Valid() {
			continue
		}
		if m.current < 0 || bytes.Compare(src.Key(), m.sources[m.current].Key()) < 0 {
			m.current = i
		}
	}
	m.captureKey()
}

func (m *MergingIterator) captureKey() {
	if m.current < 0 {
		m.key = nil
		return
	}
	m.key = append([]byte(nil), m.sources[m.current].Key()...)
}
