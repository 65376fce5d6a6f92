// Package itertest provides an in-memory iterator for exercising iterator
// helpers in tests.
package itertest

import (
	"bytes"
	"sort"
)

// SliceIterator iterates over a fixed, sorted set of pairs
type SliceIterator struct {
	keys   [][]byte
	values [][]byte
	index  int
	err    error
}

// New creates an iterator over pairs given as key, value, key, value...
// Keys are sorted; duplicates keep the last value.
func New(kv ...string) *SliceIterator {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	it := &SliceIterator{index: -1}
	for _, k := range keys {
		it.keys = append(it.keys, []byte(k))
		it.values = append(it.values, []byte(m[k]))
	}
	return it
}

// FailWith makes the iterator invalid and report err
func (s *SliceIterator) FailWith(err error) {
	s.err = err
	s.index = -1
}

func (s *SliceIterator) SeekToFirst() {
	s.index = -1
	if len(s.keys) > 0 {
		s.index = 0
	}
}

func (s *SliceIterator) SeekToLast() {
	s.index = len(s.keys) - 1
}

func (s *SliceIterator) Seek(target []byte) bool {
	i := sort.Search(len(s.keys), func(i int) bool {
		return bytes.Compare(s.keys[i], target) >= 0
	})
	s.index = -1
	if i < len(s.keys) {
		s.index = i
	}
	return s.Valid()
}

func (s *SliceIterator) Next() bool {
	if !s.Valid() {
		return false
	}
	s.index++
	if s.index >= len(s.keys) {
		s.index = -1
	}
	return s.Valid()
}

func (s *SliceIterator) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return s.keys[s.index]
}

func (s *SliceIterator) Value() []byte {
	if !s.Valid() {
		return nil
	}
	return s.values[s.index]
}

func (s *SliceIterator) Valid() bool {
	return s.err == nil && s.index >= 0 && s.index < len(s.keys)
}

func (s *SliceIterator) Error() error {
	return s.err
}
