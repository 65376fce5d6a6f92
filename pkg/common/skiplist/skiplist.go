// Package skiplist provides an ordered in-memory buffer of versioned
// key/value pairs. It accepts keys in any order and yields them sorted and
// deduplicated, which is the shape a table builder consumes.
package skiplist

import (
	"bytes"
	"math/rand"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// MaxHeight is the maximum height of the skip list
	MaxHeight = 12

	// BranchingFactor determines the probability of increasing the height
	BranchingFactor = 4
)

// entryOverhead approximates the per-entry bookkeeping cost in bytes
const entryOverhead = 16

type entry struct {
	key     []byte
	value   []byte
	version uint64
}

func (e *entry) size() int {
	return len(e.key) + len(e.value) + entryOverhead
}

// node represents a node in the skip list
type node struct {
	entry  atomic.Pointer[entry]
	height int32
	next   [MaxHeight]unsafe.Pointer
}

func newNode(e *entry, height int) *node {
	n := &node{height: int32(height)}
	n.entry.Store(e)
	return n
}

func (n *node) getNext(level int) *node {
	return (*node)(atomic.LoadPointer(&n.next[level]))
}

func (n *node) setNext(level int, next *node) {
	atomic.StorePointer(&n.next[level], unsafe.Pointer(next))
}

// SkipList holds one entry per key. Inserts must come from a single
// goroutine; readers may iterate concurrently with the writer.
type SkipList struct {
	head      *node
	maxHeight atomic.Int32
	rnd       *rand.Rand
	size      atomic.Int64
	count     atomic.Int64
}

// New creates an empty skip list
func New() *SkipList {
	s := &SkipList{
		head: newNode(nil, MaxHeight),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.maxHeight.Store(1)
	return s
}

func (s *SkipList) randomHeight() int {
	height := 1
	for height < MaxHeight && s.rnd.Intn(BranchingFactor) == 0 {
		height++
	}
	return height
}

// findGreaterOrEqual returns the first node with key >= key, filling prev
// with the rightmost node before it at each level when prev is non-nil
func (s *SkipList) findGreaterOrEqual(key []byte, prev *[MaxHeight]*node) *node {
	current := s.head
	for level := int(s.maxHeight.Load()) - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			if bytes.Compare(next.entry.Load().key, key) >= 0 {
				break
			}
			current = next
		}
		if prev != nil {
			prev[level] = current
		}
	}
	return current.getNext(0)
}

// Insert adds key with value at version. When key is already present the
// entry with the higher version is kept; on equal versions the later
// insert wins. Insert reports whether the buffer changed.
func (s *SkipList) Insert(key, value []byte, version uint64) bool {
	e := &entry{
		key:     append([]byte(nil), key...),
		value:   append([]byte(nil), value...),
		version: version,
	}

	var prev [MaxHeight]*node
	if found := s.findGreaterOrEqual(key, &prev); found != nil && bytes.Equal(found.entry.Load().key, key) {
		old := found.entry.Load()
		if old.version > version {
			return false
		}
		found.entry.Store(e)
		s.size.Add(int64(e.size() - old.size()))
		return true
	}

	height := s.randomHeight()
	if currHeight := int(s.maxHeight.Load()); height > currHeight {
		for level := currHeight; level < height; level++ {
			prev[level] = s.head
		}
		s.maxHeight.Store(int32(height))
	}

	n := newNode(e, height)
	for level := 0; level < height; level++ {
		n.setNext(level, prev[level].getNext(level))
		prev[level].setNext(level, n)
	}

	s.size.Add(int64(e.size()))
	s.count.Add(1)
	return true
}

// Get returns the value and version stored for key
func (s *SkipList) Get(key []byte) ([]byte, uint64, bool) {
	n := s.findGreaterOrEqual(key, nil)
	if n == nil {
		return nil, 0, false
	}
	e := n.entry.Load()
	if !bytes.Equal(e.key, key) {
		return nil, 0, false
	}
	return e.value, e.version, true
}

// Len returns the number of distinct keys
func (s *SkipList) Len() int {
	return int(s.count.Load())
}

// ApproximateSize returns the approximate size of the buffered entries in bytes
func (s *SkipList) ApproximateSize() int64 {
	return s.size.Load()
}

// Iterator walks the skip list in key order
type Iterator struct {
	list    *SkipList
	current *node
	entry   *entry
}

// NewIterator creates an unpositioned iterator over the list
func (s *SkipList) NewIterator() *Iterator {
	return &Iterator{list: s}
}

func (it *Iterator) moveTo(n *node) bool {
	it.current = n
	it.entry = nil
	if n != nil {
		it.entry = n.entry.Load()
	}
	return it.current != nil
}

// SeekToFirst positions the iterator at the smallest key
func (it *Iterator) SeekToFirst() {
	it.moveTo(it.list.head.getNext(0))
}

// SeekToLast positions the iterator at the largest key
func (it *Iterator) SeekToLast() {
	current := it.list.head
	for level := int(it.list.maxHeight.Load()) - 1; level >= 0; level-- {
		for next := current.getNext(level); next != nil; next = current.getNext(level) {
			current = next
		}
	}
	if current == it.list.head {
		current = nil
	}
	it.moveTo(current)
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target []byte) bool {
	return it.moveTo(it.list.findGreaterOrEqual(target, nil))
}

// Next advances to the next key
func (it *Iterator) Next() bool {
	if it.current == nil {
		return false
	}
	return it.moveTo(it.current.getNext(0))
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if it.entry == nil {
		return nil
	}
	return it.entry.key
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	if it.entry == nil {
		return nil
	}
	return it.entry.value
}

// Version returns the version of the current entry
func (it *Iterator) Version() uint64 {
	if it.entry == nil {
		return 0
	}
	return it.entry.version
}

// Valid returns true if the iterator is positioned at an entry
func (it *Iterator) Valid() bool {
	return it.current != nil
}

// Error always returns nil; the list is held in memory
func (it *Iterator) Error() error {
	return nil
}
