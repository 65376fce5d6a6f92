package sstable

import (
	"fmt"

	"github.com/KevoDB/sstkit/pkg/sstable/block"
)

// Iterator walks a table's entries in key order across block boundaries.
// It holds a reference on the table until Close. An iterator is owned by a
// single goroutine; after it returns an error it must not be reused.
type Iterator struct {
	table     *Table
	blockIdx  int
	blockIter *block.Iterator
	closed    bool
}

// NewIterator creates an iterator positioned at the table's first entry
func NewIterator(t *Table) (*Iterator, error) {
	it, err := newIterator(t)
	if err != nil {
		return nil, err
	}
	if err := it.SeekToFirst(); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

// NewIteratorAt creates an iterator positioned at the first entry >= key
func NewIteratorAt(t *Table, key []byte) (*Iterator, error) {
	it, err := newIterator(t)
	if err != nil {
		return nil, err
	}
	if err := it.SeekToKey(key); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

func newIterator(t *Table) (*Iterator, error) {
	if err := t.Ref(); err != nil {
		return nil, err
	}
	return &Iterator{table: t}, nil
}

// SeekToFirst positions the iterator at the table's first entry
func (it *Iterator) SeekToFirst() error {
	if err := it.loadBlock(0); err != nil {
		return err
	}
	it.blockIter.SeekToFirst()
	return it.checkBlock()
}

// SeekToLast positions the iterator at the table's last entry
func (it *Iterator) SeekToLast() error {
	if err := it.loadBlock(it.table.NumBlocks() - 1); err != nil {
		return err
	}
	it.blockIter.SeekToLast()
	return it.checkBlock()
}

// SeekToKey positions the iterator at the first entry >= key. When key is past
// the last key the iterator becomes exhausted.
func (it *Iterator) SeekToKey(key []byte) error {
	if err := it.loadBlock(it.table.FindBlockIdx(key)); err != nil {
		return err
	}
	if it.blockIter.Seek(key) {
		return nil
	}
	if err := it.checkBlock(); err != nil {
		return err
	}

	// key falls between this block's last key and the next block's first
	return it.advanceBlock()
}

// Next moves to the following entry, crossing at most one block boundary
func (it *Iterator) Next() error {
	if !it.Valid() {
		return nil
	}
	if it.blockIter.Next() {
		return nil
	}
	if err := it.checkBlock(); err != nil {
		return err
	}
	return it.advanceBlock()
}

// Valid reports whether the iterator is positioned at an entry
func (it *Iterator) Valid() bool {
	return it.blockIter != nil && it.blockIter.Valid()
}

// Key returns the current key. It panics when the iterator is not valid.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		panic("sstable: Key called on invalid iterator")
	}
	return it.blockIter.Key()
}

// Value returns the current value. It panics when the iterator is not valid.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		panic("sstable: Value called on invalid iterator")
	}
	return it.blockIter.Value()
}

// BlockIndex returns the index of the block the iterator is positioned in
func (it *Iterator) BlockIndex() int {
	return it.blockIdx
}

// Close releases the iterator's reference on the table
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.blockIter = nil
	return it.table.Unref()
}

// advanceBlock moves to the first entry of the next block, or exhausts the
// iterator when there is none
func (it *Iterator) advanceBlock() error {
	next := it.blockIdx + 1
	if next <= it.blockIdx || next >= it.table.NumBlocks() {
		it.blockIter = nil
		return nil
	}
	if err := it.loadBlock(next); err != nil {
		return err
	}
	it.blockIter.SeekToFirst()
	return it.checkBlock()
}

func (it *Iterator) loadBlock(idx int) error {
	if it.closed {
		return ErrTableClosed
	}
	r, err := it.table.ReadBlockCached(idx)
	if err != nil {
		it.blockIter = nil
		return err
	}
	it.blockIdx = idx
	it.blockIter = r.Iterator()
	return nil
}

// checkBlock surfaces a decode failure from the block iterator
func (it *Iterator) checkBlock() error {
	if err := it.blockIter.Error(); err != nil {
		it.blockIter = nil
		return fmt.Errorf("%w: block %d: %w", ErrCorruption, it.blockIdx, err)
	}
	return nil
}
