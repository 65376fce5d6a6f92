package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Iterator walks the entries of a single block in key order.
// It is not safe for concurrent use; create one per consumer.
type Iterator struct {
	reader *Reader
	key    []byte
	value  []byte
	next   uint32 // offset of the entry after the current one
	valid  bool
	err    error
}

// SeekToFirst positions the iterator at the first entry
func (it *Iterator) SeekToFirst() {
	it.err = nil
	it.positionAt(0, nil)
}

// SeekToLast positions the iterator at the last entry
func (it *Iterator) SeekToLast() {
	it.err = nil
	last := it.reader.restartPoints[len(it.reader.restartPoints)-1]
	if !it.positionAt(last, nil) {
		return
	}
	for it.next < it.reader.dataEnd {
		key, value, next, err := it.decodeAt(it.next, it.key)
		if err != nil {
			it.fail(err)
			return
		}
		it.key, it.value, it.next = key, value, next
	}
}

// Seek positions the iterator at the first key >= target and reports
// whether such an entry exists in this block
func (it *Iterator) Seek(target []byte) bool {
	it.err = nil
	restarts := it.reader.restartPoints

	// Find the first restart point whose key is > target; the target can only
	// live in the run that starts at the restart point before it.
	var searchErr error
	idx := sort.Search(len(restarts), func(i int) bool {
		if searchErr != nil {
			return true
		}
		key, _, _, err := it.decodeAt(restarts[i], nil)
		if err != nil {
			searchErr = err
			return true
		}
		return bytes.Compare(key, target) > 0
	})
	if searchErr != nil {
		it.fail(searchErr)
		return false
	}
	if idx > 0 {
		idx--
	}

	if !it.positionAt(restarts[idx], nil) {
		return false
	}
	for it.valid && bytes.Compare(it.key, target) < 0 {
		it.Next()
	}
	return it.valid
}

// Next advances the iterator to the next entry
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	if it.next >= it.reader.dataEnd {
		it.valid = false
		return false
	}

	key, value, next, err := it.decodeAt(it.next, it.key)
	if err != nil {
		it.fail(err)
		return false
	}
	it.key, it.value, it.next = key, value, next
	return true
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	return it.value
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.valid
}

// Error returns the decode error that invalidated the iterator, if any
func (it *Iterator) Error() error {
	return it.err
}

func (it *Iterator) positionAt(offset uint32, prev []byte) bool {
	if offset >= it.reader.dataEnd {
		it.valid = false
		return false
	}
	key, value, next, err := it.decodeAt(offset, prev)
	if err != nil {
		it.fail(err)
		return false
	}
	it.key, it.value, it.next, it.valid = key, value, next, true
	return true
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.valid = false
	it.key, it.value = nil, nil
}

// decodeAt decodes the entry starting at offset, rebuilding its key from prev
func (it *Iterator) decodeAt(offset uint32, prev []byte) (key, value []byte, next uint32, err error) {
	data := it.reader.data[offset:it.reader.dataEnd]
	if len(data) < entryHeaderSize {
		return nil, nil, 0, fmt.Errorf("%w: truncated entry header at offset %d", ErrCorruptBlock, offset)
	}

	shared := int(binary.LittleEndian.Uint16(data[0:2]))
	unshared := int(binary.LittleEndian.Uint16(data[2:4]))
	valueLen := int(binary.LittleEndian.Uint32(data[4:8]))
	data = data[entryHeaderSize:]

	if shared > len(prev) {
		return nil, nil, 0, fmt.Errorf("%w: shared prefix %d exceeds previous key at offset %d",
			ErrCorruptBlock, shared, offset)
	}
	end := unshared + valueLen
	if len(data) < end {
		return nil, nil, 0, fmt.Errorf("%w: truncated entry at offset %d", ErrCorruptBlock, offset)
	}

	key = make([]byte, shared+unshared)
	copy(key, prev[:shared])
	copy(key[shared:], data[:unshared])
	value = data[unshared:end:end]

	next = offset + uint32(entryHeaderSize+end)
	return key, value, next, nil
}
