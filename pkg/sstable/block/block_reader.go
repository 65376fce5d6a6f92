package block

import (
	"encoding/binary"
	"fmt"
)

// Reader provides access to a decoded, immutable block
type Reader struct {
	data          []byte
	restartPoints []uint32
	dataEnd       uint32
}

// NewReader decodes a block produced by Builder.Finish.
// Integrity of the bytes is the caller's concern; NewReader only checks structure.
func NewReader(encoded []byte) (*Reader, error) {
	if len(encoded) < 1 {
		return nil, fmt.Errorf("%w: empty block", ErrCorruptBlock)
	}

	compression := Compression(encoded[len(encoded)-1])
	data, err := decompress(compression, encoded[:len(encoded)-1])
	if err != nil {
		return nil, err
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("%w: block data too small: %d bytes", ErrCorruptBlock, len(data))
	}

	footerOffset := len(data) - 4
	numRestarts := binary.LittleEndian.Uint32(data[footerOffset:])
	if numRestarts == 0 {
		return nil, fmt.Errorf("%w: block has no restart points", ErrCorruptBlock)
	}

	restartOffset := footerOffset - int(numRestarts)*restartSize
	if restartOffset <= 0 || uint64(numRestarts)*restartSize > uint64(footerOffset) {
		return nil, fmt.Errorf("%w: invalid restart points offset", ErrCorruptBlock)
	}

	restartPoints := make([]uint32, numRestarts)
	for i := range restartPoints {
		point := binary.LittleEndian.Uint32(data[restartOffset+i*restartSize:])
		if point >= uint32(restartOffset) || (i > 0 && point <= restartPoints[i-1]) {
			return nil, fmt.Errorf("%w: restart point %d out of range", ErrCorruptBlock, point)
		}
		restartPoints[i] = point
	}
	if restartPoints[0] != 0 {
		return nil, fmt.Errorf("%w: first restart point must be zero", ErrCorruptBlock)
	}

	return &Reader{
		data:          data,
		restartPoints: restartPoints,
		dataEnd:       uint32(restartOffset),
	}, nil
}

// Iterator returns a new, unpositioned iterator for the block
func (r *Reader) Iterator() *Iterator {
	return &Iterator{reader: r}
}

// Size returns the decoded size of the block in bytes
func (r *Reader) Size() int {
	return len(r.data)
}
