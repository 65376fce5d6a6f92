package block

import (
	"encoding/binary"
	"fmt"
)

// Builder constructs a sorted, serialized block bounded by a byte budget
type Builder struct {
	blockSize     int
	compression   Compression
	buf           []byte
	restartPoints []uint32
	restartIdx    int
	entries       int
	lastKey       []byte
}

// NewBuilder creates a new block builder targeting blockSize encoded bytes
func NewBuilder(blockSize int, compression Compression) *Builder {
	return &Builder{
		blockSize:   blockSize,
		compression: compression,
	}
}

// Add appends a key-value pair if it fits in the remaining budget.
// Keys must be added in strictly increasing order. Add returns false when
// accepting the entry would push the block past its budget, including the
// case where the block is empty and the entry alone is too large.
func (b *Builder) Add(key, value []byte) bool {
	if len(key) > MaxKeySize {
		return false
	}

	restart := b.entries == 0 || b.restartIdx >= RestartInterval
	shared := 0
	if !restart {
		shared = sharedPrefixLen(b.lastKey, key)
	}

	grow := entryHeaderSize + len(key) - shared + len(value)
	if restart {
		grow += restartSize
	}
	if b.EstimatedSize()+grow > b.blockSize {
		return false
	}

	if restart {
		b.restartPoints = append(b.restartPoints, uint32(len(b.buf)))
		b.restartIdx = 0
	}

	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(shared))
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(len(key)-shared))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.restartIdx++
	b.entries++
	return true
}

// EstimatedSize returns the uncompressed size of the block if finished now.
// An empty builder still reports its fixed trailer.
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + len(b.restartPoints)*restartSize + trailerSize
}

// Entries returns the number of entries in the block
func (b *Builder) Entries() int {
	return b.entries
}

// Empty reports whether no entry has been added
func (b *Builder) Empty() bool {
	return b.entries == 0
}

// Finish serializes the block. The builder must not be reused afterwards.
func (b *Builder) Finish() ([]byte, error) {
	if b.entries == 0 {
		return nil, ErrEmptyBlock
	}

	raw := make([]byte, 0, b.EstimatedSize())
	raw = append(raw, b.buf...)
	for _, point := range b.restartPoints {
		raw = binary.LittleEndian.AppendUint32(raw, point)
	}
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(b.restartPoints)))

	payload, err := compress(b.compression, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compress block: %w", err)
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	out = append(out, byte(b.compression))
	return out, nil
}

func sharedPrefixLen(a, b []byte) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

