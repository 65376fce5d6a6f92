package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/KevoDB/sstkit/pkg/sstable/checksum"
)

// BlockMeta locates one data block and bounds the keys it holds
type BlockMeta struct {
	// Offset is where the block starts in the file
	Offset uint32
	// FirstKey is the first key in the block
	FirstKey []byte
	// LastKey is the last key in the block
	LastKey []byte
}

// encodeMeta appends the meta section for metas to buf:
// count, then offset and length-prefixed first/last key per block, then the
// version watermark and a checksum over all of it.
func encodeMeta(buf []byte, metas []BlockMeta, maxVersion uint64) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metas)))
	for _, m := range metas {
		buf = binary.LittleEndian.AppendUint32(buf, m.Offset)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.FirstKey)))
		buf = append(buf, m.FirstKey...)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.LastKey)))
		buf = append(buf, m.LastKey...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, maxVersion)
	return checksum.Append(buf, buf[start:])
}

// decodeMeta parses and validates a meta section. dataEnd is the offset where
// the block region ends; every block must start before it.
func decodeMeta(data []byte, dataEnd uint32) ([]BlockMeta, uint64, error) {
	payload, ok := checksum.Split(data)
	if !ok {
		return nil, 0, fmt.Errorf("%w: meta section checksum mismatch", ErrCorruption)
	}
	if len(payload) < 4+8 {
		return nil, 0, fmt.Errorf("%w: meta section too small: %d bytes", ErrCorruption, len(payload))
	}

	count := binary.LittleEndian.Uint32(payload)
	pos := 4
	end := len(payload) - 8

	// Each entry needs at least an offset and two key lengths
	if count == 0 || uint64(count)*8 > uint64(end-pos) {
		return nil, 0, fmt.Errorf("%w: invalid block count %d", ErrCorruption, count)
	}

	readKey := func() ([]byte, error) {
		if end-pos < 2 {
			return nil, fmt.Errorf("%w: truncated key length at %d", ErrCorruption, pos)
		}
		n := int(binary.LittleEndian.Uint16(payload[pos:]))
		pos += 2
		if end-pos < n {
			return nil, fmt.Errorf("%w: truncated key at %d", ErrCorruption, pos)
		}
		key := make([]byte, n)
		copy(key, payload[pos:pos+n])
		pos += n
		return key, nil
	}

	metas := make([]BlockMeta, 0, count)
	for i := uint32(0); i < count; i++ {
		if end-pos < 4 {
			return nil, 0, fmt.Errorf("%w: truncated meta entry %d", ErrCorruption, i)
		}
		offset := binary.LittleEndian.Uint32(payload[pos:])
		pos += 4

		first, err := readKey()
		if err != nil {
			return nil, 0, err
		}
		last, err := readKey()
		if err != nil {
			return nil, 0, err
		}

		if offset >= dataEnd {
			return nil, 0, fmt.Errorf("%w: block %d offset %d beyond data end %d",
				ErrCorruption, i, offset, dataEnd)
		}
		if bytes.Compare(first, last) > 0 {
			return nil, 0, fmt.Errorf("%w: block %d first key after last key", ErrCorruption, i)
		}
		if i == 0 && offset != 0 {
			return nil, 0, fmt.Errorf("%w: first block starts at %d", ErrCorruption, offset)
		}
		if i > 0 {
			prev := metas[i-1]
			if offset <= prev.Offset {
				return nil, 0, fmt.Errorf("%w: block %d offset not increasing", ErrCorruption, i)
			}
			if bytes.Compare(prev.LastKey, first) >= 0 {
				return nil, 0, fmt.Errorf("%w: block %d overlaps block %d", ErrCorruption, i, i-1)
			}
		}

		metas = append(metas, BlockMeta{Offset: offset, FirstKey: first, LastKey: last})
	}

	if pos != end {
		return nil, 0, fmt.Errorf("%w: %d trailing bytes in meta section", ErrCorruption, end-pos)
	}

	return metas, binary.LittleEndian.Uint64(payload[end:]), nil
}

// blockEnd returns where block idx ends, given the end of the block region
func blockEnd(metas []BlockMeta, idx int, dataEnd uint32) uint32 {
	if idx+1 < len(metas) {
		return metas[idx+1].Offset
	}
	return dataEnd
}

// fitsOffset reports whether n can be stored as a section offset
func fitsOffset(n int) bool {
	return uint64(n) <= math.MaxUint32
}
