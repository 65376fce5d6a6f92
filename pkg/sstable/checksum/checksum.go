// Package checksum computes the fixed-width checksums stored after every
// block, section and table in an sstkit file.
package checksum

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Size is the encoded width of a checksum in bytes
const Size = 4

// Sum returns the low 32 bits of the xxHash64 digest of data (seed 0).
func Sum(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

// Append computes the checksum of data and appends it to buf in little-endian order
func Append(buf, data []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, Sum(data))
}

// Split separates a payload from its trailing checksum and reports whether the
// stored checksum matches. A buffer shorter than Size never matches.
func Split(data []byte) (payload []byte, ok bool) {
	if len(data) < Size {
		return nil, false
	}
	payload = data[:len(data)-Size]
	stored := binary.LittleEndian.Uint32(data[len(data)-Size:])
	return payload, stored == Sum(payload)
}
