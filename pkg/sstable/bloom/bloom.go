// Package bloom implements the per-table bloom filter built over key hashes.
package bloom

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/KevoDB/sstkit/pkg/sstable/checksum"
)

const (
	// DefaultFalsePositiveRate is the target used when none is configured
	DefaultFalsePositiveRate = 0.01
	// minBits keeps tiny filters from degenerating into a handful of bits
	minBits = 64
	// maxProbes bounds k; more probes cost time without improving the rate
	maxProbes = 30
)

// ErrCorrupted indicates an encoded filter failed validation
var ErrCorrupted = errors.New("bloom filter corrupted")

// Filter is an immutable bloom filter over 32-bit key hashes
type Filter struct {
	bits []byte
	k    uint8
}

// KeyHash returns the hash recorded for key when building a filter
func KeyHash(key []byte) uint32 {
	return murmur3.Sum32(key)
}

// BitsPerKey derives bits per key from the false-positive target alone.
// count only matters for guarding against empty input.
func BitsPerKey(count int, fpRate float64) int {
	if count <= 0 || fpRate <= 0 || fpRate >= 1 {
		return 1
	}
	bpk := -math.Log(fpRate) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(bpk))
}

// BuildFromHashes sets k probe bits per hash using double hashing
func BuildFromHashes(hashes []uint32, bitsPerKey int) *Filter {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}

	k := uint32(math.Round(float64(bitsPerKey) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > maxProbes {
		k = maxProbes
	}

	nbits := len(hashes) * bitsPerKey
	if nbits < minBits {
		nbits = minBits
	}
	nbytes := (nbits + 7) / 8
	nbits = nbytes * 8

	f := &Filter{
		bits: make([]byte, nbytes),
		k:    uint8(k),
	}
	for _, h := range hashes {
		delta := h>>17 | h<<15
		for i := uint32(0); i < k; i++ {
			pos := h % uint32(nbits)
			f.bits[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	return f
}

// MayContain reports false only when the hash was definitely never added
func (f *Filter) MayContain(h uint32) bool {
	nbits := uint32(len(f.bits) * 8)
	if nbits == 0 {
		return true
	}
	delta := h>>17 | h<<15
	for i := uint8(0); i < f.k; i++ {
		pos := h % nbits
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// Probes returns the number of bit positions checked per hash
func (f *Filter) Probes() int {
	return int(f.k)
}

// Len returns the size of the bit array in bits
func (f *Filter) Len() int {
	return len(f.bits) * 8
}

// Encode appends [bits][k][checksum] to buf
func (f *Filter) Encode(buf []byte) []byte {
	start := len(buf)
	buf = append(buf, f.bits...)
	buf = append(buf, f.k)
	return checksum.Append(buf, buf[start:])
}

// Decode parses a filter written by Encode, verifying its checksum
func Decode(data []byte) (*Filter, error) {
	payload, ok := checksum.Split(data)
	if !ok {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: missing probe count", ErrCorrupted)
	}

	k := payload[len(payload)-1]
	if k == 0 || k > maxProbes {
		return nil, fmt.Errorf("%w: invalid probe count %d", ErrCorrupted, k)
	}

	bits := make([]byte, len(payload)-1)
	copy(bits, payload)
	return &Filter{bits: bits, k: k}, nil
}
