// Package footer encodes the fixed-width tail of an sstkit table: the bloom
// section offset followed by the whole-file checksum.
package footer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KevoDB/sstkit/pkg/sstable/checksum"
)

// Size is the fixed size of the footer in bytes
const Size = 4 + checksum.Size

var (
	// ErrInvalidFooter indicates the footer could not be parsed
	ErrInvalidFooter = errors.New("invalid footer")
	// ErrChecksumMismatch indicates the whole-file checksum did not match
	ErrChecksumMismatch = errors.New("table checksum mismatch")
)

// Footer locates the bloom section and protects the whole file
type Footer struct {
	// Offset where the bloom filter section starts
	BloomOffset uint32
	// Checksum of every byte preceding it
	Checksum uint32
}

// Append writes the bloom offset to buf and then the checksum of the
// resulting buffer, completing the table.
func Append(buf []byte, bloomOffset uint32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, bloomOffset)
	return checksum.Append(buf, buf)
}

// Decode parses a footer from the last Size bytes of data
func Decode(data []byte) (*Footer, error) {
	if len(data) < Size {
		return nil, fmt.Errorf("%w: footer data too small: %d bytes, expected %d",
			ErrInvalidFooter, len(data), Size)
	}
	tail := data[len(data)-Size:]
	return &Footer{
		BloomOffset: binary.LittleEndian.Uint32(tail[0:4]),
		Checksum:    binary.LittleEndian.Uint32(tail[4:8]),
	}, nil
}

// Verify checks the whole-file checksum against the complete table bytes
func (f *Footer) Verify(table []byte) error {
	if len(table) < Size {
		return fmt.Errorf("%w: table too small: %d bytes", ErrInvalidFooter, len(table))
	}
	computed := checksum.Sum(table[:len(table)-checksum.Size])
	if computed != f.Checksum {
		return fmt.Errorf("%w: file has %d, calculated %d", ErrChecksumMismatch, f.Checksum, computed)
	}
	return nil
}
