package block

import (
	"errors"
	"math"
)

const (
	// DefaultBlockSize is the target size for each data block
	DefaultBlockSize = 4 * 1024
	// RestartInterval defines how often we store a full key
	RestartInterval = 16
	// MaxKeySize is the largest key the entry header can describe
	MaxKeySize = math.MaxUint16

	// entryHeaderSize covers shared (2) + unshared (2) + value length (4)
	entryHeaderSize = 8
	// restartSize is the width of one restart offset
	restartSize = 4
	// trailerSize covers the restart count (4) and the compression type (1)
	trailerSize = 4 + 1
)

var (
	// ErrEmptyBlock is returned when finishing a block with no entries
	ErrEmptyBlock = errors.New("cannot finish empty block")
	// ErrCorruptBlock indicates an encoded block could not be decoded
	ErrCorruptBlock = errors.New("block corrupted")
)
