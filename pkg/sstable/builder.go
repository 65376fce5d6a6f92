package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/KevoDB/sstkit/pkg/sstable/block"
	"github.com/KevoDB/sstkit/pkg/sstable/bloom"
	"github.com/KevoDB/sstkit/pkg/sstable/checksum"
	"github.com/KevoDB/sstkit/pkg/sstable/footer"
	"github.com/KevoDB/sstkit/pkg/storage"
)

// Builder accumulates sorted entries into blocks and persists them as a table.
// A Builder is owned by a single goroutine and is consumed by Build.
type Builder struct {
	blockSize int
	opts      Options

	// open block
	builder  *block.Builder
	firstKey []byte
	lastKey  []byte

	// finalized blocks with their checksums
	data  []byte
	metas []BlockMeta

	keyHashes  []uint32
	prevKey    []byte
	entries    int
	maxVersion uint64
	started    time.Time
	finished   bool
}

// NewBuilder creates a builder producing blocks of at most blockSize bytes
func NewBuilder(blockSize int, opts ...Option) *Builder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	o := applyOptions(opts)
	return &Builder{
		blockSize: blockSize,
		opts:      o,
		builder:   block.NewBuilder(blockSize, o.Compression),
		started:   o.Clock(),
	}
}

// Add appends a key-value pair. Keys must be strictly increasing. version
// feeds the table's watermark when the builder tracks versions.
func (b *Builder) Add(key, value []byte, version uint64) error {
	if b.finished {
		return ErrBuilderFinished
	}
	if b.entries > 0 && bytes.Compare(key, b.prevKey) <= 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, key, b.prevKey)
	}

	if !b.builder.Add(key, value) {
		if b.builder.Empty() {
			return fmt.Errorf("%w: key %d bytes, value %d bytes, block size %d",
				ErrEntryTooLarge, len(key), len(value), b.blockSize)
		}
		if err := b.finalizeBlock(); err != nil {
			return err
		}
		if !b.builder.Add(key, value) {
			return fmt.Errorf("%w: key %d bytes, value %d bytes, block size %d",
				ErrEntryTooLarge, len(key), len(value), b.blockSize)
		}
	}

	if b.builder.Entries() == 1 {
		b.firstKey = append([]byte(nil), key...)
	}
	b.lastKey = append(b.lastKey[:0], key...)
	b.prevKey = append(b.prevKey[:0], key...)
	b.keyHashes = append(b.keyHashes, bloom.KeyHash(key))
	b.entries++

	switch b.opts.Watermark {
	case WatermarkIngestTime:
		if now := uint64(b.opts.Clock().UnixNano()); now > b.maxVersion {
			b.maxVersion = now
		}
	default:
		if version > b.maxVersion {
			b.maxVersion = version
		}
	}

	return nil
}

// EstimatedSize returns the bytes of finalized blocks and their checksums.
// The open block is not counted.
func (b *Builder) EstimatedSize() uint64 {
	return uint64(len(b.data))
}

// Entries returns the number of entries added so far
func (b *Builder) Entries() int {
	return b.entries
}

// finalizeBlock encodes the open block and appends it to the data region
func (b *Builder) finalizeBlock() error {
	open := b.builder
	b.builder = block.NewBuilder(b.blockSize, b.opts.Compression)

	encoded, err := open.Finish()
	if err != nil {
		return fmt.Errorf("failed to finish block: %w", err)
	}

	offset := len(b.data)
	if !fitsOffset(offset + len(encoded) + checksum.Size) {
		return fmt.Errorf("%w: block at offset %d does not fit a 32-bit offset", ErrIndexOverflow, offset)
	}

	b.metas = append(b.metas, BlockMeta{
		Offset:   uint32(offset),
		FirstKey: b.firstKey,
		LastKey:  append([]byte(nil), b.lastKey...),
	})
	b.data = append(b.data, encoded...)
	b.data = checksum.Append(b.data, encoded)

	b.opts.Observer.OnBlockFinalized(BlockEvent{
		Index:    len(b.metas) - 1,
		Offset:   uint32(offset),
		Size:     len(encoded),
		Entries:  open.Entries(),
		FirstKey: b.firstKey,
		LastKey:  b.lastKey,
	})

	b.firstKey = nil
	b.lastKey = b.lastKey[:0]
	return nil
}

// Build finalizes the open block, writes the meta and bloom sections and the
// footer, persists the bytes through store at path and returns the read view.
// The builder cannot be used afterwards, whether or not Build succeeds.
func (b *Builder) Build(id uint64, cache BlockCache, store storage.FileStore, path string) (*Table, error) {
	if b.finished {
		return nil, ErrBuilderFinished
	}
	b.finished = true

	if !b.builder.Empty() {
		if err := b.finalizeBlock(); err != nil {
			return nil, err
		}
	}
	if len(b.metas) == 0 {
		return nil, ErrEmptyTable
	}

	buf := b.data
	metaOffset := len(buf)
	buf = encodeMeta(buf, b.metas, b.maxVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(metaOffset))

	filter := bloom.BuildFromHashes(b.keyHashes,
		bloom.BitsPerKey(len(b.keyHashes), b.opts.BloomFalsePositiveRate))
	bloomOffset := len(buf)
	buf = filter.Encode(buf)
	buf = footer.Append(buf, uint32(bloomOffset))

	if !fitsOffset(len(buf)) {
		return nil, fmt.Errorf("%w: table of %d bytes does not fit 32-bit offsets", ErrIndexOverflow, len(buf))
	}

	file, err := store.Create(path, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to persist table %d: %w", ErrIO, id, err)
	}

	t := newTable(id, file, cache, b.metas, filter, b.maxVersion, uint32(metaOffset))

	b.opts.Observer.OnTableBuilt(TableEvent{
		ID:         id,
		Path:       path,
		Size:       uint64(len(buf)),
		Blocks:     len(b.metas),
		Entries:    b.entries,
		MaxVersion: b.maxVersion,
		BloomBits:  filter.Len(),
		Duration:   b.opts.Clock().Sub(b.started),
	})

	b.data = nil
	b.keyHashes = nil
	return t, nil
}
