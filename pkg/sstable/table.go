package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/KevoDB/sstkit/pkg/cache"
	"github.com/KevoDB/sstkit/pkg/sstable/block"
	"github.com/KevoDB/sstkit/pkg/sstable/bloom"
	"github.com/KevoDB/sstkit/pkg/sstable/checksum"
	"github.com/KevoDB/sstkit/pkg/sstable/footer"
	"github.com/KevoDB/sstkit/pkg/storage"
)

// CacheKey identifies a decoded block across every table sharing a cache
type CacheKey struct {
	TableID    uint64
	BlockIndex int
}

// BlockCache stores decoded blocks. GetOrLoad must call load at most once
// per missing key, even under concurrent callers.
type BlockCache interface {
	GetOrLoad(key CacheKey, load func() (*block.Reader, error)) (*block.Reader, error)
}

// blockEvicter is implemented by caches that can drop a closed table's blocks
type blockEvicter interface {
	Evict(pred func(CacheKey) bool) int
}

// NewBlockCache creates an LRU block cache holding up to capacity blocks
func NewBlockCache(capacity int) *cache.Cache[CacheKey, *block.Reader] {
	return cache.New[CacheKey, *block.Reader](capacity)
}

// Table is an immutable read view over a persisted table. It is safe for
// concurrent use and is shared by reference counting: the creator holds the
// first reference and releases it with Close.
type Table struct {
	id         uint64
	file       storage.File
	cache      BlockCache
	metas      []BlockMeta
	metaOffset uint32 // end of the block region
	bloom      *bloom.Filter
	firstKey   []byte
	lastKey    []byte
	maxVersion uint64

	refs   atomic.Int64
	closed atomic.Bool
}

func newTable(id uint64, file storage.File, cache BlockCache, metas []BlockMeta,
	filter *bloom.Filter, maxVersion uint64, metaOffset uint32) *Table {
	t := &Table{
		id:         id,
		file:       file,
		cache:      cache,
		metas:      metas,
		metaOffset: metaOffset,
		bloom:      filter,
		firstKey:   metas[0].FirstKey,
		lastKey:    metas[len(metas)-1].LastKey,
		maxVersion: maxVersion,
	}
	t.refs.Store(1)
	return t
}

// Open reads the trailer sections of a persisted table and returns its read
// view. The table takes ownership of file and closes it with its last reference.
func Open(id uint64, file storage.File, cache BlockCache, opts ...Option) (*Table, error) {
	o := applyOptions(opts)
	size := file.Size()

	if size < uint64(offsetSize+footer.Size) {
		return nil, fmt.Errorf("%w: file too small: %d bytes", ErrCorruption, size)
	}
	if size > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: file of %d bytes exceeds 32-bit offsets", ErrCorruption, size)
	}

	tail, err := file.ReadRange(size-footer.Size, footer.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read footer: %w", ErrIO, err)
	}
	ft, err := footer.Decode(tail)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruption, err)
	}

	bloomEnd := size - footer.Size
	bloomOffset := uint64(ft.BloomOffset)
	if bloomOffset < offsetSize || bloomOffset > bloomEnd {
		return nil, fmt.Errorf("%w: bloom offset %d out of range", ErrCorruption, bloomOffset)
	}

	raw, err := file.ReadRange(bloomOffset-offsetSize, offsetSize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read meta offset: %w", ErrIO, err)
	}
	metaOffset := uint64(binary.LittleEndian.Uint32(raw))
	metaEnd := bloomOffset - offsetSize
	if metaOffset > metaEnd {
		return nil, fmt.Errorf("%w: meta offset %d out of range", ErrCorruption, metaOffset)
	}

	trailer, err := file.ReadRange(metaOffset, bloomEnd-metaOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read table trailer: %w", ErrIO, err)
	}

	metas, maxVersion, err := decodeMeta(trailer[:metaEnd-metaOffset], uint32(metaOffset))
	if err != nil {
		return nil, err
	}
	filter, err := bloom.Decode(trailer[bloomOffset-metaOffset:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruption, err)
	}

	if o.ParanoidChecks {
		all, err := file.ReadRange(0, size)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read table: %w", ErrIO, err)
		}
		if err := ft.Verify(all); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruption, err)
		}
	}

	return newTable(id, file, cache, metas, filter, maxVersion, uint32(metaOffset)), nil
}

// ID returns the table identifier used in cache keys
func (t *Table) ID() uint64 { return t.id }

// NumBlocks returns the number of data blocks
func (t *Table) NumBlocks() int { return len(t.metas) }

// FirstKey returns the smallest key in the table
func (t *Table) FirstKey() []byte { return t.firstKey }

// LastKey returns the largest key in the table
func (t *Table) LastKey() []byte { return t.lastKey }

// MaxVersion returns the table's version watermark
func (t *Table) MaxVersion() uint64 { return t.maxVersion }

// BlockMetas returns the per-block index. Callers must not modify it.
func (t *Table) BlockMetas() []BlockMeta { return t.metas }

// Bloom returns the table's bloom filter
func (t *Table) Bloom() *bloom.Filter { return t.bloom }

// Size returns the persisted size in bytes
func (t *Table) Size() uint64 { return t.file.Size() }

// FindBlockIdx returns the index of the block that may hold key: the last
// block whose first key is <= key, or 0 when key precedes every block.
func (t *Table) FindBlockIdx(key []byte) int {
	idx := sort.Search(len(t.metas), func(i int) bool {
		return bytes.Compare(t.metas[i].FirstKey, key) > 0
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// ReadBlockCached returns the decoded block idx, going through the cache
// when one is configured
func (t *Table) ReadBlockCached(idx int) (*block.Reader, error) {
	if idx < 0 || idx >= len(t.metas) {
		return nil, fmt.Errorf("%w: block %d of %d", ErrIndexOverflow, idx, len(t.metas))
	}
	if t.cache == nil {
		return t.readBlock(idx)
	}
	return t.cache.GetOrLoad(CacheKey{TableID: t.id, BlockIndex: idx}, func() (*block.Reader, error) {
		return t.readBlock(idx)
	})
}

// readBlock reads, verifies and decodes block idx from the file
func (t *Table) readBlock(idx int) (*block.Reader, error) {
	start := t.metas[idx].Offset
	end := blockEnd(t.metas, idx, t.metaOffset)
	if end < start || end-start <= checksum.Size {
		return nil, fmt.Errorf("%w: block %d has invalid extent [%d, %d)", ErrCorruption, idx, start, end)
	}

	raw, err := t.file.ReadRange(uint64(start), uint64(end-start))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read block %d: %w", ErrIO, idx, err)
	}

	payload, ok := checksum.Split(raw)
	if !ok {
		return nil, fmt.Errorf("%w: block %d checksum mismatch", ErrCorruption, idx)
	}

	r, err := block.NewReader(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", ErrCorruption, idx, err)
	}
	return r, nil
}

// MayContain reports whether key could be in the table. False means the key
// is definitely absent.
func (t *Table) MayContain(key []byte) bool {
	if bytes.Compare(key, t.firstKey) < 0 || bytes.Compare(key, t.lastKey) > 0 {
		return false
	}
	return t.bloom.MayContain(bloom.KeyHash(key))
}

// Get returns the value stored for key or ErrNotFound
func (t *Table) Get(key []byte) ([]byte, error) {
	if !t.MayContain(key) {
		return nil, ErrNotFound
	}

	idx := t.FindBlockIdx(key)
	r, err := t.ReadBlockCached(idx)
	if err != nil {
		return nil, err
	}

	it := r.Iterator()
	if it.Seek(key) && bytes.Equal(it.Key(), key) {
		return append([]byte(nil), it.Value()...), nil
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: block %d: %w", ErrCorruption, idx, err)
	}
	return nil, ErrNotFound
}

// Verify checks the whole-file checksum and every block checksum, bypassing
// the cache
func (t *Table) Verify() error {
	size := t.file.Size()
	all, err := t.file.ReadRange(0, size)
	if err != nil {
		return fmt.Errorf("%w: failed to read table: %w", ErrIO, err)
	}

	ft, err := footer.Decode(all)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	if err := ft.Verify(all); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruption, err)
	}

	for i := range t.metas {
		start := t.metas[i].Offset
		end := blockEnd(t.metas, i, t.metaOffset)
		if end < start || uint64(end) > size {
			return fmt.Errorf("%w: block %d has invalid extent [%d, %d)", ErrCorruption, i, start, end)
		}
		if _, ok := checksum.Split(all[start:end]); !ok {
			return fmt.Errorf("%w: block %d checksum mismatch", ErrCorruption, i)
		}
	}
	return nil
}

// Ref takes an additional reference on the table
func (t *Table) Ref() error {
	for {
		n := t.refs.Load()
		if n <= 0 {
			return ErrTableClosed
		}
		if t.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Unref releases a reference taken with Ref. The last release closes the
// file and evicts the table's blocks from the cache.
func (t *Table) Unref() error {
	n := t.refs.Add(-1)
	switch {
	case n > 0:
		return nil
	case n < 0:
		t.refs.Add(1)
		return ErrTableClosed
	}

	if ev, ok := t.cache.(blockEvicter); ok {
		id := t.id
		ev.Evict(func(k CacheKey) bool { return k.TableID == id })
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("%w: failed to close table %d: %w", ErrIO, t.id, err)
	}
	return nil
}

// Close releases the creator's reference. Iterators still open keep the
// table readable until they are closed.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrTableClosed
	}
	return t.Unref()
}

// Refs returns the current reference count
func (t *Table) Refs() int64 {
	return t.refs.Load()
}
