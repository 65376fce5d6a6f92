package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/KevoDB/sstkit/pkg/sstable/footer"
	"github.com/KevoDB/sstkit/pkg/storage"
)

func TestTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	const numEntries = 2000
	b := NewBuilder(4096)
	for i := 0; i < numEntries; i++ {
		if err := b.Add(testKey(i), testValue(i), uint64(i)); err != nil {
			t.Fatalf("Failed to add entry %d: %v", i, err)
		}
	}
	built, err := b.Build(42, nil, store, "000042.sst")
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}
	defer built.Close()

	file, err := store.Open(filepath.Join(dir, "000042.sst"))
	if err != nil {
		t.Fatalf("Failed to open table file: %v", err)
	}
	table, err := Open(42, file, NewBlockCache(16), WithParanoidChecks(true))
	if err != nil {
		t.Fatalf("Failed to open table: %v", err)
	}
	defer table.Close()

	if table.NumBlocks() != built.NumBlocks() {
		t.Errorf("Expected %d blocks, got %d", built.NumBlocks(), table.NumBlocks())
	}
	for i, meta := range table.BlockMetas() {
		want := built.BlockMetas()[i]
		if meta.Offset != want.Offset || !bytes.Equal(meta.FirstKey, want.FirstKey) || !bytes.Equal(meta.LastKey, want.LastKey) {
			t.Errorf("Block meta %d mismatch: got %+v, want %+v", i, meta, want)
		}
	}
	if !bytes.Equal(table.FirstKey(), testKey(0)) {
		t.Errorf("Expected first key %s, got %s", testKey(0), table.FirstKey())
	}
	if !bytes.Equal(table.LastKey(), testKey(numEntries-1)) {
		t.Errorf("Expected last key %s, got %s", testKey(numEntries-1), table.LastKey())
	}
	if table.MaxVersion() != numEntries-1 {
		t.Errorf("Expected watermark %d, got %d", numEntries-1, table.MaxVersion())
	}
	if table.Size() != built.Size() {
		t.Errorf("Expected size %d, got %d", built.Size(), table.Size())
	}

	iter, err := NewIterator(table)
	if err != nil {
		t.Fatalf("Failed to create iterator: %v", err)
	}
	defer iter.Close()

	count := 0
	for ; iter.Valid(); count++ {
		if !bytes.Equal(iter.Key(), testKey(count)) {
			t.Fatalf("Entry %d: expected key %s, got %s", count, testKey(count), iter.Key())
		}
		if !bytes.Equal(iter.Value(), testValue(count)) {
			t.Fatalf("Entry %d: expected value %s, got %s", count, testValue(count), iter.Value())
		}
		if err := iter.Next(); err != nil {
			t.Fatalf("Next failed at entry %d: %v", count, err)
		}
	}
	if count != numEntries {
		t.Errorf("Expected %d entries, got %d", numEntries, count)
	}

	if err := table.Verify(); err != nil {
		t.Errorf("Verify failed on intact table: %v", err)
	}
}

func TestTableGetAndMayContain(t *testing.T) {
	// Only even keys are present
	table, _ := buildTestTable(t, 500, 2, 1024)
	defer table.Close()

	for i := 0; i < 1000; i++ {
		value, err := table.Get(testKey(i))
		if i%2 == 0 {
			if err != nil {
				t.Fatalf("Failed to get present key %d: %v", i, err)
			}
			if !bytes.Equal(value, testValue(i)) {
				t.Errorf("Expected %s, got %s", testValue(i), value)
			}
			if !table.MayContain(testKey(i)) {
				t.Errorf("MayContain false for present key %d", i)
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for key %d, got %v", i, err)
		}
	}

	for _, key := range []string{"a", "key99999", "zzz"} {
		if table.MayContain([]byte(key)) {
			t.Errorf("MayContain should be false outside the key range for %q", key)
		}
		if _, err := table.Get([]byte(key)); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for %q, got %v", key, err)
		}
	}
}

func TestTableGetReturnsCopy(t *testing.T) {
	cache := NewBlockCache(4)
	b := NewBuilder(4096)
	b.Add([]byte("k"), []byte("original"), 0)
	table, err := b.Build(1, cache, storage.NewMemStore(), "copy.sst")
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}
	defer table.Close()

	value, _ := table.Get([]byte("k"))
	copy(value, "XXXXXXXX")

	again, err := table.Get([]byte("k"))
	if err != nil || string(again) != "original" {
		t.Errorf("Cached block was modified through a returned value: %q, %v", again, err)
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	const numKeys = 10000
	table, _ := buildTestTable(t, numKeys, 1, 4096)
	defer table.Close()

	for i := 0; i < numKeys; i++ {
		if !table.MayContain(testKey(i)) {
			t.Fatalf("False negative for inserted key %d", i)
		}
	}

	// Absent keys inside the table's range so only the filter can reject them
	falsePositives := 0
	const probes = 20000
	for i := 0; i < probes; i++ {
		key := []byte(fmt.Sprintf("key%05d-absent-%d", i%numKeys, i))
		if table.MayContain(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / probes
	if rate > 0.02 {
		t.Errorf("False positive rate %.4f exceeds 2%% for a 1%% target", rate)
	}
}

func TestFindBlockIdx(t *testing.T) {
	table, _ := buildTestTable(t, 300, 2, 256)
	defer table.Close()

	metas := table.BlockMetas()
	if len(metas) < 3 {
		t.Fatalf("Expected at least 3 blocks, got %d", len(metas))
	}

	if idx := table.FindBlockIdx([]byte("a")); idx != 0 {
		t.Errorf("Key before every block should clamp to 0, got %d", idx)
	}
	if idx := table.FindBlockIdx([]byte("zzz")); idx != len(metas)-1 {
		t.Errorf("Key after every block should map to the last block, got %d", idx)
	}
	for i, meta := range metas {
		if idx := table.FindBlockIdx(meta.FirstKey); idx != i {
			t.Errorf("First key of block %d mapped to %d", i, idx)
		}
		if idx := table.FindBlockIdx(meta.LastKey); idx != i {
			t.Errorf("Last key of block %d mapped to %d", i, idx)
		}
	}
}

func TestReadBlockCachedOutOfRange(t *testing.T) {
	table, _ := buildTestTable(t, 10, 1, 4096)
	defer table.Close()

	for _, idx := range []int{-1, table.NumBlocks()} {
		if _, err := table.ReadBlockCached(idx); !errors.Is(err, ErrIndexOverflow) {
			t.Errorf("Expected ErrIndexOverflow for block %d, got %v", idx, err)
		}
	}
}

// corruptAndOpen flips one byte of the persisted table at pos and reopens it
func corruptAndOpen(t *testing.T, store *storage.MemStore, pos uint64, opts ...Option) (*Table, error) {
	t.Helper()

	data, err := store.ReadAll("test.sst")
	if err != nil {
		t.Fatalf("Failed to read table: %v", err)
	}
	data[pos] ^= 0xff

	file, err := store.Create("corrupt.sst", data)
	if err != nil {
		t.Fatalf("Failed to write corrupted table: %v", err)
	}
	return Open(2, file, nil, opts...)
}

func TestChecksumDetectsBlockCorruption(t *testing.T) {
	table, store := buildTestTable(t, 200, 1, 512)
	defer table.Close()

	metas := table.BlockMetas()
	target := 1
	corrupt, err := corruptAndOpen(t, store, uint64(metas[target].Offset)+3)
	if err != nil {
		t.Fatalf("Block corruption should not prevent Open: %v", err)
	}
	defer corrupt.Close()

	if _, err := corrupt.ReadBlockCached(target); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption reading block %d, got %v", target, err)
	}
	if _, err := corrupt.ReadBlockCached(0); err != nil {
		t.Errorf("Intact block 0 should still read: %v", err)
	}
	if _, err := corrupt.Get(metas[target].FirstKey); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption from Get, got %v", err)
	}
	if err := corrupt.Verify(); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption from Verify, got %v", err)
	}

	iter, err := NewIterator(corrupt)
	if err != nil {
		t.Fatalf("Failed to create iterator: %v", err)
	}
	defer iter.Close()
	for iter.Valid() {
		err = iter.Next()
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected iteration to stop with ErrCorruption, got %v", err)
	}
	if iter.Valid() {
		t.Error("Iterator should be invalid after a corruption error")
	}
}

func TestChecksumDetectsTrailerCorruption(t *testing.T) {
	table, store := buildTestTable(t, 200, 1, 512)
	defer table.Close()

	data, _ := store.ReadAll("test.sst")
	ft, err := footer.Decode(data)
	if err != nil {
		t.Fatalf("Failed to decode footer: %v", err)
	}

	tests := []struct {
		name string
		pos  uint64
	}{
		{"meta count", uint64(table.metaOffset)},
		{"meta entry", uint64(table.metaOffset) + 6},
		{"meta watermark", uint64(ft.BloomOffset) - offsetSize - 6},
		{"meta offset", uint64(ft.BloomOffset) - 2},
		{"bloom bits", uint64(ft.BloomOffset) + 1},
		{"bloom checksum", uint64(len(data)) - footer.Size - 1},
		{"bloom offset", uint64(len(data)) - footer.Size + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt, err := corruptAndOpen(t, store, tt.pos)
			if err == nil {
				corrupt.Close()
				t.Fatal("Expected Open to fail")
			}
			if !errors.Is(err, ErrCorruption) {
				t.Errorf("Expected ErrCorruption, got %v", err)
			}
		})
	}
}

func TestParanoidChecksDetectFileChecksum(t *testing.T) {
	table, store := buildTestTable(t, 50, 1, 4096)
	defer table.Close()

	size := table.Size()

	// Only the whole-file checksum changes, every section stays intact
	corrupt, err := corruptAndOpen(t, store, size-1)
	if err != nil {
		t.Fatalf("Open without paranoid checks should succeed: %v", err)
	}
	if err := corrupt.Verify(); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption from Verify, got %v", err)
	}
	corrupt.Close()

	if _, err := corruptAndOpen(t, store, size-1, WithParanoidChecks(true)); !errors.Is(err, ErrCorruption) {
		t.Errorf("Expected ErrCorruption with paranoid checks, got %v", err)
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	table, store := buildTestTable(t, 50, 1, 4096)
	defer table.Close()

	data, _ := store.ReadAll("test.sst")
	for _, n := range []int{0, 4, footer.Size + 3, len(data) / 2} {
		file, _ := store.Create("short.sst", data[:n])
		if _, err := Open(3, file, nil); !errors.Is(err, ErrCorruption) {
			t.Errorf("Expected ErrCorruption for %d byte file, got %v", n, err)
		}
	}
}

func TestTableRefCounting(t *testing.T) {
	cache := NewBlockCache(64)
	b := NewBuilder(256)
	for i := 0; i < 100; i++ {
		b.Add(testKey(i), testValue(i), 0)
	}
	table, err := b.Build(9, cache, storage.NewMemStore(), "refs.sst")
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}

	if table.Refs() != 1 {
		t.Fatalf("Expected 1 reference after build, got %d", table.Refs())
	}

	iter, err := NewIterator(table)
	if err != nil {
		t.Fatalf("Failed to create iterator: %v", err)
	}
	if table.Refs() != 2 {
		t.Errorf("Expected 2 references with an open iterator, got %d", table.Refs())
	}

	// Closing the table keeps it readable for the iterator
	if err := table.Close(); err != nil {
		t.Fatalf("Failed to close table: %v", err)
	}
	if err := table.Close(); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Expected ErrTableClosed on second close, got %v", err)
	}

	count := 0
	for ; iter.Valid(); count++ {
		if err := iter.Next(); err != nil {
			t.Fatalf("Next failed after table close: %v", err)
		}
	}
	if count != 100 {
		t.Errorf("Expected 100 entries, got %d", count)
	}
	if cache.Len() == 0 {
		t.Error("Expected blocks to be cached while the iterator is open")
	}

	if err := iter.Close(); err != nil {
		t.Fatalf("Failed to close iterator: %v", err)
	}
	if err := iter.Close(); err != nil {
		t.Errorf("Closing an iterator twice should be a no-op: %v", err)
	}

	if table.Refs() != 0 {
		t.Errorf("Expected 0 references, got %d", table.Refs())
	}
	if cache.Len() != 0 {
		t.Errorf("Expected cached blocks to be evicted, %d remain", cache.Len())
	}
	if err := table.Ref(); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Expected ErrTableClosed from Ref, got %v", err)
	}
	if _, err := NewIterator(table); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Expected ErrTableClosed from NewIterator, got %v", err)
	}
	if err := table.Unref(); !errors.Is(err, ErrTableClosed) {
		t.Errorf("Expected ErrTableClosed from extra Unref, got %v", err)
	}
	if table.Refs() != 0 {
		t.Errorf("Extra Unref must not change the count, got %d", table.Refs())
	}
}

func TestSharedCacheKeepsOtherTables(t *testing.T) {
	cache := NewBlockCache(64)
	store := storage.NewMemStore()

	build := func(id uint64) *Table {
		b := NewBuilder(256)
		for i := 0; i < 50; i++ {
			b.Add(testKey(i), testValue(i), 0)
		}
		table, err := b.Build(id, cache, store, fmt.Sprintf("%06d.sst", id))
		if err != nil {
			t.Fatalf("Failed to build table %d: %v", id, err)
		}
		return table
	}

	first, second := build(1), build(2)
	defer second.Close()

	for _, table := range []*Table{first, second} {
		for i := 0; i < table.NumBlocks(); i++ {
			if _, err := table.ReadBlockCached(i); err != nil {
				t.Fatalf("Failed to read block: %v", err)
			}
		}
	}
	before := cache.Len()

	first.Close()
	if cache.Len() != before-first.NumBlocks() {
		t.Errorf("Expected %d cached blocks after closing table 1, got %d",
			before-first.NumBlocks(), cache.Len())
	}
	if _, err := second.Get(testKey(10)); err != nil {
		t.Errorf("Table 2 should remain readable: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	cache := NewBlockCache(8)
	b := NewBuilder(512)
	for i := 0; i < 1000; i++ {
		b.Add(testKey(i), testValue(i), 0)
	}
	table, err := b.Build(1, cache, storage.NewMemStore(), "concurrent.sst")
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}
	defer table.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < 1000; i += 8 {
				value, err := table.Get(testKey(i))
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(value, testValue(i)) {
					errs <- fmt.Errorf("key %d: got %s", i, value)
					return
				}
			}

			iter, err := NewIteratorAt(table, testKey(g*100))
			if err != nil {
				errs <- err
				return
			}
			defer iter.Close()
			for n := 0; iter.Valid() && n < 50; n++ {
				if err := iter.Next(); err != nil {
					errs <- err
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent read failed: %v", err)
	}
	if table.Refs() != 1 {
		t.Errorf("Expected iterators to release their references, got %d", table.Refs())
	}
}
