package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/KevoDB/sstkit/pkg/common/skiplist"
	"github.com/KevoDB/sstkit/pkg/sstable"
	"github.com/KevoDB/sstkit/pkg/storage"
)

// parseTSV calls emit for every "key<TAB>value[<TAB>version]" line of r.
// Blank lines and lines starting with '#' are skipped.
func parseTSV(r io.Reader, emit func(key, value []byte, version uint64) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		fields := bytes.SplitN(line, []byte{'\t'}, 3)
		if len(fields) < 2 {
			return fmt.Errorf("line %d: expected key<TAB>value", lineNo)
		}

		var version uint64
		if len(fields) == 3 {
			v, err := strconv.ParseUint(string(fields[2]), 10, 64)
			if err != nil {
				return fmt.Errorf("line %d: invalid version %q", lineNo, fields[2])
			}
			version = v
		}

		if err := emit(fields[0], fields[1], version); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// buildFromTSV builds a table at path from lines already sorted by key
func buildFromTSV(r io.Reader, store storage.FileStore, path string, id uint64,
	blockSize int, cache sstable.BlockCache, opts ...sstable.Option) (*sstable.Table, error) {

	builder := sstable.NewBuilder(blockSize, opts...)
	if err := parseTSV(r, builder.Add); err != nil {
		return nil, err
	}
	return builder.Build(id, cache, store, path)
}

// buildFromUnsortedTSV buffers every line in a skip list before building,
// so input may arrive in any order. For repeated keys the highest version
// wins, then the last line.
func buildFromUnsortedTSV(r io.Reader, store storage.FileStore, path string, id uint64,
	blockSize int, cache sstable.BlockCache, opts ...sstable.Option) (*sstable.Table, error) {

	list := skiplist.New()
	err := parseTSV(r, func(key, value []byte, version uint64) error {
		list.Insert(key, value, version)
		return nil
	})
	if err != nil {
		return nil, err
	}

	builder := sstable.NewBuilder(blockSize, opts...)
	it := list.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := builder.Add(it.Key(), it.Value(), it.Version()); err != nil {
			return nil, fmt.Errorf("key %q: %w", it.Key(), err)
		}
	}
	return builder.Build(id, cache, store, path)
}
