package block

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func buildBlock(t *testing.T, n int, compression Compression) ([]byte, []string) {
	t.Helper()
	builder := NewBuilder(64*1024, compression)

	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%05d", i)
		if !builder.Add([]byte(key), []byte(fmt.Sprintf("value%05d", i))) {
			t.Fatalf("Failed to add entry %s", key)
		}
		keys = append(keys, key)
	}

	data, err := builder.Finish()
	if err != nil {
		t.Fatalf("Failed to finish block: %v", err)
	}
	return data, keys
}

func TestBlockBuilderSimple(t *testing.T) {
	data, keys := buildBlock(t, 10, NoCompression)

	reader, err := NewReader(data)
	if err != nil {
		t.Fatalf("Failed to create block reader: %v", err)
	}

	iter := reader.Iterator()
	i := 0
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		if string(iter.Key()) != keys[i] {
			t.Errorf("Key mismatch at %d: expected %s, got %s", i, keys[i], iter.Key())
		}
		expected := fmt.Sprintf("value%05d", i)
		if string(iter.Value()) != expected {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", keys[i], expected, iter.Value())
		}
		i++
	}
	if i != len(keys) {
		t.Errorf("Expected %d entries, got %d", len(keys), i)
	}
	if iter.Error() != nil {
		t.Errorf("Unexpected iterator error: %v", iter.Error())
	}
}

func TestBlockCompression(t *testing.T) {
	for _, c := range []Compression{NoCompression, SnappyCompression, ZstdCompression, S2Compression} {
		t.Run(c.String(), func(t *testing.T) {
			data, keys := buildBlock(t, 200, c)
			if Compression(data[len(data)-1]) != c {
				t.Fatalf("Expected compression byte %d, got %d", c, data[len(data)-1])
			}

			reader, err := NewReader(data)
			if err != nil {
				t.Fatalf("Failed to create block reader: %v", err)
			}

			count := 0
			iter := reader.Iterator()
			for iter.SeekToFirst(); iter.Valid(); iter.Next() {
				if string(iter.Key()) != keys[count] {
					t.Fatalf("Key mismatch at %d: expected %s, got %s", count, keys[count], iter.Key())
				}
				count++
			}
			if count != len(keys) {
				t.Errorf("Expected %d entries, got %d", len(keys), count)
			}
		})
	}
}

func TestBlockBuilderSeek(t *testing.T) {
	builder := NewBuilder(64*1024, NoCompression)
	// Even keys only so odd targets fall between entries
	for i := 0; i < 100; i += 2 {
		builder.Add([]byte(fmt.Sprintf("key%03d", i)), []byte(fmt.Sprintf("value%03d", i)))
	}
	data, err := builder.Finish()
	if err != nil {
		t.Fatalf("Failed to finish block: %v", err)
	}
	reader, err := NewReader(data)
	if err != nil {
		t.Fatalf("Failed to create block reader: %v", err)
	}
	iter := reader.Iterator()

	tests := []struct {
		target string
		found  bool
		want   string
	}{
		{"key000", true, "key000"},
		{"a", true, "key000"},
		{"key050", true, "key050"},
		{"key051", true, "key052"},
		{"key033", true, "key034"},
		{"key098", true, "key098"},
		{"key099", false, ""},
		{"zzz", false, ""},
	}

	for _, tt := range tests {
		found := iter.Seek([]byte(tt.target))
		if found != tt.found {
			t.Errorf("Seek(%s): expected found=%v, got %v", tt.target, tt.found, found)
			continue
		}
		if found && string(iter.Key()) != tt.want {
			t.Errorf("Seek(%s): expected %s, got %s", tt.target, tt.want, iter.Key())
		}
		if iter.Valid() != found {
			t.Errorf("Seek(%s): Valid() disagrees with result", tt.target)
		}
	}

	iter.SeekToLast()
	if string(iter.Key()) != "key098" {
		t.Errorf("SeekToLast returned %s, expected key098", iter.Key())
	}
	if iter.Next() {
		t.Errorf("Expected Next after last entry to be invalid")
	}
}

func TestBlockSizeBudget(t *testing.T) {
	builder := NewBuilder(256, NoCompression)

	added := 0
	for i := 0; ; i++ {
		if !builder.Add([]byte(fmt.Sprintf("key%05d", i)), []byte("value")) {
			break
		}
		added++
	}
	if added == 0 {
		t.Fatalf("Expected at least one entry to fit")
	}
	if builder.EstimatedSize() > 256 {
		t.Errorf("Builder exceeded its budget: %d bytes", builder.EstimatedSize())
	}

	data, err := builder.Finish()
	if err != nil {
		t.Fatalf("Failed to finish block: %v", err)
	}
	if len(data) > 256 {
		t.Errorf("Encoded block larger than budget: %d bytes", len(data))
	}
}

func TestBlockRejectsOversizedFirstEntry(t *testing.T) {
	builder := NewBuilder(64, NoCompression)
	if builder.Add([]byte("key"), bytes.Repeat([]byte("v"), 100)) {
		t.Fatalf("Expected oversized entry to be rejected by an empty block")
	}
	if !builder.Empty() {
		t.Errorf("Rejected entry must not be recorded")
	}

	if builder.Add(bytes.Repeat([]byte("k"), MaxKeySize+1), nil) {
		t.Errorf("Expected key longer than %d bytes to be rejected", MaxKeySize)
	}
}

func TestBlockEmptyFinish(t *testing.T) {
	builder := NewBuilder(DefaultBlockSize, NoCompression)
	if _, err := builder.Finish(); !errors.Is(err, ErrEmptyBlock) {
		t.Errorf("Expected ErrEmptyBlock, got %v", err)
	}
}

func TestBlockEmptyKeyAndValue(t *testing.T) {
	builder := NewBuilder(DefaultBlockSize, NoCompression)
	builder.Add([]byte{}, []byte{})
	builder.Add([]byte("a"), nil)
	data, err := builder.Finish()
	if err != nil {
		t.Fatalf("Failed to finish block: %v", err)
	}
	reader, err := NewReader(data)
	if err != nil {
		t.Fatalf("Failed to create block reader: %v", err)
	}

	iter := reader.Iterator()
	iter.SeekToFirst()
	if !iter.Valid() || len(iter.Key()) != 0 {
		t.Fatalf("Expected empty key to be a valid first entry")
	}
	if !iter.Next() || string(iter.Key()) != "a" || len(iter.Value()) != 0 {
		t.Fatalf("Expected second entry a with empty value")
	}
}

func TestBlockCorruption(t *testing.T) {
	data, _ := buildBlock(t, 10, NoCompression)

	tests := map[string][]byte{
		"empty":               {},
		"unknown compression": append(append([]byte(nil), data[:len(data)-1]...), 0x7F),
		"truncated":           append([]byte(nil), data[len(data)-4:]...),
	}

	zeroRestarts := append([]byte(nil), data...)
	// Restart count lives just before the compression byte
	copy(zeroRestarts[len(zeroRestarts)-5:len(zeroRestarts)-1], []byte{0, 0, 0, 0})
	tests["zero restarts"] = zeroRestarts

	for name, corrupted := range tests {
		if _, err := NewReader(corrupted); !errors.Is(err, ErrCorruptBlock) {
			t.Errorf("%s: expected ErrCorruptBlock, got %v", name, err)
		}
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{NoCompression, SnappyCompression, ZstdCompression, S2Compression} {
		parsed, err := ParseCompression(c.String())
		if err != nil || parsed != c {
			t.Errorf("ParseCompression(%s) = %v, %v", c, parsed, err)
		}
	}
	if _, err := ParseCompression("lz77"); err == nil {
		t.Errorf("Expected error for unknown compression")
	}
}
