package skiplist

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

func TestSkipListBasicOperations(t *testing.T) {
	sl := New()

	sl.Insert([]byte("key1"), []byte("value1"), 1)
	sl.Insert([]byte("key2"), []byte("value2"), 2)
	sl.Insert([]byte("key3"), []byte("value3"), 3)

	value, version, ok := sl.Get([]byte("key2"))
	if !ok {
		t.Fatalf("expected to find key2")
	}
	if string(value) != "value2" || version != 2 {
		t.Errorf("expected value2 at version 2, got %s at %d", value, version)
	}

	if _, _, ok := sl.Get([]byte("key4")); ok {
		t.Errorf("expected key4 to be absent")
	}
	if _, _, ok := sl.Get([]byte("key")); ok {
		t.Errorf("expected key to be absent")
	}
	if sl.Len() != 3 {
		t.Errorf("expected 3 keys, got %d", sl.Len())
	}
}

func TestSkipListVersions(t *testing.T) {
	sl := New()

	if !sl.Insert([]byte("key"), []byte("value3"), 3) {
		t.Error("expected first insert to change the list")
	}
	if sl.Insert([]byte("key"), []byte("value1"), 1) {
		t.Error("expected an older version to be ignored")
	}
	if !sl.Insert([]byte("key"), []byte("value3b"), 3) {
		t.Error("expected an equal version to replace the entry")
	}

	value, version, ok := sl.Get([]byte("key"))
	if !ok || string(value) != "value3b" || version != 3 {
		t.Errorf("expected value3b at version 3, got %s at %d", value, version)
	}
	if sl.Len() != 1 {
		t.Errorf("expected 1 key, got %d", sl.Len())
	}
	if want := int64(len("key") + len("value3b") + entryOverhead); sl.ApproximateSize() != want {
		t.Errorf("expected size %d, got %d", want, sl.ApproximateSize())
	}
}

func TestSkipListInsertCopies(t *testing.T) {
	sl := New()
	key := []byte("key")
	value := []byte("value")
	sl.Insert(key, value, 1)

	key[0] = 'x'
	value[0] = 'x'

	got, _, ok := sl.Get([]byte("key"))
	if !ok || string(got) != "value" {
		t.Errorf("expected the list to keep its own copy, got %s", got)
	}
}

func TestSkipListIterator(t *testing.T) {
	sl := New()

	keys := make([]string, 200)
	for i := range keys {
		keys[i] = fmt.Sprintf("key%03d", i)
	}
	shuffled := append([]string(nil), keys...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for _, k := range shuffled {
		sl.Insert([]byte(k), []byte("v"+k), 1)
	}

	it := sl.NewIterator()
	if it.Valid() {
		t.Error("expected a new iterator to be unpositioned")
	}

	i := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if string(it.Key()) != keys[i] {
			t.Fatalf("position %d: expected %s, got %s", i, keys[i], it.Key())
		}
		if string(it.Value()) != "v"+keys[i] {
			t.Errorf("position %d: unexpected value %s", i, it.Value())
		}
		i++
	}
	if i != len(keys) {
		t.Errorf("expected %d entries, got %d", len(keys), i)
	}
	if it.Key() != nil || it.Value() != nil || it.Next() {
		t.Error("expected an exhausted iterator to return nothing")
	}

	if !it.Seek([]byte("key0995")) || string(it.Key()) != "key100" {
		t.Errorf("expected Seek to land on key100, got %s", it.Key())
	}
	if !it.Seek([]byte("key150")) || string(it.Key()) != "key150" {
		t.Errorf("expected Seek to land on key150, got %s", it.Key())
	}
	if it.Seek([]byte("zzz")) {
		t.Error("expected Seek past the end to be invalid")
	}

	it.SeekToLast()
	if !it.Valid() || string(it.Key()) != "key199" {
		t.Errorf("expected SeekToLast to land on key199, got %s", it.Key())
	}
	if it.Error() != nil {
		t.Errorf("unexpected error: %v", it.Error())
	}
}

func TestSkipListEmpty(t *testing.T) {
	it := New().NewIterator()

	it.SeekToFirst()
	if it.Valid() {
		t.Error("expected SeekToFirst on an empty list to be invalid")
	}
	it.SeekToLast()
	if it.Valid() {
		t.Error("expected SeekToLast on an empty list to be invalid")
	}
	if it.Seek(nil) {
		t.Error("expected Seek on an empty list to be invalid")
	}
}

func TestSkipListEmptyKey(t *testing.T) {
	sl := New()
	sl.Insert([]byte("b"), []byte("2"), 1)
	sl.Insert([]byte{}, []byte("empty"), 1)

	it := sl.NewIterator()
	it.SeekToFirst()
	if !it.Valid() || len(it.Key()) != 0 || !bytes.Equal(it.Value(), []byte("empty")) {
		t.Errorf("expected the empty key first, got %q", it.Key())
	}
}

func TestSkipListConcurrentReaders(t *testing.T) {
	sl := New()
	for i := 0; i < 1000; i += 2 {
		sl.Insert([]byte(fmt.Sprintf("key%04d", i)), []byte("v"), 1)
	}

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				it := sl.NewIterator()
				var prev []byte
				for it.SeekToFirst(); it.Valid(); it.Next() {
					if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
						t.Errorf("keys out of order: %s then %s", prev, it.Key())
						return
					}
					prev = it.Key()
				}
			}
		}()
	}

	for i := 1; i < 1000; i += 2 {
		sl.Insert([]byte(fmt.Sprintf("key%04d", i)), []byte("v"), 1)
	}
	wg.Wait()

	if sl.Len() != 1000 {
		t.Errorf("expected 1000 keys, got %d", sl.Len())
	}
}
