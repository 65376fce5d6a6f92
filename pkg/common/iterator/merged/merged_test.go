package merged

import (
	"errors"
	"testing"

	"github.com/KevoDB/sstkit/pkg/common/iterator"
	"github.com/KevoDB/sstkit/pkg/common/iterator/itertest"
)

func TestMergingIterator_NewestWins(t *testing.T) {
	newest := itertest.New("b", "new-b", "d", "new-d")
	oldest := itertest.New("a", "old-a", "b", "old-b", "c", "old-c", "d", "old-d", "e", "old-e")
	m := NewMergingIterator([]iterator.Iterator{newest, oldest})

	want := [][2]string{
		{"a", "old-a"},
		{"b", "new-b"},
		{"c", "old-c"},
		{"d", "new-d"},
		{"e", "old-e"},
	}

	i := 0
	for m.SeekToFirst(); m.Valid(); m.Next() {
		if i >= len(want) {
			t.Fatalf("Too many entries, extra key %q", m.Key())
		}
		if string(m.Key()) != want[i][0] || string(m.Value()) != want[i][1] {
			t.Errorf("Entry %d: expected %s=%s, got %s=%s", i, want[i][0], want[i][1], m.Key(), m.Value())
		}
		i++
	}
	if i != len(want) {
		t.Errorf("Expected %d entries, got %d", len(want), i)
	}
}

func TestMergingIterator_Seek(t *testing.T) {
	m := NewMergingIterator([]iterator.Iterator{
		itertest.New("c", "1", "f", "1"),
		itertest.New("b", "2", "e", "2"),
	})

	if !m.Seek([]byte("d")) || string(m.Key()) != "e" {
		t.Errorf("Expected seek to 'd' to land on 'e', got %q", m.Key())
	}
	if !m.Next() || string(m.Key()) != "f" {
		t.Errorf("Expected next key 'f', got %q", m.Key())
	}
	if m.Next() {
		t.Errorf("Expected exhaustion, got %q", m.Key())
	}
	if m.Seek([]byte("g")) {
		t.Errorf("Expected seek past end to fail")
	}
}

func TestMergingIterator_SeekToLast(t *testing.T) {
	m := NewMergingIterator([]iterator.Iterator{
		itertest.New("c", "new"),
		itertest.New("a", "old", "c", "old"),
	})

	m.SeekToLast()
	if !m.Valid() || string(m.Key()) != "c" || string(m.Value()) != "new" {
		t.Errorf("Expected c=new, got %s=%s", m.Key(), m.Value())
	}
	if m.Next() {
		t.Errorf("Expected exhaustion after last key, got %q", m.Key())
	}
}

func TestMergingIterator_EmptySources(t *testing.T) {
	m := NewMergingIterator([]iterator.Iterator{itertest.New(), itertest.New()})
	m.SeekToFirst()
	if m.Valid() {
		t.Error("Expected invalid iterator over empty sources")
	}
	if m.NumSources() != 2 {
		t.Errorf("Expected 2 sources, got %d", m.NumSources())
	}
}

func TestMergingIterator_Error(t *testing.T) {
	failing := itertest.New("a", "1")
	m := NewMergingIterator([]iterator.Iterator{itertest.New("b", "2"), failing})

	boom := errors.New("boom")
	failing.FailWith(boom)
	m.SeekToFirst()

	if !errors.Is(m.Error(), boom) {
		t.Errorf("Expected source error, got %v", m.Error())
	}
}
