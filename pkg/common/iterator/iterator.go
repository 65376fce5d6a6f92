package iterator

// Iterator defines the interface for iterating over key-value pairs in key
// order. It lets range, filter and merge helpers compose over any source
// regardless of how its entries are stored.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// SeekToLast positions the iterator at the last key
	SeekToLast()

	// Seek positions the iterator at the first key >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next key
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// Error returns the error that stopped iteration, if any. An iterator
	// that reports an error is no longer valid.
	Error() error
}
