// Package kvstore defines the storage façade (spec.md C4): the narrow
// interface higher layers (catalog, record store, executor) use to talk
// to the embedded ordered KV engine, independent of which engine backs
// it. Namespaces model both record-type collections and index
// namespaces; nothing above this package knows it is mdbx underneath.
package kvstore

import "context"

// Batch accumulates puts and deletes across arbitrarily many namespaces
// for a single atomic Write. A Batch is owned exclusively by its creator
// until passed to Write.
type Batch interface {
	Put(ns string, key, val []byte)
	Delete(ns string, key []byte)
}

// Iterator is a pull-style forward iterator over a namespace's key space,
// matching spec.md §4.4's "lazy, ordered forward iteration" contract.
// Close releases the iterator's read resources deterministically and is
// always safe to call, including on an iterator that was never fully
// drained (spec.md O6: iterator reads are independent of uncommitted
// batches elsewhere).
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Store is the storage façade. Implementations must be safe for
// concurrent reads; see spec.md §5 for the concurrency model (catalog-
// mutating calls are not safe to run concurrently with themselves or
// with executes over the affected namespace).
type Store interface {
	// EnsureNamespace opens ns, creating it if absent. Idempotent.
	EnsureNamespace(ctx context.Context, ns string) error
	// DropNamespace drops ns and all its contents. No-op if absent.
	DropNamespace(ctx context.Context, ns string) error

	// Get returns the value stored at key in ns, or ok=false if absent.
	Get(ctx context.Context, ns string, key []byte) (val []byte, ok bool, err error)

	// NewBatch returns an empty Batch that accumulates mutations until
	// passed to Write.
	NewBatch() Batch
	// Write commits b atomically across every namespace it touches.
	Write(ctx context.Context, b Batch) error

	// IterForward returns an Iterator over ns starting at from
	// (inclusive, nil = start of namespace) up to upperBound
	// (exclusive, nil = unbounded).
	IterForward(ctx context.Context, ns string, from, upperBound []byte) (Iterator, error)

	// Close releases the store's resources (e.g. closes the mdbx env).
	Close() error
}
