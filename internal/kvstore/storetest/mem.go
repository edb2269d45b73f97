// Package storetest provides an in-memory kvstore.Store fake for tests
// that exercise the catalog, record store, and executor without paying
// for real mdbx I/O. Each namespace is backed by a google/btree ordered
// tree so range iteration (with bounds) behaves the same as the real
// mdbx-backed store — a plain Go map could not support that.
package storetest

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/kvquery/eql/internal/kvstore"
)

type kv struct {
	key, val []byte
}

func less(a, b kv) bool { return bytes.Compare(a.key, b.key) < 0 }

// Mem is an in-memory kvstore.Store.
type Mem struct {
	mu sync.RWMutex
	ns map[string]*btree.BTreeG[kv]
}

var _ kvstore.Store = (*Mem)(nil)

// New returns an empty in-memory store.
func New() *Mem {
	return &Mem{ns: make(map[string]*btree.BTreeG[kv])}
}

func (m *Mem) EnsureNamespace(ctx context.Context, ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ns[ns]; !ok {
		m.ns[ns] = btree.NewG(32, less)
	}
	return nil
}

func (m *Mem) DropNamespace(ctx context.Context, ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ns, ns)
	return nil
}

func (m *Mem) Get(ctx context.Context, ns string, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.ns[ns]
	if !ok {
		return nil, false, nil
	}
	item, found := t.Get(kv{key: key})
	if !found {
		return nil, false, nil
	}
	return append([]byte(nil), item.val...), true, nil
}

type memBatch struct {
	ops []func(m *Mem)
}

func (b *memBatch) Put(ns string, key, val []byte) {
	k, v := append([]byte(nil), key...), append([]byte(nil), val...)
	b.ops = append(b.ops, func(m *Mem) {
		t := m.ns[ns]
		if t == nil {
			t = btree.NewG(32, less)
			m.ns[ns] = t
		}
		t.ReplaceOrInsert(kv{key: k, val: v})
	})
}

func (b *memBatch) Delete(ns string, key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, func(m *Mem) {
		if t := m.ns[ns]; t != nil {
			t.Delete(kv{key: k})
		}
	})
}

func (m *Mem) NewBatch() kvstore.Batch { return &memBatch{} }

func (m *Mem) Write(ctx context.Context, b kvstore.Batch) error {
	mb := b.(*memBatch)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range mb.ops {
		op(m)
	}
	return nil
}

func (m *Mem) IterForward(ctx context.Context, ns string, from, upperBound []byte) (kvstore.Iterator, error) {
	m.mu.RLock()
	t, ok := m.ns[ns]
	if !ok {
		m.mu.RUnlock()
		return &memIterator{}, nil
	}
	var items []kv
	t.AscendGreaterOrEqual(kv{key: from}, func(item kv) bool {
		if upperBound != nil && bytes.Compare(item.key, upperBound) >= 0 {
			return false
		}
		items = append(items, kv{key: append([]byte(nil), item.key...), val: append([]byte(nil), item.val...)})
		return true
	})
	m.mu.RUnlock()
	return &memIterator{items: items, idx: -1}, nil
}

func (m *Mem) Close() error { return nil }

type memIterator struct {
	items []kv
	idx   int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.items)
}

func (it *memIterator) Key() []byte   { return it.items[it.idx].key }
func (it *memIterator) Value() []byte { return it.items[it.idx].val }
func (it *memIterator) Err() error    { return nil }
func (it *memIterator) Close() error  { return nil }
