// Package mdbxstore implements kvstore.Store over erigontech/mdbx-go,
// the ordered embedded KV engine spec.md §1 names as an out-of-scope
// external collaborator. One mdbx named DBI backs each record-type
// namespace and each index namespace (spec.md §6: index namespaces are
// named "#idx_<type>_<index>"); DBI handles are cached by name since
// mdbx DBI handles stay valid for the life of the environment once
// opened.
package mdbxstore

import (
	"context"
	"os"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/kvstore"
)

// maxNamespaces bounds how many DBIs a single database may open over its
// lifetime (record-type namespaces + index namespaces). mdbx requires
// this to be fixed before any DBI is opened.
const maxNamespaces = 8192

var _ kvstore.Store = (*Store)(nil)

// Store is a kvstore.Store backed by a single mdbx environment.
type Store struct {
	env      *mdbx.Env
	log      *zap.Logger
	readBuf  int
	readOnly bool

	mu   sync.RWMutex
	dbis map[string]mdbx.DBI
}

// Options configures Open beyond the bare directory path.
type Options struct {
	Log *zap.Logger
	// ReadOnly opens the environment without the mdbx.Create flag and
	// rejects Write (eqlconfig.Config.ReadOnly).
	ReadOnly bool
	// ReadBufferSize is how many entries IterForward prefetches ahead of
	// the caller (eqlconfig.Config.ReadBufferSize); 0 disables prefetch.
	ReadBufferSize int
}

// Open creates or opens an mdbx environment rooted at dir.
func Open(dir string, log *zap.Logger) (*Store, error) {
	return OpenWith(dir, Options{Log: log})
}

// OpenWith opens an mdbx environment rooted at dir with the given
// Options.
func OpenWith(dir string, opts Options) (*Store, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, &eqlerr.StorageError{Op: "new_env", Err: err}
	}
	if err := env.SetMaxDBs(maxNamespaces); err != nil {
		return nil, &eqlerr.StorageError{Op: "set_max_dbs", Err: err}
	}
	flags := mdbx.Create
	if opts.ReadOnly {
		flags = mdbx.Readonly
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &eqlerr.StorageError{Op: "mkdir", Err: err}
	}
	if err := env.Open(dir, flags, 0o664); err != nil {
		return nil, &eqlerr.StorageError{Op: "open", Err: err}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		env: env, log: log, dbis: make(map[string]mdbx.DBI),
		readBuf: opts.ReadBufferSize, readOnly: opts.ReadOnly,
	}, nil
}

// Destroy removes all persistent state at dir, including the mdbx data
// files. It does not require the database to be open. There is no
// env-level drop in mdbx-go (Drop is a *Txn method over a single DBI);
// removing the directory outright is the only way to destroy the whole
// environment at once.
func Destroy(dir string) error {
	return errors.Wrap(os.RemoveAll(dir), "destroy")
}

func (s *Store) Close() error {
	s.env.Close()
	return nil
}

func (s *Store) dbi(name string) (mdbx.DBI, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dbis[name]
	return d, ok
}

func (s *Store) EnsureNamespace(ctx context.Context, ns string) error {
	if _, ok := s.dbi(ns); ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbis[ns]; ok {
		return nil
	}
	err := s.env.Update(func(txn *mdbx.Txn) error {
		dbi, err := txn.OpenDBISimple(ns, mdbx.Create)
		if err != nil {
			return err
		}
		s.dbis[ns] = dbi
		return nil
	})
	if err != nil {
		return &eqlerr.StorageError{Op: "ensure_namespace:" + ns, Err: err}
	}
	s.log.Debug("namespace ensured", zap.String("namespace", ns))
	return nil
}

func (s *Store) DropNamespace(ctx context.Context, ns string) error {
	dbi, ok := s.dbi(ns)
	if !ok {
		return nil
	}
	err := s.env.Update(func(txn *mdbx.Txn) error {
		return txn.Drop(dbi, true)
	})
	if err != nil {
		return &eqlerr.StorageError{Op: "drop_namespace:" + ns, Err: err}
	}
	s.mu.Lock()
	delete(s.dbis, ns)
	s.mu.Unlock()
	s.log.Debug("namespace dropped", zap.String("namespace", ns))
	return nil
}

func (s *Store) Get(ctx context.Context, ns string, key []byte) ([]byte, bool, error) {
	dbi, ok := s.dbi(ns)
	if !ok {
		return nil, false, nil
	}
	var val []byte
	found := true
	err := s.env.View(func(txn *mdbx.Txn) error {
		v, err := txn.Get(dbi, key)
		if mdbx.IsNotFound(err) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, &eqlerr.StorageError{Op: "get:" + ns, Err: err}
	}
	return val, found, nil
}

// batch is the kvstore.Batch implementation: an ordered list of puts and
// deletes per namespace, applied inside a single mdbx write transaction
// by Write.
type batch struct {
	ops []op
}

type op struct {
	ns     string
	key    []byte
	val    []byte
	delete bool
}

func (b *batch) Put(ns string, key, val []byte) {
	b.ops = append(b.ops, op{ns: ns, key: key, val: val})
}

func (b *batch) Delete(ns string, key []byte) {
	b.ops = append(b.ops, op{ns: ns, key: key, delete: true})
}

func (s *Store) NewBatch() kvstore.Batch { return &batch{} }

func (s *Store) Write(ctx context.Context, kb kvstore.Batch) error {
	if s.readOnly {
		return &eqlerr.StorageError{Op: "write", Err: errors.New("store opened read-only")}
	}
	b, ok := kb.(*batch)
	if !ok {
		return &eqlerr.StorageError{Op: "write", Err: errors.New("batch not created by this store")}
	}
	err := s.env.Update(func(txn *mdbx.Txn) error {
		for _, o := range b.ops {
			dbi, ok := s.dbi(o.ns)
			if !ok {
				return errors.Errorf("namespace %q not open", o.ns)
			}
			if o.delete {
				if err := txn.Del(dbi, o.key, nil); err != nil && !mdbx.IsNotFound(err) {
					return err
				}
				continue
			}
			if err := txn.Put(dbi, o.key, o.val, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &eqlerr.StorageError{Op: "write", Err: err}
	}
	return nil
}

// iterator is a cursor-backed kvstore.Iterator. It owns a dedicated
// read-only transaction and cursor, both released by Close regardless of
// whether the caller drained every entry.
type iterator struct {
	txn        *mdbx.Txn
	cur        *mdbx.Cursor
	upperBound []byte
	started    bool
	from       []byte
	key, val   []byte
	err        error
	closed     bool
}

func (s *Store) IterForward(ctx context.Context, ns string, from, upperBound []byte) (kvstore.Iterator, error) {
	dbi, ok := s.dbi(ns)
	if !ok {
		return &emptyIterator{}, nil
	}
	txn, err := s.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, &eqlerr.StorageError{Op: "begin_txn:" + ns, Err: err}
	}
	cur, err := txn.OpenCursor(dbi)
	if err != nil {
		txn.Abort()
		return nil, &eqlerr.StorageError{Op: "open_cursor:" + ns, Err: err}
	}
	it := &iterator{txn: txn, cur: cur, upperBound: upperBound, from: from}
	if s.readBuf > 0 {
		return newBufferedIterator(it, s.readBuf), nil
	}
	return it, nil
}

// bufferedIterator prefetches up to size entries ahead of the caller so a
// consumer that processes each record slower than the cursor can advance
// still benefits from batched cursor reads (eqlconfig.Config.
// ReadBufferSize). It wraps the raw cursor iterator rather than
// replacing it -- Close always releases the underlying cursor/txn, drained
// or not.
type bufferedIterator struct {
	src  *iterator
	size int
	buf  []kvPair
	pos  int
	done bool
	err  error
}

type kvPair struct {
	key, val []byte
}

func newBufferedIterator(src *iterator, size int) *bufferedIterator {
	return &bufferedIterator{src: src, size: size}
}

func (b *bufferedIterator) fill() {
	b.buf = b.buf[:0]
	b.pos = 0
	for len(b.buf) < b.size && b.src.Next() {
		b.buf = append(b.buf, kvPair{
			key: append([]byte(nil), b.src.Key()...),
			val: append([]byte(nil), b.src.Value()...),
		})
	}
	if err := b.src.Err(); err != nil {
		b.err = err
	}
	if len(b.buf) == 0 {
		b.done = true
	}
}

func (b *bufferedIterator) Next() bool {
	if b.err != nil || b.done {
		return false
	}
	if b.buf == nil || b.pos >= len(b.buf) {
		b.fill()
	}
	if b.pos >= len(b.buf) {
		return false
	}
	b.pos++
	return true
}

func (b *bufferedIterator) Key() []byte   { return b.buf[b.pos-1].key }
func (b *bufferedIterator) Value() []byte { return b.buf[b.pos-1].val }
func (b *bufferedIterator) Err() error    { return b.err }
func (b *bufferedIterator) Close() error  { return b.src.Close() }

func (it *iterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	var k, v []byte
	var err error
	if !it.started {
		it.started = true
		if it.from != nil {
			k, v, err = it.cur.Get(it.from, nil, mdbx.SetRange)
		} else {
			k, v, err = it.cur.Get(nil, nil, mdbx.First)
		}
	} else {
		k, v, err = it.cur.Get(nil, nil, mdbx.Next)
	}
	if mdbx.IsNotFound(err) {
		return false
	}
	if err != nil {
		it.err = &eqlerr.StorageError{Op: "cursor_next", Err: err}
		return false
	}
	if it.upperBound != nil && compareBytes(k, it.upperBound) >= 0 {
		return false
	}
	it.key, it.val = append([]byte(nil), k...), append([]byte(nil), v...)
	return true
}

func (it *iterator) Key() []byte   { return it.key }
func (it *iterator) Value() []byte { return it.val }
func (it *iterator) Err() error    { return it.err }

func (it *iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.cur.Close()
	return it.txn.Abort()
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// emptyIterator is returned for reads against a namespace that was never
// opened, matching spec.md C7's "unknown type/index yields an empty
// stream, not an error" failure policy.
type emptyIterator struct{}

func (emptyIterator) Next() bool    { return false }
func (emptyIterator) Key() []byte   { return nil }
func (emptyIterator) Value() []byte { return nil }
func (emptyIterator) Err() error    { return nil }
func (emptyIterator) Close() error  { return nil }
