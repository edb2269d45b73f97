// Package recordstore implements CRUD of (record_type, key, value) with
// synchronous index maintenance (spec.md C5), including the back-fill
// path for CreateIndex (spec.md §3 Lifecycle) and the read-before-
// overwrite strategy that resolves spec.md's O1 (see SPEC_FULL.md C5).
package recordstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/kvquery/eql/internal/catalog"
	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/eqlkv/codec"
	"github.com/kvquery/eql/internal/eqlkv/indexkey"
	"github.com/kvquery/eql/internal/kvstore"
	"github.com/kvquery/eql/internal/value"
)

// backfillFlushEvery bounds memory use during CreateIndex's scan of an
// existing type: entries are written to storage in batches this large
// (spec.md §3 Lifecycle).
const backfillFlushEvery = 1000

// Store is the record store: CRUD plus index maintenance over a
// kvstore.Store and a catalog.Catalog.
type Store struct {
	kv  kvstore.Store
	cat *catalog.Catalog
	log *zap.Logger

	backfillFlushEvery int
}

func New(kv kvstore.Store, cat *catalog.Catalog, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, cat: cat, log: log, backfillFlushEvery: backfillFlushEvery}
}

// SetBackfillFlushEvery overrides the index back-fill flush threshold
// (eqlconfig.Config.BackfillFlushEvery); n<=0 restores the default.
func (s *Store) SetBackfillFlushEvery(n int) {
	if n <= 0 {
		n = backfillFlushEvery
	}
	s.backfillFlushEvery = n
}

// Batch accumulates record mutations (and their index-entry mutations)
// for a single atomic Write.
type Batch struct {
	kv kvstore.Batch
}

func (s *Store) NewBatch() *Batch { return &Batch{kv: s.kv.NewBatch()} }

func (s *Store) Write(ctx context.Context, b *Batch) error {
	return s.kv.Write(ctx, b.kv)
}

// Get reads the record stored at (t, key), if any.
func (s *Store) Get(ctx context.Context, t string, key value.Value) (value.Value, bool, error) {
	encKey := codec.Encode(key)
	raw, ok, err := s.kv.Get(ctx, t, encKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Insert writes (t, key, val), ensuring the type's namespace exists and
// synchronously maintaining every index of t. Overwriting an existing
// key removes index entries derived from the previous value that no
// longer apply (spec.md O1, resolved: read-before-overwrite).
func (s *Store) Insert(ctx context.Context, t string, key, val value.Value) error {
	if err := catalog.ValidateTypeName(t); err != nil {
		return err
	}
	if err := s.cat.EnsureType(ctx, t); err != nil {
		return err
	}
	if err := s.kv.EnsureNamespace(ctx, t); err != nil {
		return &eqlerr.StorageError{Op: "ensure_namespace:" + t, Err: err}
	}
	b := s.NewBatch()
	if err := s.stageInsert(ctx, b, t, key, val); err != nil {
		return err
	}
	return s.Write(ctx, b)
}

// Delete removes the record at (t, key) and every index entry it backed.
// No-op if no record exists.
func (s *Store) Delete(ctx context.Context, t string, key value.Value) error {
	b := s.NewBatch()
	changed, err := s.stageDelete(ctx, b, t, key)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.Write(ctx, b)
}

// BatchInsert stages an insert into b without committing; the caller
// commits via Write.
func (s *Store) BatchInsert(ctx context.Context, b *Batch, t string, key, val value.Value) error {
	if err := catalog.ValidateTypeName(t); err != nil {
		return err
	}
	if err := s.cat.EnsureType(ctx, t); err != nil {
		return err
	}
	if err := s.kv.EnsureNamespace(ctx, t); err != nil {
		return &eqlerr.StorageError{Op: "ensure_namespace:" + t, Err: err}
	}
	return s.stageInsert(ctx, b, t, key, val)
}

// BatchDelete stages a delete into b without committing.
func (s *Store) BatchDelete(ctx context.Context, b *Batch, t string, key value.Value) error {
	_, err := s.stageDelete(ctx, b, t, key)
	return err
}

func (s *Store) stageInsert(ctx context.Context, b *Batch, t string, key, val value.Value) error {
	encKey := codec.Encode(key)

	// Read the previous value (if any) before overwriting, so index
	// entries derived from paths whose value changed can be removed
	// rather than left stale (spec.md O1, resolved: read-and-remove).
	var prevVal value.Value
	var hadPrev bool
	if prevRaw, ok, err := s.kv.Get(ctx, t, encKey); err != nil {
		return &eqlerr.StorageError{Op: "get_prev:" + t, Err: err}
	} else if ok {
		prevVal, err = codec.Decode(prevRaw)
		if err != nil {
			return err
		}
		hadPrev = true
	}

	for _, name := range s.cat.Indices(t) {
		paths, _ := s.cat.IndexPaths(t, name)
		ns := catalog.IndexNamespace(t, name)
		newEntryKey := buildIndexEntryKey(paths, val, encKey)
		if hadPrev {
			oldEntryKey := buildIndexEntryKey(paths, prevVal, encKey)
			if string(oldEntryKey) != string(newEntryKey) {
				b.kv.Delete(ns, oldEntryKey)
			}
		}
		b.kv.Put(ns, newEntryKey, encKey)
	}

	b.kv.Put(t, encKey, codec.Encode(val))
	return nil
}

// stageDelete stages removal of (t, key) and its index entries. Returns
// changed=false if no record existed (no-op).
func (s *Store) stageDelete(ctx context.Context, b *Batch, t string, key value.Value) (bool, error) {
	encKey := codec.Encode(key)
	raw, ok, err := s.kv.Get(ctx, t, encKey)
	if err != nil {
		return false, &eqlerr.StorageError{Op: "get_for_delete:" + t, Err: err}
	}
	if !ok {
		return false, nil
	}
	val, err := codec.Decode(raw)
	if err != nil {
		return false, err
	}
	for _, name := range s.cat.Indices(t) {
		paths, _ := s.cat.IndexPaths(t, name)
		ns := catalog.IndexNamespace(t, name)
		entryKey := buildIndexEntryKey(paths, val, encKey)
		b.kv.Delete(ns, entryKey)
	}
	b.kv.Delete(t, encKey)
	return true, nil
}

// buildIndexEntryKey computes extract(val, paths[i]) for each path,
// encodes each (missing paths encode as null, I1), and builds the
// index-entry key via indexkey.Build.
func buildIndexEntryKey(paths []value.Path, val value.Value, encKey []byte) []byte {
	comps := make([][]byte, len(paths))
	for i, p := range paths {
		comps[i] = codec.Encode(value.Extract(val, p))
	}
	return indexkey.Build(comps, encKey)
}

// CreateIndex registers a new index and back-fills it by scanning t,
// flushing writes every backfillFlushEvery entries. The catalog is
// persisted only after back-fill completes (spec.md §3, O3 resolved):
// an interrupted back-fill leaves the index's namespace partially
// populated but absent from the catalog, so it is never visible to
// readers.
func (s *Store) CreateIndex(ctx context.Context, t, name string, paths []value.Path) error {
	if _, exists := s.cat.IndexPaths(t, name); exists {
		return &eqlerr.DuplicateIndex{Type: t, Name: name}
	}
	ns := catalog.IndexNamespace(t, name)
	if err := s.kv.EnsureNamespace(ctx, ns); err != nil {
		return &eqlerr.StorageError{Op: "ensure_namespace:" + ns, Err: err}
	}

	it, err := s.kv.IterForward(ctx, t, nil, nil)
	if err != nil {
		return &eqlerr.StorageError{Op: "scan:" + t, Err: err}
	}
	defer it.Close()

	b := s.kv.NewBatch()
	pending := 0
	rows := 0
	for it.Next() {
		val, err := codec.Decode(it.Value())
		if err != nil {
			return err
		}
		entryKey := buildIndexEntryKey(paths, val, it.Key())
		b.Put(ns, entryKey, append([]byte(nil), it.Key()...))
		pending++
		rows++
		if pending >= s.backfillFlushEvery {
			if err := s.kv.Write(ctx, b); err != nil {
				return &eqlerr.StorageError{Op: "backfill_flush:" + ns, Err: err}
			}
			b = s.kv.NewBatch()
			pending = 0
		}
	}
	if err := it.Err(); err != nil {
		return &eqlerr.StorageError{Op: "scan:" + t, Err: err}
	}
	if pending > 0 {
		if err := s.kv.Write(ctx, b); err != nil {
			return &eqlerr.StorageError{Op: "backfill_flush:" + ns, Err: err}
		}
	}

	if err := s.cat.CreateIndex(ctx, t, name, paths); err != nil {
		return err
	}
	s.log.Info("index created",
		zap.String("type", t), zap.String("index", name), zap.Int("rows", rows))
	return nil
}

// DropIndex unregisters name from t and drops its namespace. No-op if
// not present.
func (s *Store) DropIndex(ctx context.Context, t, name string) error {
	if _, exists := s.cat.IndexPaths(t, name); !exists {
		return nil
	}
	ns := catalog.IndexNamespace(t, name)
	if err := s.cat.DropIndex(ctx, t, name); err != nil {
		return err
	}
	if err := s.kv.DropNamespace(ctx, ns); err != nil {
		return &eqlerr.StorageError{Op: "drop_namespace:" + ns, Err: err}
	}
	return nil
}
