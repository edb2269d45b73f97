// Package exec interprets an op.Operator tree into a lazy stream of
// records (spec.md C7). All operators except HashJoin and MergeJoin are
// fully streaming; HashJoin streams its probe side only; MergeJoin
// streams both sides but buffers only the current head of each.
package exec

import (
	"context"

	"go.uber.org/zap"

	"github.com/kvquery/eql/internal/catalog"
	"github.com/kvquery/eql/internal/eqlkv/codec"
	"github.com/kvquery/eql/internal/eqlkv/indexkey"
	"github.com/kvquery/eql/internal/kvstore"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// Executor interprets operator trees against a storage façade and
// catalog. It holds no per-execution state; Execute may be called
// concurrently from multiple goroutines as long as the underlying
// kvstore.Store supports concurrent reads (spec.md §5).
type Executor struct {
	kv  kvstore.Store
	cat *catalog.Catalog
	log *zap.Logger
}

func New(kv kvstore.Store, cat *catalog.Catalog, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{kv: kv, cat: cat, log: log}
}

// Execute interprets o and returns a lazy record.Iterator. Read-only
// operators over an unknown type or index yield an empty stream, not an
// error (spec.md C7 failure policy); decoder corruption and storage
// errors are fatal and surface either as Execute's own error (when hit
// while setting up the operator, e.g. KeyLookup's read) or via the
// returned iterator's Err() (when hit while streaming).
func (e *Executor) Execute(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	switch o.Kind {
	case op.KindScan:
		return e.execScan(ctx, o)
	case op.KindKeyLookup:
		return e.execKeyLookup(ctx, o)
	case op.KindExtract:
		return e.execExtract(ctx, o)
	case op.KindAugment:
		return e.execAugment(ctx, o)
	case op.KindIndexLookup:
		return e.execIndexLookup(ctx, o)
	case op.KindNestedLoops:
		return e.execNestedLoops(ctx, o)
	case op.KindHashJoin:
		return e.execHashJoin(ctx, o)
	case op.KindMergeJoin:
		return e.execMergeJoin(ctx, o)
	case op.KindProcess:
		return e.execProcess(ctx, o)
	default:
		return record.NewEmpty(), nil
	}
}

// storageIterator wraps a kvstore.Iterator and decodes each (key, value)
// pair into a record.Record via the canonical codec.
type storageIterator struct {
	it  kvstore.Iterator
	rec record.Record
	err error
}

func (s *storageIterator) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.it.Next() {
		s.err = s.it.Err()
		return false
	}
	k, err := codec.Decode(s.it.Key())
	if err != nil {
		s.err = err
		return false
	}
	v, err := codec.Decode(s.it.Value())
	if err != nil {
		s.err = err
		return false
	}
	s.rec = record.Record{Key: k, Value: v}
	return true
}

func (s *storageIterator) Record() record.Record { return s.rec }
func (s *storageIterator) Err() error            { return s.err }
func (s *storageIterator) Close() error          { return s.it.Close() }

func (e *Executor) execScan(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	it, err := e.kv.IterForward(ctx, o.ScanType, nil, nil)
	if err != nil {
		return nil, err
	}
	return &storageIterator{it: it}, nil
}

func (e *Executor) execKeyLookup(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	encKey := codec.Encode(o.LookupKey)
	raw, ok, err := e.kv.Get(ctx, o.LookupType, encKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return record.NewEmpty(), nil
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	return record.NewSlice([]record.Record{{Key: o.LookupKey, Value: v}}), nil
}

// mapIterator applies a pure per-record transform over child, preserving
// its order (used by Extract and Augment, spec.md C7's ordering
// contract).
type mapIterator struct {
	child record.Iterator
	fn    func(record.Record) record.Record
}

func (m *mapIterator) Next() bool          { return m.child.Next() }
func (m *mapIterator) Record() record.Record { return m.fn(m.child.Record()) }
func (m *mapIterator) Err() error           { return m.child.Err() }
func (m *mapIterator) Close() error         { return m.child.Close() }

func (e *Executor) execExtract(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	child, err := e.Execute(ctx, o.ExtractChild)
	if err != nil {
		return nil, err
	}
	names := o.ExtractNames
	return &mapIterator{child: child, fn: func(r record.Record) record.Record {
		return record.Record{Key: r.Key, Value: value.ExtractFields(r.Value, names)}
	}}, nil
}

func (e *Executor) execAugment(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	child, err := e.Execute(ctx, o.AugmentChild)
	if err != nil {
		return nil, err
	}
	extra, _ := o.AugmentValue.(value.Object)
	return &mapIterator{child: child, fn: func(r record.Record) record.Record {
		return record.Record{Key: r.Key, Value: value.Augment(r.Value, extra)}
	}}, nil
}

func (e *Executor) execIndexLookup(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	paths, ok := e.cat.IndexPaths(o.IxType, o.IxIndex)
	if !ok {
		return record.NewEmpty(), nil
	}
	arity := len(paths)
	comps := make([][]byte, len(o.IxValues))
	for i, v := range o.IxValues {
		comps[i] = codec.Encode(v)
	}
	lower, upper := indexkey.Prefix(comps)
	ns := catalog.IndexNamespace(o.IxType, o.IxIndex)
	it, err := e.kv.IterForward(ctx, ns, lower, upper)
	if err != nil {
		return nil, err
	}
	return &indexLookupIterator{it: it, arity: arity, outKeys: o.IxOutKeys}, nil
}

type indexLookupIterator struct {
	it      kvstore.Iterator
	arity   int
	outKeys []string
	rec     record.Record
	err     error
}

func (x *indexLookupIterator) Next() bool {
	if x.err != nil {
		return false
	}
	if !x.it.Next() {
		x.err = x.it.Err()
		return false
	}
	comps, recKeyBytes, err := indexkey.Split(x.it.Key(), x.arity)
	if err != nil {
		x.err = err
		return false
	}
	recKey, err := codec.Decode(recKeyBytes)
	if err != nil {
		x.err = err
		return false
	}
	out := value.Object{}
	for i, comp := range comps {
		if i >= len(x.outKeys) || x.outKeys[i] == "" {
			continue
		}
		cv, err := codec.Decode(comp)
		if err != nil {
			x.err = err
			return false
		}
		out[x.outKeys[i]] = cv
	}
	x.rec = record.Record{Key: recKey, Value: out}
	return true
}

func (x *indexLookupIterator) Record() record.Record { return x.rec }
func (x *indexLookupIterator) Err() error            { return x.err }
func (x *indexLookupIterator) Close() error          { return x.it.Close() }

func (e *Executor) execProcess(ctx context.Context, o *op.Operator) (record.Iterator, error) {
	child, err := e.Execute(ctx, o.PrProcessChild)
	if err != nil {
		return nil, err
	}
	return o.PrTransform.Apply(child), nil
}
