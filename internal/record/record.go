// Package record defines the Record type shared by the record store and
// executor, and the lazy pull-style Iterator the executor produces.
package record

import "github.com/kvquery/eql/internal/value"

// Record is a (key, value) pair under a record type (spec.md §3).
type Record struct {
	Key   value.Value
	Value value.Value
}

// Empty returns the sentinel empty-value record used by reduce-style
// callbacks that summarize a stream into one row (spec.md §4.8's
// empty_record() script builtin, SPEC_FULL.md C8).
func Empty() Record {
	return Record{Key: nil, Value: value.Object{}}
}

// Iterator is a lazy, pull-style stream of Records, mirroring
// kvstore.Iterator's shape so operators compose without adapters.
// Close must release every resource the iterator holds (nested
// iterators, storage cursors) even if the caller never calls Next.
type Iterator interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// Collect drains it into a slice. Intended for tests and for HashJoin's
// build side, which spec.md requires to be fully materialized.
func Collect(it Iterator) ([]Record, error) {
	defer it.Close()
	var out []Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// Slice adapts a pre-materialized slice into an Iterator.
type Slice struct {
	recs []Record
	idx  int
}

func NewSlice(recs []Record) *Slice { return &Slice{recs: recs, idx: -1} }

func (s *Slice) Next() bool {
	s.idx++
	return s.idx < len(s.recs)
}

func (s *Slice) Record() Record { return s.recs[s.idx] }
func (s *Slice) Err() error     { return nil }
func (s *Slice) Close() error   { return nil }

// Empty iterator constant helper.
type emptyIter struct{ err error }

func NewEmpty() Iterator              { return &emptyIter{} }
func NewError(err error) Iterator     { return &emptyIter{err: err} }
func (e *emptyIter) Next() bool       { return false }
func (e *emptyIter) Record() Record   { return Record{} }
func (e *emptyIter) Err() error       { return e.err }
func (e *emptyIter) Close() error     { return nil }
