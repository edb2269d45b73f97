// Package op defines the tagged-variant operator tree (spec.md C6): the
// typed query plan the caller composes instead of writing declarative
// SQL. The executor (package exec) interprets this tree; nothing in this
// package touches storage.
package op

import "github.com/kvquery/eql/internal/record"

// Operator is the tagged-variant operator tree node. Exactly one of the
// typed fields on a constructed Operator is meaningful, selected by Kind
// -- callers use the constructor functions below rather than building an
// Operator by hand.
type Kind int

const (
	KindScan Kind = iota
	KindKeyLookup
	KindExtract
	KindAugment
	KindIndexLookup
	KindNestedLoops
	KindHashJoin
	KindMergeJoin
	KindProcess
)

type Operator struct {
	Kind Kind

	// Scan
	ScanType string

	// KeyLookup
	LookupType string
	LookupKey  any

	// Extract
	ExtractNames []string
	ExtractChild *Operator

	// Augment
	AugmentValue any
	AugmentChild *Operator

	// IndexLookup
	IxType    string
	IxIndex   string
	IxValues  []any
	IxOutKeys []string

	// NestedLoops
	NLOuter     *Operator
	NLBuildInner BuildInner

	// HashJoin
	HJBuild       *Operator
	HJBuildKey    RecordExtract
	HJProbe       *Operator
	HJProbeKey    RecordExtract
	HJCombine     Combine

	// MergeJoin
	MJLeft      *Operator
	MJLeftKey   RecordExtract
	MJRight     *Operator
	MJRightKey  RecordExtract
	MJCombine   Combine

	// Process
	PrProcessChild *Operator
	PrTransform    Transform
}

// BuildInner builds a fresh operator subtree for the current outer
// record (spec.md C6 NestedLoops). It may fail; the error propagates as
// an executor error.
type BuildInner interface {
	Build(r record.Record) (*Operator, error)
}

// BuildInnerFunc adapts a plain function to BuildInner, the native
// (programmatic-surface) implementation; the scripted mirror lives in
// package eqlscript/bridge.
type BuildInnerFunc func(r record.Record) (*Operator, error)

func (f BuildInnerFunc) Build(r record.Record) (*Operator, error) { return f(r) }

// RecordExtract derives a value.Value from a record (spec.md's RecordExtract
// sum type: Key, Value, Path, Script, Multiple).
type RecordExtract interface {
	Apply(r record.Record) (any, bool, error)
}

// Combine merges a matched (or unmatched) pair of records from a join
// into zero or one output record. Returning ok=false drops the row.
type Combine interface {
	Apply(l, r *record.Record) (record.Record, bool, error)
}

type CombineFunc func(l, r *record.Record) (record.Record, bool, error)

func (f CombineFunc) Apply(l, r *record.Record) (record.Record, bool, error) { return f(l, r) }

// Transform is an opaque stream-to-stream transformation (spec.md C6
// Process): it receives a lazy record.Iterator and returns one.
type Transform interface {
	Apply(in record.Iterator) record.Iterator
}

type TransformFunc func(in record.Iterator) record.Iterator

func (f TransformFunc) Apply(in record.Iterator) record.Iterator { return f(in) }

// --- Constructors (spec.md §6 programmatic surface) ---

func Scan(recordType string) *Operator {
	return &Operator{Kind: KindScan, ScanType: recordType}
}

func KeyLookup(recordType string, key any) *Operator {
	return &Operator{Kind: KindKeyLookup, LookupType: recordType, LookupKey: key}
}

func Extract(names []string, child *Operator) *Operator {
	return &Operator{Kind: KindExtract, ExtractNames: names, ExtractChild: child}
}

func Augment(v any, child *Operator) *Operator {
	return &Operator{Kind: KindAugment, AugmentValue: v, AugmentChild: child}
}

func IndexLookup(recordType, index string, values []any, outKeys []string) *Operator {
	return &Operator{Kind: KindIndexLookup, IxType: recordType, IxIndex: index, IxValues: values, IxOutKeys: outKeys}
}

func NestedLoops(outer *Operator, buildInner BuildInner) *Operator {
	return &Operator{Kind: KindNestedLoops, NLOuter: outer, NLBuildInner: buildInner}
}

func HashJoin(build *Operator, buildKey RecordExtract, probe *Operator, probeKey RecordExtract, combine Combine) *Operator {
	return &Operator{
		Kind: KindHashJoin, HJBuild: build, HJBuildKey: buildKey,
		HJProbe: probe, HJProbeKey: probeKey, HJCombine: combine,
	}
}

func MergeJoin(left *Operator, leftKey RecordExtract, right *Operator, rightKey RecordExtract, combine Combine) *Operator {
	return &Operator{
		Kind: KindMergeJoin, MJLeft: left, MJLeftKey: leftKey,
		MJRight: right, MJRightKey: rightKey, MJCombine: combine,
	}
}

func Process(child *Operator, transform Transform) *Operator {
	return &Operator{Kind: KindProcess, PrProcessChild: child, PrTransform: transform}
}
