package bridge

import (
	"github.com/dop251/goja"

	"github.com/kvquery/eql/internal/eqlscript"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// registerBuiltins binds the operator constructors spec.md §4.8 names
// as script-callable functions: scan, key_lookup, extract, augment,
// index_lookup are pure and delegate straight to package op, and
// empty_record returns record.Empty(); nested_loops, hash_join, merge, map, reduce additionally accept
// raw callback source (their own sub-callbacks), compiled through this
// same Bridge so scripts can nest arbitrarily.
func (b *Bridge) registerBuiltins(rt *goja.Runtime) {
	must := func(name string, v any) {
		if err := rt.Set(name, v); err != nil {
			panic(err)
		}
	}

	must("scan", func(name string) *op.Operator { return op.Scan(name) })
	must("key_lookup", func(name string, key value.Value) *op.Operator {
		return op.KeyLookup(name, key)
	})
	must("extract", func(names []string, child *op.Operator) *op.Operator {
		return op.Extract(names, child)
	})
	must("augment", func(v value.Value, child *op.Operator) *op.Operator {
		return op.Augment(v, child)
	})
	must("index_lookup", func(name, index string, values []value.Value, outKeys []string) *op.Operator {
		return op.IndexLookup(name, index, values, outKeys)
	})
	must("empty_record", func() scriptRecord { return toScriptRecord(record.Empty()) })

	must("nested_loops", func(outer *op.Operator, rawBuildScript string) *op.Operator {
		return op.NestedLoops(outer, b.buildInner(rawBuildScript))
	})

	must("hash_join", func(build *op.Operator, buildKeySrc string, probe *op.Operator, probeKeySrc string, rawJoinScript string) (*op.Operator, error) {
		buildKey, err := b.recordExtractFromSource(buildKeySrc)
		if err != nil {
			return nil, err
		}
		probeKey, err := b.recordExtractFromSource(probeKeySrc)
		if err != nil {
			return nil, err
		}
		return op.HashJoin(build, buildKey, probe, probeKey, b.combineBuildProbe(rawJoinScript)), nil
	})

	must("merge", func(left *op.Operator, leftKeySrc string, right *op.Operator, rightKeySrc string, rawJoinScript string) (*op.Operator, error) {
		leftKey, err := b.recordExtractFromSource(leftKeySrc)
		if err != nil {
			return nil, err
		}
		rightKey, err := b.recordExtractFromSource(rightKeySrc)
		if err != nil {
			return nil, err
		}
		return op.MergeJoin(left, leftKey, right, rightKey, b.combineMerge(rawJoinScript)), nil
	})

	must("map", func(child *op.Operator, rawScript string) *op.Operator {
		return op.Process(child, b.mapTransform(rawScript))
	})

	must("reduce", func(child *op.Operator, rawScript string) *op.Operator {
		return op.Process(child, b.reduceTransform(rawScript))
	})
}

// recordExtractFromSource parses src as a standalone record-extract
// expression (the "extract" production of spec.md §6's grammar: key,
// value, pointer(...), script(...), or [...]) and compiles it.
func (b *Bridge) recordExtractFromSource(src string) (op.RecordExtract, error) {
	se, err := eqlscript.ParseRecordExtract(src)
	if err != nil {
		return nil, err
	}
	return b.toRecordExtract(se)
}
