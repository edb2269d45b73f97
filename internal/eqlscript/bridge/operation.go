package bridge

import (
	"github.com/dop251/goja"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/eqlscript"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// ToExecutable walks a parsed ScriptedOperation, compiling every
// callback through this Bridge, and produces the executable op.Operator
// tree of spec.md §4.6 (spec.md C8's ScriptedOperation.to_executable()).
func (b *Bridge) ToExecutable(so *eqlscript.ScriptedOperation) (*op.Operator, error) {
	switch so.Kind {
	case eqlscript.KindScan:
		return op.Scan(so.ScanName), nil

	case eqlscript.KindKeyLookup:
		return op.KeyLookup(so.LookupName, so.LookupKey), nil

	case eqlscript.KindExtract:
		child, err := b.ToExecutable(so.ExtractChild)
		if err != nil {
			return nil, err
		}
		return op.Extract(so.ExtractNames, child), nil

	case eqlscript.KindAugment:
		child, err := b.ToExecutable(so.AugmentChild)
		if err != nil {
			return nil, err
		}
		return op.Augment(so.AugmentValue, child), nil

	case eqlscript.KindIndexLookup:
		return op.IndexLookup(so.IxName, so.IxIndex, so.IxValues, so.IxOutKeys), nil

	case eqlscript.KindNestedLoops:
		outer, err := b.ToExecutable(so.NLFirst)
		if err != nil {
			return nil, err
		}
		return op.NestedLoops(outer, b.buildInner(so.NLScript)), nil

	case eqlscript.KindHashJoin:
		build, err := b.ToExecutable(so.HJBuild)
		if err != nil {
			return nil, err
		}
		probe, err := b.ToExecutable(so.HJProbe)
		if err != nil {
			return nil, err
		}
		buildKey, err := b.toRecordExtract(so.HJBuildHash)
		if err != nil {
			return nil, err
		}
		probeKey, err := b.toRecordExtract(so.HJProbeHash)
		if err != nil {
			return nil, err
		}
		return op.HashJoin(build, buildKey, probe, probeKey, b.combineBuildProbe(so.HJJoinScript)), nil

	case eqlscript.KindMergeJoin:
		left, err := b.ToExecutable(so.MJFirst)
		if err != nil {
			return nil, err
		}
		right, err := b.ToExecutable(so.MJSecond)
		if err != nil {
			return nil, err
		}
		leftKey, err := b.toRecordExtract(so.MJFirstKey)
		if err != nil {
			return nil, err
		}
		rightKey, err := b.toRecordExtract(so.MJSecondKey)
		if err != nil {
			return nil, err
		}
		return op.MergeJoin(left, leftKey, right, rightKey, b.combineMerge(so.MJJoinScript)), nil

	case eqlscript.KindMap:
		child, err := b.ToExecutable(so.PrChild)
		if err != nil {
			return nil, err
		}
		return op.Process(child, b.mapTransform(so.PrProcessScript)), nil

	case eqlscript.KindReduce:
		child, err := b.ToExecutable(so.PrChild)
		if err != nil {
			return nil, err
		}
		return op.Process(child, b.reduceTransform(so.PrProcessScript)), nil

	default:
		return nil, &eqlerr.DynamicConversionError{Detail: "unknown scripted operation kind"}
	}
}

func (b *Bridge) toRecordExtract(se eqlscript.ScriptedExtract) (op.RecordExtract, error) {
	switch se.Kind {
	case eqlscript.ExtractKindKey:
		return op.ExtractKey(), nil
	case eqlscript.ExtractKindValue:
		return op.ExtractValue(), nil
	case eqlscript.ExtractKindPointer:
		return op.ExtractPath(value.ParsePath(se.Pointer)), nil
	case eqlscript.ExtractKindScript:
		return b.scriptedExtract(se.Script)
	case eqlscript.ExtractKindMultiple:
		parts := make([]op.RecordExtract, len(se.Parts))
		for i, p := range se.Parts {
			re, err := b.toRecordExtract(p)
			if err != nil {
				return nil, err
			}
			parts[i] = re
		}
		return op.ExtractMultiple(parts...), nil
	default:
		return nil, &eqlerr.DynamicConversionError{Detail: "unknown record-extract kind"}
	}
}

// scriptedRecordExtract is the op.RecordExtract implementation backing
// ScriptedExtract's Script variant: binds rec, evaluates, and treats a
// null/undefined result as absent (spec.md's RecordExtract "Script(s)").
type scriptedRecordExtract struct {
	b    *Bridge
	prog *goja.Program
}

func (b *Bridge) scriptedExtract(src string) (op.RecordExtract, error) {
	prog, err := b.compile(src)
	if err != nil {
		return nil, err
	}
	return &scriptedRecordExtract{b: b, prog: prog}, nil
}

func (s *scriptedRecordExtract) Apply(r record.Record) (any, bool, error) {
	rt := s.b.newRuntime()
	if err := rt.Set("rec", toScriptRecord(r)); err != nil {
		return nil, false, err
	}
	res, err := runLastExpr(rt, s.prog, "rec")
	if err != nil {
		return nil, false, &eqlerr.ScriptEvalError{Phase: eqlerr.PhaseExtract, Err: err}
	}
	v, ok := exportValue(res)
	return v, ok, nil
}

// buildInner compiles src (a NestedLoops "second" callback) once and
// returns an op.BuildInner that binds rec and evaluates it per outer
// record, expecting an *op.Operator result (spec.md C8: the bridge
// exposes operator constructors precisely so these scripts can build
// and return operators).
func (b *Bridge) buildInner(src string) op.BuildInner {
	return op.BuildInnerFunc(func(r record.Record) (*op.Operator, error) {
		prog, err := b.compile(src)
		if err != nil {
			return nil, err
		}
		rt := b.newRuntime()
		if err := rt.Set("rec", toScriptRecord(r)); err != nil {
			return nil, err
		}
		res, err := rt.RunProgram(prog)
		if err != nil {
			return nil, &eqlerr.ScriptEvalError{Phase: eqlerr.PhaseNestedLoops, Err: err}
		}
		built, ok := res.Export().(*op.Operator)
		if !ok {
			return nil, &eqlerr.DynamicConversionError{
				Detail: "nested_loops callback did not return an operator",
			}
		}
		return built, nil
	})
}

// combineBuildProbe compiles a hash_join combine callback, binding
// build (nilable) and probe (always present) per invocation.
func (b *Bridge) combineBuildProbe(src string) op.Combine {
	return op.CombineFunc(func(build, probe *record.Record) (record.Record, bool, error) {
		prog, err := b.compile(src)
		if err != nil {
			return record.Record{}, false, err
		}
		rt := b.newRuntime()
		if build != nil {
			_ = rt.Set("build", toScriptRecord(*build))
		} else {
			_ = rt.Set("build", goja.Null())
		}
		_ = rt.Set("probe", toScriptRecord(*probe))
		res, err := runLastExpr(rt, prog, "probe")
		if err != nil {
			return record.Record{}, false, &eqlerr.ScriptEvalError{Phase: eqlerr.PhaseHashJoin, Err: err}
		}
		return exportRecord(res)
	})
}

// combineMerge compiles a merge combine callback, binding rec1 and rec2
// (either may be nil -- one-sided flush, spec.md C6 MergeJoin).
func (b *Bridge) combineMerge(src string) op.Combine {
	return op.CombineFunc(func(rec1, rec2 *record.Record) (record.Record, bool, error) {
		prog, err := b.compile(src)
		if err != nil {
			return record.Record{}, false, err
		}
		rt := b.newRuntime()
		if rec1 != nil {
			_ = rt.Set("rec1", toScriptRecord(*rec1))
		} else {
			_ = rt.Set("rec1", goja.Null())
		}
		if rec2 != nil {
			_ = rt.Set("rec2", toScriptRecord(*rec2))
		} else {
			_ = rt.Set("rec2", goja.Null())
		}
		res, err := runLastExpr(rt, prog, "rec2")
		if err != nil {
			return record.Record{}, false, &eqlerr.ScriptEvalError{Phase: eqlerr.PhaseMerge, Err: err}
		}
		return exportRecord(res)
	})
}

// mapTransform compiles a map callback applied once per input record,
// binding rec and preserving stream order (spec.md C8 map). A record for
// which the script returns null is dropped from the output.
func (b *Bridge) mapTransform(src string) op.Transform {
	return op.TransformFunc(func(in record.Iterator) record.Iterator {
		prog, err := b.compile(src)
		if err != nil {
			in.Close()
			return record.NewError(err)
		}
		return &mapScriptIterator{b: b, prog: prog, child: in}
	})
}

type mapScriptIterator struct {
	b     *Bridge
	prog  *goja.Program
	child record.Iterator
	rec   record.Record
	err   error
}

func (m *mapScriptIterator) Next() bool {
	if m.err != nil {
		return false
	}
	if !m.child.Next() {
		m.err = m.child.Err()
		return false
	}
	rt := m.b.newRuntime()
	if err := rt.Set("rec", toScriptRecord(m.child.Record())); err != nil {
		m.err = err
		return false
	}
	res, err := runLastExpr(rt, m.prog, "rec")
	if err != nil {
		m.err = &eqlerr.ScriptEvalError{Phase: eqlerr.PhaseMap, Err: err}
		return false
	}
	out, ok, err := exportRecord(res)
	if err != nil {
		m.err = err
		return false
	}
	if !ok {
		return m.Next()
	}
	m.rec = out
	return true
}

func (m *mapScriptIterator) Record() record.Record { return m.rec }
func (m *mapScriptIterator) Err() error             { return m.err }
func (m *mapScriptIterator) Close() error           { return m.child.Close() }

// reduceTransform compiles a reduce callback that materializes the
// entire input stream into recs and binds a fresh empty_record() as rec
// for the script to populate, producing exactly one output record
// (spec.md §8 scenario 6).
func (b *Bridge) reduceTransform(src string) op.Transform {
	return op.TransformFunc(func(in record.Iterator) record.Iterator {
		prog, err := b.compile(src)
		if err != nil {
			in.Close()
			return record.NewError(err)
		}
		recs, err := record.Collect(in)
		if err != nil {
			return record.NewError(err)
		}
		rt := b.newRuntime()
		scriptRecs := make([]scriptRecord, len(recs))
		for i, r := range recs {
			scriptRecs[i] = toScriptRecord(r)
		}
		if err := rt.Set("recs", scriptRecs); err != nil {
			return record.NewError(err)
		}
		if err := rt.Set("rec", toScriptRecord(record.Empty())); err != nil {
			return record.NewError(err)
		}
		res, err := runLastExpr(rt, prog, "rec")
		if err != nil {
			return record.NewError(&eqlerr.ScriptEvalError{Phase: eqlerr.PhaseReduce, Err: err})
		}
		out, ok, err := exportRecord(res)
		if err != nil {
			return record.NewError(err)
		}
		if !ok {
			return record.NewSlice(nil)
		}
		return record.NewSlice([]record.Record{out})
	})
}
