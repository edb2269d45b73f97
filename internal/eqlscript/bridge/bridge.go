// Package bridge implements the scripting bridge half of spec.md C8: it
// compiles callback source (from an eqlscript.ScriptedOperation) into
// reusable goja programs and, at execution time, binds the current
// record(s) into a fresh goja.Runtime scope, evaluates, and converts the
// result back into the engine's Value / operator types.
//
// The bridge also exposes the operator constructors named in spec.md
// §4.8 (scan, key_lookup, index_lookup, nested_loops, hash_join, merge,
// map, reduce, augment, extract, empty_record) as functions callable
// from scripts -- required because NestedLoops callbacks build and
// return operators dynamically.
package bridge

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// Bridge compiles and evaluates scripting callbacks. It is safe for
// concurrent use across goroutines; programs are compiled once and
// cached, and each evaluation gets a fresh goja.Runtime (goja runtimes
// themselves are not safe for concurrent use).
type Bridge struct {
	mu       sync.Mutex
	programs map[string]*goja.Program
}

func New() *Bridge {
	return &Bridge{programs: make(map[string]*goja.Program)}
}

func (b *Bridge) compile(src string) (*goja.Program, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.programs[src]; ok {
		return p, nil
	}
	p, err := goja.Compile("callback", src, false)
	if err != nil {
		return nil, &eqlerr.ScriptCompileError{Source: src, Err: err}
	}
	b.programs[src] = p
	return p, nil
}

// scriptRecord is the JS-visible shape of a record.Record; goja's
// UncapFieldNameMapper exposes its exported fields to scripts as
// {key, value}.
type scriptRecord struct {
	Key   value.Value
	Value value.Value
}

func toScriptRecord(r record.Record) scriptRecord {
	return scriptRecord{Key: r.Key, Value: r.Value}
}

// newRuntime builds a goja.Runtime with the operator-constructor and
// record-helper builtins bound in, per spec.md §4.8.
func (b *Bridge) newRuntime() *goja.Runtime {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())
	b.registerBuiltins(rt)
	return rt
}

// runLastExpr runs prog and returns its completion value. Callback
// scripts conventionally end with the bound variable they mutated (e.g.
// "...;rec") as their last expression, so the program's own result is
// normally what callers want; as a fallback for scripts that only
// mutate without a trailing expression, the named scope variable is
// read back if the program's result is undefined.
func runLastExpr(rt *goja.Runtime, prog *goja.Program, fallbackVar string) (goja.Value, error) {
	res, err := rt.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	if res == nil || goja.IsUndefined(res) {
		if v := rt.GlobalObject().Get(fallbackVar); v != nil {
			return v, nil
		}
	}
	return res, nil
}
