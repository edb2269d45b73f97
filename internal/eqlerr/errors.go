// Package eqlerr defines the typed error kinds surfaced across the engine
// and the propagation policy for each (see spec.md §7).
package eqlerr

import "fmt"

// Kind classifies an error for callers that need to branch on it (e.g. the
// HTTP surface mapping errors to status codes).
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateIndex
	KindStorage
	KindCatalog
	KindParse
	KindScriptCompile
	KindScriptEval
	KindDynamicConversion
	KindCodec
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateIndex:
		return "duplicate_index"
	case KindStorage:
		return "storage"
	case KindCatalog:
		return "catalog"
	case KindParse:
		return "parse"
	case KindScriptCompile:
		return "script_compile"
	case KindScriptEval:
		return "script_eval"
	case KindDynamicConversion:
		return "dynamic_conversion"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// DuplicateIndex is returned by CreateIndex when the (type, name) pair
// already exists in the catalog. No state changes.
type DuplicateIndex struct {
	Type string
	Name string
}

func (e *DuplicateIndex) Error() string {
	return fmt.Sprintf("index %q already exists on type %q", e.Name, e.Type)
}

func (e *DuplicateIndex) Kind() Kind { return KindDuplicateIndex }

// StorageError wraps a failure surfaced by the underlying KV engine.
// It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Kind() Kind    { return KindStorage }

// CatalogError means the catalog file could not be read or written. The
// database handle that produced it should be considered invalid.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string { return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err) }
func (e *CatalogError) Unwrap() error { return e.Err }
func (e *CatalogError) Kind() Kind    { return KindCatalog }

// ParseError reports a textual front-end failure. It always surfaces
// before any execution begins.
type ParseError struct {
	Line   int
	Col    int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Detail)
}

func (e *ParseError) Kind() Kind { return KindParse }

// ScriptCompileError means a callback's source failed to compile into a
// script AST.
type ScriptCompileError struct {
	Source string
	Err    error
}

func (e *ScriptCompileError) Error() string {
	return fmt.Sprintf("script compile error: %v", e.Err)
}
func (e *ScriptCompileError) Unwrap() error { return e.Err }
func (e *ScriptCompileError) Kind() Kind    { return KindScriptCompile }

// Phase names the operator kind a ScriptEvalError occurred under.
type Phase string

const (
	PhaseNestedLoops Phase = "nested_loops"
	PhaseHashJoin    Phase = "hash_join"
	PhaseMerge       Phase = "merge"
	PhaseMap         Phase = "map"
	PhaseReduce      Phase = "reduce"
	PhaseExtract     Phase = "extract"
)

// ScriptEvalError means a callback failed during evaluation. The
// iterator producing records terminates with this error.
type ScriptEvalError struct {
	Phase Phase
	Err   error
}

func (e *ScriptEvalError) Error() string {
	return fmt.Sprintf("script eval error in %s: %v", e.Phase, e.Err)
}
func (e *ScriptEvalError) Unwrap() error { return e.Err }
func (e *ScriptEvalError) Kind() Kind    { return KindScriptEval }

// DynamicConversionError means a value failed to convert between the
// scripting runtime's representation and an engine Value.
type DynamicConversionError struct {
	Detail string
}

func (e *DynamicConversionError) Error() string {
	return fmt.Sprintf("dynamic conversion error: %s", e.Detail)
}

func (e *DynamicConversionError) Kind() Kind { return KindDynamicConversion }

// CodecError means on-disk bytes could not be decoded; the store is
// corrupt or the catalog lies about the shape of a value. Fatal.
type CodecError struct {
	Detail string
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec error: %s", e.Detail) }
func (e *CodecError) Kind() Kind    { return KindCodec }

type kinder interface{ Kind() Kind }

// KindOf extracts the Kind from err if it is one of this package's error
// types (walking Unwrap chains), or KindUnknown otherwise.
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(kinder); ok {
			return k.Kind()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindUnknown
}
