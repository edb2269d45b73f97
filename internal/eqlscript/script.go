// Package eqlscript implements the textual front-end (spec.md C8): a
// hand-written recursive-descent parser for the surface syntax of §6,
// producing a ScriptedOperation tree whose callbacks are raw source
// strings rather than Go function values. ToExecutable compiles those
// callbacks through a Bridge (package eqlscript/bridge) to produce the
// op.Operator tree the executor consumes.
package eqlscript

import "github.com/kvquery/eql/internal/value"

// ExtractKind selects the variant of a ScriptedExtract.
type ExtractKind int

const (
	ExtractKindKey ExtractKind = iota
	ExtractKindValue
	ExtractKindPointer
	ExtractKindScript
	ExtractKindMultiple
)

// ScriptedExtract mirrors op.RecordExtract in serializable form: a
// pointer path or callback script held as text, compiled on demand.
type ScriptedExtract struct {
	Kind    ExtractKind
	Pointer string
	Script  string
	Parts   []ScriptedExtract
}

// Kind identifies the variant of a ScriptedOperation, reusing op.Kind's
// numbering isn't necessary since this tree is parsed independently of
// package op; Kind values are local to this package.
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
	KindMap
	KindReduce
)

// ScriptedOperation is the parsed, not-yet-compiled mirror of op.Operator
// (spec.md C8): every callback that would be a Go function in
// programmatic use is held here as its raw source text.
type ScriptedOperation struct {
	Kind Kind

	ScanName string

	LookupName string
	LookupKey  value.Value

	ExtractNames []string
	ExtractChild *ScriptedOperation

	AugmentValue value.Value
	AugmentChild *ScriptedOperation

	IxName    string
	IxIndex   string
	IxValues  []value.Value
	IxOutKeys []string

	NLFirst  *ScriptedOperation
	NLScript string

	HJBuild       *ScriptedOperation
	HJBuildHash   ScriptedExtract
	HJProbe       *ScriptedOperation
	HJProbeHash   ScriptedExtract
	HJJoinScript  string

	MJFirst        *ScriptedOperation
	MJFirstKey     ScriptedExtract
	MJSecond       *ScriptedOperation
	MJSecondKey    ScriptedExtract
	MJJoinScript   string

	// Map / Reduce
	PrChild        *ScriptedOperation
	PrProcessScript string
}
