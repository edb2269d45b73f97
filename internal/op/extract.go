package op

import (
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// Native RecordExtract implementations: Key, Value, Path(p), Multiple.
// The scripted mirror (Script(s)) lives in package eqlscript/bridge,
// which compiles a callback string into a RecordExtract bound to a goja
// runtime instead of a plain Go closure.

type keyExtract struct{}

// ExtractKey derives the record's key.
func ExtractKey() RecordExtract { return keyExtract{} }

func (keyExtract) Apply(r record.Record) (any, bool, error) { return r.Key, true, nil }

type valueExtract struct{}

// ExtractValue derives the record's value.
func ExtractValue() RecordExtract { return valueExtract{} }

func (valueExtract) Apply(r record.Record) (any, bool, error) { return r.Value, true, nil }

type pathExtract struct{ path value.Path }

// ExtractPath derives a structural selection into the record's value.
// Absent paths yield (nil, true) -- a present-but-null component, not an
// absent result (only Script extracts and HashJoin probe lookups produce
// ok=false, per spec.md C6).
func ExtractPath(p value.Path) RecordExtract { return pathExtract{path: p} }

func (e pathExtract) Apply(r record.Record) (any, bool, error) {
	return value.Extract(r.Value, e.path), true, nil
}

type multipleExtract struct{ parts []RecordExtract }

// ExtractMultiple composes several extracts into one ordered sequence of
// component values, used to form composite join keys.
func ExtractMultiple(parts ...RecordExtract) RecordExtract {
	return multipleExtract{parts: parts}
}

func (e multipleExtract) Apply(r record.Record) (any, bool, error) {
	out := make(value.Array, len(e.parts))
	for i, p := range e.parts {
		v, ok, err := p.Apply(r)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		out[i] = v
	}
	return out, true, nil
}
