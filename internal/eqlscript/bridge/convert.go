package bridge

import (
	"github.com/dop251/goja"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

// normalizeJS converts a value produced by goja.Value.Export() into the
// engine's canonical Value shape: JS objects/arrays export as
// map[string]interface{} / []interface{} already, matching
// value.Object / value.Array structurally, but whole-number JS numbers
// export as int64 rather than float64 (value.Value permits float64
// only), so integers are normalized here, recursively.
func normalizeJS(v any) value.Value {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case map[string]any:
		out := make(value.Object, len(x))
		for k, fv := range x {
			out[k] = normalizeJS(fv)
		}
		return out
	case []any:
		out := make(value.Array, len(x))
		for i, fv := range x {
			out[i] = normalizeJS(fv)
		}
		return out
	default:
		return x
	}
}

// exportValue exports a goja.Value and normalizes it; (nil, false) if v
// is null/undefined -- the scripting bridge's "absent" convention.
func exportValue(v goja.Value) (value.Value, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return normalizeJS(v.Export()), true
}

// exportRecord exports a goja.Value expected to hold a scriptRecord
// ({key, value}); (Record{}, false, nil) if v is null/undefined (the
// bridge's drop-this-row convention for combine callbacks).
func exportRecord(v goja.Value) (record.Record, bool, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return record.Record{}, false, nil
	}
	raw := v.Export()
	m, ok := raw.(map[string]any)
	if !ok {
		if sr, ok := raw.(scriptRecord); ok {
			return record.Record{Key: sr.Key, Value: sr.Value}, true, nil
		}
		return record.Record{}, false, &eqlerr.DynamicConversionError{
			Detail: "combine script did not return a record ({key, value})",
		}
	}
	return record.Record{Key: normalizeJS(m["key"]), Value: normalizeJS(m["value"])}, true, nil
}
