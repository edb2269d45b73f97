// Package value defines the recursively structured datum (spec.md §3's
// "Value") used as record keys, record values, and index-key components:
// null, boolean, number, string, ordered sequence, or mapping from string
// to value.
package value

import "sort"

// Value is the JSON-equivalent datum. Concrete dynamic types are: nil,
// bool, float64, string, Array, Object. No other dynamic type may appear;
// constructing one outside this set is a programming error in the caller.
type Value = any

// Array is the ordered-sequence variant of Value.
type Array = []Value

// Object is the string-keyed mapping variant of Value. Field order is not
// significant: spec.md leaves output field order unspecified for Extract,
// and canonical encoding (codec) always sorts keys before encoding.
type Object = map[string]Value

// Path is a structural selector into a Value, e.g. "/address/city". An
// empty Path selects the whole value.
type Path []string

// ParsePath splits a "/"-separated selector into segments. "" and "/" both
// yield the empty Path (whole-value selector).
func ParsePath(s string) Path {
	if s == "" || s == "/" {
		return nil
	}
	if s[0] == '/' {
		s = s[1:]
	}
	if s == "" {
		return nil
	}
	segs := splitSlash(s)
	return Path(segs)
}

func splitSlash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	s := ""
	for _, seg := range p {
		s += "/" + seg
	}
	return s
}

// Extract walks v according to p and returns the value found, or nil if
// any segment is missing or v is not a mapping where required. An empty
// Path returns v unchanged.
func Extract(v Value, p Path) Value {
	cur := v
	for _, seg := range p {
		obj, ok := cur.(Object)
		if !ok {
			return nil
		}
		next, present := obj[seg]
		if !present {
			return nil
		}
		cur = next
	}
	return cur
}

// Equal reports whether two Values are structurally equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, vv := range av {
			ov, present := bv[k]
			if !present || !Equal(vv, ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedKeys returns an Object's keys sorted for canonical traversal
// (encoding, deterministic test output, ...).
func SortedKeys(o Object) []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExtractFields returns a new Object containing only the named fields of
// v, if v is an Object; otherwise v is returned unchanged (spec.md C6
// Extract operator semantics).
func ExtractFields(v Value, names []string) Value {
	obj, ok := v.(Object)
	if !ok {
		return v
	}
	out := make(Object, len(names))
	for _, n := range names {
		if fv, present := obj[n]; present {
			out[n] = fv
		}
	}
	return out
}

// Augment merges extra into v without overwriting keys already present on
// v, if v is an Object; otherwise v is returned unchanged (spec.md C6
// Augment operator semantics).
func Augment(v Value, extra Object) Value {
	obj, ok := v.(Object)
	if !ok {
		return v
	}
	out := make(Object, len(obj)+len(extra))
	for k, fv := range extra {
		out[k] = fv
	}
	for k, fv := range obj {
		out[k] = fv
	}
	return out
}
