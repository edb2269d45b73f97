// Package indexkey builds and splits the ordered byte keys stored in
// index namespaces (spec.md C2, §6 "Index-entry key format"):
//
//	enc(C1) 0x00 enc(C2) 0x00 ... enc(Cn) 0x00 enc(record_key)
//
// A component's canonical encoding (codec) may itself contain raw 0x00
// bytes (e.g. a number's order-preserving payload), so each component is
// escaped (0x00 -> 0x00 0xFF) before being joined with unescaped 0x00
// separators. A real separator is always a 0x00 byte NOT immediately
// followed by 0xFF; that distinction is what makes Split unambiguous.
package indexkey

import "github.com/kvquery/eql/internal/eqlerr"

// escape replaces every 0x00 byte in b with 0x00 0xFF.
func escape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		out = append(out, c)
		if c == 0x00 {
			out = append(out, 0xFF)
		}
	}
	return out
}

// Build concatenates the already-canonical component encodings and the
// encoded record key into a single index-entry key, per spec.md §6.
func Build(components [][]byte, encodedRecordKey []byte) []byte {
	var out []byte
	for _, c := range components {
		out = append(out, escape(c)...)
		out = append(out, 0x00)
	}
	out = append(out, escape(encodedRecordKey)...)
	return out
}

// Prefix constructs the [lower, upper) byte range for a prefix range
// query over the first len(components) components (spec.md §4.2): the
// lower bound is the escaped components joined by separators; the upper
// bound is the same bytes with the final separator replaced by 0x01
// (exclusive). An empty components list yields ([]byte{}, nil), which
// iterates the whole index (nil upper bound = unbounded).
func Prefix(components [][]byte) (lower, upper []byte) {
	if len(components) == 0 {
		return []byte{}, nil
	}
	var lo []byte
	for _, c := range components {
		lo = append(lo, escape(c)...)
		lo = append(lo, 0x00)
	}
	hi := make([]byte, len(lo))
	copy(hi, lo)
	hi[len(hi)-1] = 0x01
	return lo, hi
}

// Split decomposes an index-entry key into its component encodings and
// the trailing encoded record key, all already unescaped (each can be
// passed straight to codec.Decode).
func Split(key []byte, numComponents int) (components [][]byte, encodedRecordKey []byte, err error) {
	components = make([][]byte, 0, numComponents)
	i := 0
	for len(components) < numComponents {
		start := i
		for {
			if i >= len(key) {
				return nil, nil, &eqlerr.CodecError{Detail: "index key truncated: missing component separator"}
			}
			if key[i] == 0x00 {
				if i+1 < len(key) && key[i+1] == 0xFF {
					i += 2
					continue
				}
				break
			}
			i++
		}
		components = append(components, unescape(key[start:i]))
		i++ // skip the separator
	}
	return components, unescape(key[i:]), nil
}

func unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == 0x00 {
			i++ // skip the escaping 0xFF
		}
	}
	return out
}
