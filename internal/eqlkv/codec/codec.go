// Package codec implements the canonical byte encoding of value.Value
// used for record keys, record values, and index-key components
// (spec.md C1). Encoding is deterministic and side-effect-free; equal
// values encode to byte-equal output (I5), and the encoding of null,
// bool, number, and string values preserves their natural ordering under
// byte comparison, which the executor relies on for index range lookups
// and MergeJoin key comparisons.
//
// The tag space starts at 0x01, so 0x00 is never a tag byte. It does
// occur inside encodings (string escapes and terminators, number
// payloads), which is why package indexkey escapes each component before
// joining components with its 0x00 separator.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/value"
)

const (
	tagNull   byte = 0x01
	tagFalse  byte = 0x02
	tagTrue   byte = 0x03
	tagNumber byte = 0x04
	tagString byte = 0x05
	tagArray  byte = 0x06
	tagObject byte = 0x07

	containerEnd byte = 0xFF
)

// Encode returns the canonical byte encoding of v.
func Encode(v value.Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v value.Value) []byte {
	switch tv := v.(type) {
	case nil:
		return append(buf, tagNull)
	case bool:
		if tv {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case float64:
		buf = append(buf, tagNumber)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], orderPreservingBits(tv))
		return append(buf, b[:]...)
	case int:
		return appendValue(buf, float64(tv))
	case string:
		buf = append(buf, tagString)
		buf = appendEscapedString(buf, tv)
		return append(buf, 0x00, 0x00)
	case value.Array:
		buf = append(buf, tagArray)
		for _, el := range tv {
			buf = appendValue(buf, el)
		}
		return append(buf, containerEnd)
	case value.Object:
		buf = append(buf, tagObject)
		keys := value.SortedKeys(tv)
		for _, k := range keys {
			buf = appendEscapedKey(buf, k)
			buf = appendValue(buf, tv[k])
		}
		return append(buf, containerEnd)
	default:
		panic("codec: unsupported value type")
	}
}

// appendEscapedString appends s with every literal 0x00 byte escaped as
// 0x00 0xFF. The caller appends the 0x00 0x00 terminator afterward.
func appendEscapedString(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		buf = append(buf, c)
		if c == 0x00 {
			buf = append(buf, 0xFF)
		}
	}
	return buf
}

// appendEscapedKey encodes an object key the same way a string value is
// encoded (tag + escaped bytes + terminator), so object entries remain
// self-delimiting when nested.
func appendEscapedKey(buf []byte, k string) []byte {
	buf = append(buf, tagString)
	buf = appendEscapedString(buf, k)
	return append(buf, 0x00, 0x00)
}

// orderPreservingBits maps a float64's IEEE-754 bit pattern to a uint64
// whose big-endian byte order matches the float's numeric order: for
// non-negative floats, set the sign bit; for negative floats, invert all
// bits. NaN is not a valid Value and is not handled specially.
func orderPreservingBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		return bits | (1 << 63)
	}
	return ^bits
}

func fromOrderPreservingBits(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

// Decode decodes the entire buffer as a single Value. It is an error for
// trailing bytes to remain.
func Decode(b []byte) (value.Value, error) {
	v, n, err := decodeValue(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, &eqlerr.CodecError{Detail: "trailing bytes after decoded value"}
	}
	return v, nil
}

// decodeValue decodes one Value from the start of b and returns the
// number of bytes consumed.
func decodeValue(b []byte) (value.Value, int, error) {
	if len(b) == 0 {
		return nil, 0, &eqlerr.CodecError{Detail: "empty buffer"}
	}
	switch b[0] {
	case tagNull:
		return nil, 1, nil
	case tagFalse:
		return false, 1, nil
	case tagTrue:
		return true, 1, nil
	case tagNumber:
		if len(b) < 9 {
			return nil, 0, &eqlerr.CodecError{Detail: "truncated number"}
		}
		u := binary.BigEndian.Uint64(b[1:9])
		return fromOrderPreservingBits(u), 9, nil
	case tagString:
		s, n, err := decodeEscapedString(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return s, 1 + n, nil
	case tagArray:
		i := 1
		var arr value.Array
		for {
			if i >= len(b) {
				return nil, 0, &eqlerr.CodecError{Detail: "unterminated array"}
			}
			if b[i] == containerEnd {
				i++
				break
			}
			el, n, err := decodeValue(b[i:])
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, el)
			i += n
		}
		return arr, i, nil
	case tagObject:
		i := 1
		obj := value.Object{}
		for {
			if i >= len(b) {
				return nil, 0, &eqlerr.CodecError{Detail: "unterminated object"}
			}
			if b[i] == containerEnd {
				i++
				break
			}
			if b[i] != tagString {
				return nil, 0, &eqlerr.CodecError{Detail: "object key must be a string"}
			}
			k, n, err := decodeEscapedString(b[i+1:])
			if err != nil {
				return nil, 0, err
			}
			i += 1 + n
			fv, n2, err := decodeValue(b[i:])
			if err != nil {
				return nil, 0, err
			}
			obj[k] = fv
			i += n2
		}
		return obj, i, nil
	default:
		return nil, 0, &eqlerr.CodecError{Detail: "unknown tag byte"}
	}
}

// decodeEscapedString reads an escaped, 0x00 0x00-terminated string
// starting at b (b does not include the leading tagString byte) and
// returns it plus the number of bytes consumed, including the terminator.
func decodeEscapedString(b []byte) (string, int, error) {
	out := make([]byte, 0, len(b))
	i := 0
	for {
		if i >= len(b) {
			return "", 0, &eqlerr.CodecError{Detail: "unterminated string"}
		}
		if b[i] == 0x00 {
			if i+1 >= len(b) {
				return "", 0, &eqlerr.CodecError{Detail: "truncated string escape"}
			}
			if b[i+1] == 0x00 {
				return string(out), i + 2, nil
			}
			if b[i+1] == 0xFF {
				out = append(out, 0x00)
				i += 2
				continue
			}
			return "", 0, &eqlerr.CodecError{Detail: "invalid string escape sequence"}
		}
		out = append(out, b[i])
		i++
	}
}

// Compare returns -1, 0, or 1 comparing the canonical encodings of a and
// b, matching the ordering guarantees documented above.
func Compare(a, b value.Value) int {
	return compareBytes(Encode(a), Encode(b))
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
