package eqlscript

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/value"
)

// Parse parses a single textual operation (spec.md §6 EBNF) into a
// ScriptedOperation. Whitespace is insensitive around punctuation;
// keywords are case-insensitive; trailing input after the operation is
// an error.
func Parse(src string) (*ScriptedOperation, error) {
	p := &parser{src: src}
	p.skipSpace()
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errf("unexpected trailing input")
	}
	return op, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errf(format string, args ...any) error {
	line, col := 1, 1
	for i := 0; i < p.pos && i < len(p.src); i++ {
		if p.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &eqlerr.ParseError{Line: line, Col: col, Detail: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expectByte(b byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != b {
		return p.errf("expected %q", b)
	}
	p.pos++
	return nil
}

// matchKeyword consumes the given case-insensitive keyword if it occurs
// next (after whitespace), returning true and advancing, or false and
// leaving pos unchanged.
func (p *parser) matchKeyword(kw string) bool {
	save := p.pos
	p.skipSpace()
	if p.pos+len(kw) > len(p.src) {
		p.pos = save
		return false
	}
	if !strings.EqualFold(p.src[p.pos:p.pos+len(kw)], kw) {
		p.pos = save
		return false
	}
	// Ensure the keyword isn't a prefix of a longer identifier.
	end := p.pos + len(kw)
	if end < len(p.src) && isIdentByte(p.src[end]) {
		p.pos = save
		return false
	}
	p.pos = end
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parseIdent reads a bare [A-Za-z0-9_]+ identifier.
func (p *parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && isIdentByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("expected identifier")
	}
	return p.src[start:p.pos], nil
}

// parseQuotedString parses a "…" string literal with \\, \", \n escapes.
func (p *parser) parseQuotedString() (string, error) {
	p.skipSpace()
	if p.peek() != '"' {
		return "", p.errf(`expected '"'`)
	}
	p.pos++
	var sb strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errf("unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return sb.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.errf("unterminated escape")
			}
			switch p.src[p.pos] {
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			default:
				return "", p.errf("unknown escape \\%c", p.src[p.pos])
			}
			p.pos++
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
}

// parseName parses a "name" per the grammar: either a quoted string or a
// bare identifier (case-insensitive keyword position notwithstanding).
func (p *parser) parseName() (string, error) {
	p.skipSpace()
	if p.peek() == '"' {
		return p.parseQuotedString()
	}
	return p.parseIdent()
}

// parseRawString parses an n-hash raw string: #…#"…"#…# where the
// leading and trailing hash runs have matching counts, and the content
// is taken verbatim (no escape processing) up to the closing `"` +
// matching hashes.
func (p *parser) parseRawString() (string, error) {
	p.skipSpace()
	start := p.pos
	hashes := 0
	for p.pos < len(p.src) && p.src[p.pos] == '#' {
		hashes++
		p.pos++
	}
	if p.peek() != '"' {
		p.pos = start
		return "", p.errf(`expected raw string opening '"' after %d '#'`, hashes)
	}
	p.pos++
	contentStart := p.pos
	closing := "\"" + strings.Repeat("#", hashes)
	idx := strings.Index(p.src[p.pos:], closing)
	if idx < 0 {
		return "", p.errf("unterminated raw string")
	}
	content := p.src[contentStart : contentStart+idx]
	p.pos = contentStart + idx + len(closing)
	return content, nil
}

// parseJSONValue parses a JSON-compatible literal: null, bool, number,
// string, array, object.
func (p *parser) parseJSONValue() (value.Value, error) {
	p.skipSpace()
	switch {
	case p.matchKeyword("null"):
		return nil, nil
	case p.matchKeyword("true"):
		return true, nil
	case p.matchKeyword("false"):
		return false, nil
	case p.peek() == '"':
		return p.parseQuotedString()
	case p.peek() == '[':
		return p.parseJSONArray()
	case p.peek() == '{':
		return p.parseJSONObject()
	default:
		return p.parseJSONNumber()
	}
}

func (p *parser) parseJSONNumber() (value.Value, error) {
	p.skipSpace()
	start := p.pos
	if p.peek() == '-' || p.peek() == '+' {
		p.pos++
	}
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.' || p.src[p.pos] == 'e' || p.src[p.pos] == 'E' || p.src[p.pos] == '+' || p.src[p.pos] == '-') {
		p.pos++
	}
	if p.pos == start {
		return nil, p.errf("expected value")
	}
	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return nil, p.errf("invalid number %q", p.src[start:p.pos])
	}
	return f, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p *parser) parseJSONArray() (value.Array, error) {
	if err := p.expectByte('['); err != nil {
		return nil, err
	}
	var out value.Array
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return out, nil
	}
	for {
		v, err := p.parseJSONValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectByte(']'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) parseJSONObject() (value.Object, error) {
	if err := p.expectByte('{'); err != nil {
		return nil, err
	}
	out := value.Object{}
	p.skipSpace()
	if p.peek() == '}' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		key, err := p.parseQuotedString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(':'); err != nil {
			return nil, err
		}
		v, err := p.parseJSONValue()
		if err != nil {
			return nil, err
		}
		out[key] = v
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectByte('}'); err != nil {
		return nil, err
	}
	return out, nil
}

// parseStringArray parses "[" [name {"," name}] "]".
func (p *parser) parseStringArray() ([]string, error) {
	if err := p.expectByte('['); err != nil {
		return nil, err
	}
	var out []string
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return out, nil
	}
	for {
		p.skipSpace()
		n, err := p.parseName()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectByte(']'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) parseOp() (*ScriptedOperation, error) {
	switch {
	case p.matchKeyword("scan"):
		return p.parseScan()
	case p.matchKeyword("key_lookup"):
		return p.parseKeyLookup()
	case p.matchKeyword("extract"):
		return p.parseExtract()
	case p.matchKeyword("augment"):
		return p.parseAugment()
	case p.matchKeyword("index_lookup"):
		return p.parseIndexLookup()
	case p.matchKeyword("nested_loops"):
		return p.parseNestedLoops()
	case p.matchKeyword("hash_lookup"):
		return p.parseHashLookup()
	case p.matchKeyword("merge"):
		return p.parseMerge()
	case p.matchKeyword("map"):
		return p.parseMap()
	case p.matchKeyword("reduce"):
		return p.parseReduce()
	default:
		return nil, p.errf("unknown operation at %q", previewAt(p.src, p.pos))
	}
}

func previewAt(s string, pos int) string {
	end := pos + 24
	if end > len(s) {
		end = len(s)
	}
	return strings.TrimFunc(s[pos:end], unicode.IsSpace)
}

func (p *parser) parseScan() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindScan, ScanName: name}, nil
}

func (p *parser) parseKeyLookup() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	key, err := p.parseJSONValue()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindKeyLookup, LookupName: name, LookupKey: key}, nil
}

func (p *parser) parseExtract() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	names, err := p.parseStringArray()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	child, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindExtract, ExtractNames: names, ExtractChild: child}, nil
}

func (p *parser) parseAugment() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	v, err := p.parseJSONValue()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	child, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindAugment, AugmentValue: v, AugmentChild: child}, nil
}

func (p *parser) parseIndexLookup() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	idx, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	values, err := p.parseJSONArray()
	if err != nil {
		return nil, err
	}
	var outKeys []string
	p.skipSpace()
	if p.peek() == ',' {
		p.pos++
		outKeys, err = p.parseStringArray()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{
		Kind: KindIndexLookup, IxName: name, IxIndex: idx,
		IxValues: []value.Value(values), IxOutKeys: outKeys,
	}, nil
}

func (p *parser) parseNestedLoops() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	first, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	script, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindNestedLoops, NLFirst: first, NLScript: script}, nil
}

// ParseRecordExtract parses src as a standalone record-extract
// expression (the "extract" production of spec.md §6's grammar), used
// by the scripting bridge to compile a hash_join/merge key source
// supplied dynamically from within a script.
func ParseRecordExtract(src string) (ScriptedExtract, error) {
	p := &parser{src: src}
	e, err := p.parseRecordExtract()
	if err != nil {
		return ScriptedExtract{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return ScriptedExtract{}, p.errf("unexpected trailing input")
	}
	return e, nil
}

func (p *parser) parseRecordExtract() (ScriptedExtract, error) {
	switch {
	case p.matchKeyword("key"):
		return ScriptedExtract{Kind: ExtractKindKey}, nil
	case p.matchKeyword("value"):
		return ScriptedExtract{Kind: ExtractKindValue}, nil
	case p.matchKeyword("pointer"):
		if err := p.expectByte('('); err != nil {
			return ScriptedExtract{}, err
		}
		s, err := p.parseQuotedString()
		if err != nil {
			return ScriptedExtract{}, err
		}
		if err := p.expectByte(')'); err != nil {
			return ScriptedExtract{}, err
		}
		return ScriptedExtract{Kind: ExtractKindPointer, Pointer: s}, nil
	case p.matchKeyword("script"):
		if err := p.expectByte('('); err != nil {
			return ScriptedExtract{}, err
		}
		s, err := p.parseQuotedString()
		if err != nil {
			return ScriptedExtract{}, err
		}
		if err := p.expectByte(')'); err != nil {
			return ScriptedExtract{}, err
		}
		return ScriptedExtract{Kind: ExtractKindScript, Script: s}, nil
	default:
		p.skipSpace()
		if p.peek() == '[' {
			p.pos++
			var parts []ScriptedExtract
			p.skipSpace()
			if p.peek() != ']' {
				for {
					e, err := p.parseRecordExtract()
					if err != nil {
						return ScriptedExtract{}, err
					}
					parts = append(parts, e)
					p.skipSpace()
					if p.peek() == ',' {
						p.pos++
						continue
					}
					break
				}
			}
			if err := p.expectByte(']'); err != nil {
				return ScriptedExtract{}, err
			}
			return ScriptedExtract{Kind: ExtractKindMultiple, Parts: parts}, nil
		}
		return ScriptedExtract{}, p.errf("expected record-extract at %q", previewAt(p.src, p.pos))
	}
}

func (p *parser) parseHashLookup() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	build, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	buildHash, err := p.parseRecordExtract()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	probe, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	probeHash, err := p.parseRecordExtract()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	script, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{
		Kind: KindHashJoin, HJBuild: build, HJBuildHash: buildHash,
		HJProbe: probe, HJProbeHash: probeHash, HJJoinScript: script,
	}, nil
}

func (p *parser) parseMerge() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	first, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	firstKey, err := p.parseRecordExtract()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	second, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	secondKey, err := p.parseRecordExtract()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	script, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{
		Kind: KindMergeJoin, MJFirst: first, MJFirstKey: firstKey,
		MJSecond: second, MJSecondKey: secondKey, MJJoinScript: script,
	}, nil
}

func (p *parser) parseMap() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	child, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	script, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindMap, PrChild: child, PrProcessScript: script}, nil
}

func (p *parser) parseReduce() (*ScriptedOperation, error) {
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	child, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(','); err != nil {
		return nil, err
	}
	script, err := p.parseRawString()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &ScriptedOperation{Kind: KindReduce, PrChild: child, PrProcessScript: script}, nil
}
