package jsonval

import (
	"strconv"
	"strings"
)

// Parse parses a raw JSON text buffer into a generic value tree.
//
// The result is one of: map[string]any, []any, string, float64, bool or nil.
// Malformed input degrades to a partial value rather than an error; a buffer
// that yields nothing useful parses to nil.
func Parse(src string) any {
	p := &parser{src: src}
	p.skipSpace()
	return p.parseValue()
}

// parser holds the scan state: the source buffer and an explicit cursor.
type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

// peek returns the byte at the cursor without consuming it.
func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

// parseValue dispatches on the first non-space byte.
// value := object | array | string | number | "true" | "false" | "null"
func (p *parser) parseValue() any {
	p.skipSpace()
	if p.eof() {
		return nil
	}

	switch c := p.peek(); {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		return p.parseString()
	case c == 't' || c == 'f' || c == 'n':
		return p.parseLiteral()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		// Unexpected byte: consume it so enclosing loops make progress.
		p.pos++
		return nil
	}
}

// parseObject parses `{` followed by zero or more `"key": value` pairs.
// Keys are always parsed as strings; a missing colon or terminator ends the
// object with whatever pairs were collected.
func (p *parser) parseObject() map[string]any {
	obj := make(map[string]any)
	p.pos++ // consume '{'

	for {
		p.skipSpace()
		if p.eof() {
			return obj
		}
		if p.peek() == '}' {
			p.pos++
			return obj
		}
		if p.peek() != '"' {
			return obj
		}

		key := p.parseString()
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return obj
		}
		p.pos++ // consume ':'

		obj[key] = p.parseValue()

		p.skipSpace()
		if p.eof() {
			return obj
		}
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj
		default:
			return obj
		}
	}
}

// parseArray parses `[` followed by zero or more comma-separated values.
func (p *parser) parseArray() []any {
	arr := make([]any, 0)
	p.pos++ // consume '['

	for {
		p.skipSpace()
		if p.eof() {
			return arr
		}
		if p.peek() == ']' {
			p.pos++
			return arr
		}

		arr = append(arr, p.parseValue())

		p.skipSpace()
		if p.eof() {
			return arr
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr
		default:
			return arr
		}
	}
}

// parseString parses a double-quoted string with the standard escapes and
// \uXXXX BMP code-point escapes. An unterminated string or malformed escape
// yields the characters decoded so far.
func (p *parser) parseString() string {
	var b strings.Builder
	p.pos++ // consume opening '"'

	for !p.eof() {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String()
		case '\\':
			p.pos++
			if p.eof() {
				return b.String()
			}
			switch esc := p.src[p.pos]; esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
				p.pos++
			case 'n':
				b.WriteByte('\n')
				p.pos++
			case 'r':
				b.WriteByte('\r')
				p.pos++
			case 't':
				b.WriteByte('\t')
				p.pos++
			case 'u':
				p.pos++
				if p.pos+4 <= len(p.src) {
					if code, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32); err == nil {
						b.WriteRune(rune(code))
						p.pos += 4
						continue
					}
				}
				// Malformed \u escape: keep the 'u' literally.
				b.WriteByte('u')
			default:
				// Unknown escape: keep the escaped character as-is.
				b.WriteByte(esc)
				p.pos++
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return b.String()
}

// parseNumber scans the maximal run of number characters and parses it as a
// float. All numbers are floating-point; an unparseable run yields 0.
func (p *parser) parseNumber() float64 {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}

	f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0
	}
	return f
}

// parseLiteral parses true, false or null. Anything else starting with the
// same byte consumes one byte and yields nil so enclosing loops progress.
func (p *parser) parseLiteral() any {
	switch {
	case strings.HasPrefix(p.src[p.pos:], "true"):
		p.pos += 4
		return true
	case strings.HasPrefix(p.src[p.pos:], "false"):
		p.pos += 5
		return false
	case strings.HasPrefix(p.src[p.pos:], "null"):
		p.pos += 4
		return nil
	default:
		p.pos++
		return nil
	}
}

// AsObject extracts a JSON object from a parsed value.
func AsObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// AsArray extracts a JSON array from a parsed value.
func AsArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// AsString extracts a string from a parsed value.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsNumber extracts a number from a parsed value.
func AsNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// AsInt extracts a number from a parsed value and truncates it to int.
// The protocol carries indices and ids as JSON numbers, which the parser
// always represents as float64.
func AsInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
