// Package query implements the minimal textual insertion grammar of
// spec.md §4.5: a single row, or a parenthesized, comma-separated list of
// rows, each row a comma-separated list of values typed against a
// record.Schema.
package query

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/vexarch/framedb/internal/record"
)

// ErrInvalidQuery is returned for any syntax error, arity mismatch, or
// out-of-range value encountered while parsing an insertion query.
var ErrInvalidQuery = errors.New("query: invalid query")

// Parse parses text against schema and returns one record.Values per row.
//
//	insert := row | "(" row ")" ("," "(" row ")")*
//	row    := value ("," value)*
//	value  := number | char_lit | string_lit | array
func Parse(text string, schema *record.Schema) ([]record.Values, error) {
	rows, err := parse(text, schema)
	if err != nil {
		slog.Debug("query: parse failed", "text", text, "err", err)
	}
	return rows, err
}

func parse(text string, schema *record.Schema) ([]record.Values, error) {
	p := &parser{s: text}
	p.skipSpace()
	if p.peek() == '(' {
		var rows []record.Values
		for {
			if err := p.expect('('); err != nil {
				return nil, err
			}
			row, err := p.parseRow(schema)
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
			rows = append(rows, row)

			p.skipSpace()
			if p.peek() == ',' {
				p.i++
				p.skipSpace()
				continue
			}
			break
		}
		p.skipSpace()
		if !p.atEnd() {
			return nil, fmt.Errorf("%w: unexpected trailing input %q", ErrInvalidQuery, p.rest())
		}
		return rows, nil
	}

	row, err := p.parseRow(schema)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, fmt.Errorf("%w: unexpected trailing input %q", ErrInvalidQuery, p.rest())
	}
	return []record.Values{row}, nil
}

type parser struct {
	s string
	i int
}

func (p *parser) atEnd() bool  { return p.i >= len(p.s) }
func (p *parser) rest() string { return p.s[p.i:] }

func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.s[p.i]
}

func (p *parser) skipSpace() {
	for !p.atEnd() && (p.s[p.i] == ' ' || p.s[p.i] == '\t' || p.s[p.i] == '\n' || p.s[p.i] == '\r') {
		p.i++
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.atEnd() || p.s[p.i] != c {
		return fmt.Errorf("%w: expected %q at position %d", ErrInvalidQuery, c, p.i)
	}
	p.i++
	return nil
}

func (p *parser) parseRow(schema *record.Schema) (record.Values, error) {
	cols := schema.Columns()
	values := make(record.Values, len(cols))
	for i, c := range cols {
		p.skipSpace()
		v, err := p.parseValue(c)
		if err != nil {
			return nil, err
		}
		values[i] = v
		if i < len(cols)-1 {
			if err := p.expect(','); err != nil {
				return nil, fmt.Errorf("%w: row has fewer values than the %d columns of the schema", ErrInvalidQuery, len(cols))
			}
		}
	}
	return values, nil
}

func (p *parser) parseValue(col record.Column) (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '\'' || c == '"':
		return p.parseQuoted(col)
	case c == '{' || c == '[':
		return p.parseArray(col)
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber(col)
	default:
		return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidQuery, c, p.i)
	}
}

// parseQuoted reads a char_lit or string_lit: bytes between a matching pair
// of the same quote character, preserved exactly with no escape processing.
func (p *parser) parseQuoted(col record.Column) (any, error) {
	quote := p.s[p.i]
	p.i++
	start := p.i
	for !p.atEnd() && p.s[p.i] != quote {
		p.i++
	}
	if p.atEnd() {
		return nil, fmt.Errorf("%w: unterminated %q literal", ErrInvalidQuery, quote)
	}
	lit := p.s[start:p.i]
	p.i++ // closing quote

	if col.Type == record.STRING {
		return lit, nil
	}
	if col.Type == record.CHAR {
		if len(lit) != 1 {
			return nil, fmt.Errorf("%w: CHAR literal %q must be exactly one byte", ErrInvalidQuery, lit)
		}
		return lit[0], nil
	}
	return nil, fmt.Errorf("%w: quoted literal not valid for column %q of type %s", ErrInvalidQuery, col.Name, col.Type)
}

// parseNumber reads an optionally-signed decimal literal and converts it to
// the column's Go type, range-checking integers.
func (p *parser) parseNumber(col record.Column) (any, error) {
	start := p.i
	if p.peek() == '-' || p.peek() == '+' {
		p.i++
	}
	for !p.atEnd() && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
		p.i++
	}
	isFloat := false
	if !p.atEnd() && p.s[p.i] == '.' {
		isFloat = true
		p.i++
		for !p.atEnd() && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
			p.i++
		}
	}
	lit := p.s[start:p.i]
	if lit == "" || lit == "-" || lit == "+" {
		return nil, fmt.Errorf("%w: malformed number at position %d", ErrInvalidQuery, start)
	}

	switch col.Type {
	case record.FLOAT32:
		f, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return float32(f), nil
	case record.FLOAT64:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return f, nil
	case record.CHAR, record.INT8, record.INT16, record.INT32, record.INT64:
		if isFloat {
			return nil, fmt.Errorf("%w: decimal literal %q is not valid for integer column %q", ErrInvalidQuery, lit, col.Name)
		}
		return parseRangedInt(lit, col)
	default:
		return nil, fmt.Errorf("%w: numeric literal not valid for column %q of type %s", ErrInvalidQuery, col.Name, col.Type)
	}
}

func parseRangedInt(lit string, col record.Column) (any, error) {
	x, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	var lo, hi int64
	switch col.Type {
	case record.CHAR, record.INT8:
		lo, hi = 0, math.MaxUint8
		if col.Type == record.INT8 {
			lo, hi = math.MinInt8, math.MaxInt8
		}
	case record.INT16:
		lo, hi = math.MinInt16, math.MaxInt16
	case record.INT32:
		lo, hi = math.MinInt32, math.MaxInt32
	case record.INT64:
		lo, hi = math.MinInt64, math.MaxInt64
	}
	if x < lo || x > hi {
		return nil, fmt.Errorf("%w: value %d out of range for column %q (%s)", ErrInvalidQuery, x, col.Name, col.Type)
	}
	switch col.Type {
	case record.CHAR:
		return byte(x), nil
	case record.INT8:
		return int8(x), nil
	case record.INT16:
		return int16(x), nil
	case record.INT32:
		return int32(x), nil
	default:
		return x, nil
	}
}

// parseArray reads an array literal: "{" or "[" followed by up to
// col.Count comma-separated values of the column's element type, closed by
// the matching bracket kind, then zero-pads any trailing elements.
func (p *parser) parseArray(col record.Column) (any, error) {
	open := p.s[p.i]
	var closeBr byte
	switch open {
	case '{':
		closeBr = '}'
	case '[':
		closeBr = ']'
	}
	if col.Count <= 1 {
		return nil, fmt.Errorf("%w: column %q is not an array column", ErrInvalidQuery, col.Name)
	}
	p.i++
	p.skipSpace()

	elem := record.Column{Name: col.Name, Type: col.Type, Count: 1}
	var items []any
	if p.peek() != closeBr {
		for {
			p.skipSpace()
			v, err := p.parseScalarForArray(elem)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			p.skipSpace()
			if p.peek() == ',' {
				p.i++
				continue
			}
			break
		}
	}
	if err := p.expect(closeBr); err != nil {
		return nil, fmt.Errorf("%w: array opened with %q must close with %q", ErrInvalidQuery, open, closeBr)
	}
	if len(items) > col.Count {
		return nil, fmt.Errorf("%w: array has %d elements, column %q holds at most %d", ErrInvalidQuery, len(items), col.Name, col.Count)
	}
	return buildArray(col.Type, items, col.Count)
}

func (p *parser) parseScalarForArray(elem record.Column) (any, error) {
	switch c := p.peek(); {
	case c == '\'' || c == '"':
		return p.parseQuoted(elem)
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.parseNumber(elem)
	default:
		return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidQuery, c, p.i)
	}
}

func buildArray(t record.ColumnType, items []any, count int) (any, error) {
	switch t {
	case record.CHAR:
		out := make([]byte, count)
		for i, v := range items {
			out[i] = v.(byte)
		}
		return out, nil
	case record.INT8:
		out := make([]int8, count)
		for i, v := range items {
			out[i] = v.(int8)
		}
		return out, nil
	case record.INT16:
		out := make([]int16, count)
		for i, v := range items {
			out[i] = v.(int16)
		}
		return out, nil
	case record.INT32:
		out := make([]int32, count)
		for i, v := range items {
			out[i] = v.(int32)
		}
		return out, nil
	case record.INT64:
		out := make([]int64, count)
		for i, v := range items {
			out[i] = v.(int64)
		}
		return out, nil
	case record.FLOAT32:
		out := make([]float32, count)
		for i, v := range items {
			out[i] = v.(float32)
		}
		return out, nil
	case record.FLOAT64:
		out := make([]float64, count)
		for i, v := range items {
			out[i] = v.(float64)
		}
		return out, nil
	case record.STRING:
		out := make([]string, count)
		for i, v := range items {
			out[i] = v.(string)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported array element type %s", ErrInvalidQuery, t)
	}
}
