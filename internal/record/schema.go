// Package record implements the column schema: parsing, canonical textual
// form, and the derived on-disk / padded layout tables used by the storage
// engine to pack and unpack rows.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ColumnType is a primitive column type. STRING is variable length; every
// other type has a fixed disk size.
type ColumnType uint8

const (
	CHAR ColumnType = iota
	INT8
	INT16
	INT32
	INT64
	FLOAT32
	FLOAT64
	STRING
)

// stringSlotSize is the on-disk size of a STRING column: a 4-byte length
// followed by an 8-byte offset into the strings file.
const stringSlotSize = 12

func (t ColumnType) String() string {
	switch t {
	case CHAR:
		return "CHAR"
	case INT8:
		return "INT8"
	case INT16:
		return "INT16"
	case INT32:
		return "INT32"
	case INT64:
		return "INT64"
	case FLOAT32:
		return "FLOAT32"
	case FLOAT64:
		return "FLOAT64"
	case STRING:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// diskSize returns the per-element on-disk size of t, not multiplied by a
// column's repetition count.
func (t ColumnType) diskSize() int {
	switch t {
	case CHAR, INT8:
		return 1
	case INT16:
		return 2
	case INT32, FLOAT32:
		return 4
	case INT64, FLOAT64:
		return 8
	case STRING:
		return stringSlotSize
	default:
		return 0
	}
}

// alignment returns the natural alignment requirement of t. The caller caps
// the effective alignment at 8.
func (t ColumnType) alignment() int {
	switch t {
	case CHAR, INT8:
		return 1
	case INT16:
		return 2
	case INT32, FLOAT32:
		return 4
	case INT64, FLOAT64:
		return 8
	case STRING:
		// the host's native string representation aligns like a pointer pair
		return 8
	default:
		return 1
	}
}

func parseColumnType(s string) (ColumnType, error) {
	switch s {
	case "CHAR":
		return CHAR, nil
	case "INT8":
		return INT8, nil
	case "INT16":
		return INT16, nil
	case "INT32":
		return INT32, nil
	case "INT64":
		return INT64, nil
	case "FLOAT32":
		return FLOAT32, nil
	case "FLOAT64":
		return FLOAT64, nil
	case "STRING":
		return STRING, nil
	default:
		return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidSchema, s)
	}
}

// Column is a named primitive type with a positive repetition count.
type Column struct {
	Name  string
	Type  ColumnType
	Count int
}

// ErrInvalidSchema is returned for malformed schema text, an empty or
// duplicate column name, or a non-positive count.
var ErrInvalidSchema = errors.New("record: invalid schema")

// Padding describes a gap in the padded (in-memory) row layout.
type Padding struct {
	Offset int
	Size   int
}

// Schema is an ordered sequence of columns together with the derived tables
// spec.md §3 requires: per-column disk size, per-column alignment, padding
// runs, string-slot offsets, total row size, and a has-string flag.
type Schema struct {
	columns []Column

	rowSize       int
	diskSizes     []int
	offsets       []int // on-disk byte offset of each column
	paddings      []Padding
	paddedSize    int
	stringOffsets []int // on-disk byte offsets of STRING slots, in column order
	hasString     bool
}

// NewSchema builds a Schema from an ordered column list, validating and
// computing all derived views the same way AddColumn would, one at a time.
func NewSchema(columns []Column) (*Schema, error) {
	s := &Schema{}
	for _, c := range columns {
		if err := s.AddColumn(c.Name, c.Type, c.Count); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddColumn appends a new column to the schema, on the right of the existing
// ones, recomputing every derived view.
func (s *Schema) AddColumn(name string, typ ColumnType, count int) error {
	if name == "" {
		return fmt.Errorf("%w: column name must not be empty", ErrInvalidSchema)
	}
	if count < 1 {
		return fmt.Errorf("%w: column count must be greater than 0", ErrInvalidSchema)
	}
	for _, c := range s.columns {
		if c.Name == name {
			return fmt.Errorf("%w: column %q already exists", ErrInvalidSchema, name)
		}
	}
	s.columns = append(s.columns, Column{Name: name, Type: typ, Count: count})
	s.recompute()
	return nil
}

// recompute rebuilds every derived view from s.columns. Grounded on the
// padding algorithm of original_source/src/vx_database.cpp
// Schema::calculate_paddings, translated to Go and extended to also track
// on-disk offsets and string slot positions (spec.md §4.1).
func (s *Schema) recompute() {
	s.diskSizes = make([]int, len(s.columns))
	s.offsets = make([]int, len(s.columns))
	s.paddings = nil
	s.stringOffsets = nil
	s.hasString = false

	rowSize := 0
	currentOffset := 0
	maxAlignment := 1

	for i, c := range s.columns {
		diskSize := c.Type.diskSize() * c.Count
		s.diskSizes[i] = diskSize
		s.offsets[i] = rowSize
		rowSize += diskSize

		if c.Type == STRING {
			s.hasString = true
			for k := 0; k < c.Count; k++ {
				s.stringOffsets = append(s.stringOffsets, s.offsets[i]+k*stringSlotSize)
			}
		}

		alignmentRequirement := c.Type.alignment()
		alignment := alignmentRequirement
		if alignment > 8 {
			alignment = 8
		}
		if alignment > maxAlignment {
			maxAlignment = alignment
		}

		alignedOffset := (currentOffset + alignment - 1) / alignment * alignment
		if alignedOffset > currentOffset {
			s.paddings = append(s.paddings, Padding{Offset: currentOffset, Size: alignedOffset - currentOffset})
		}
		currentOffset = alignedOffset + alignmentRequirement*c.Count
	}

	structSize := (currentOffset + maxAlignment - 1) / maxAlignment * maxAlignment
	if structSize > currentOffset {
		s.paddings = append(s.paddings, Padding{Offset: currentOffset, Size: structSize - currentOffset})
	}

	s.rowSize = rowSize
	s.paddedSize = structSize
}

// Columns returns a copy of the schema's column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// RowSize returns the total packed (on-disk) row size in bytes.
func (s *Schema) RowSize() int { return s.rowSize }

// PaddedSize returns the size of the padded (in-memory) layout, in which
// each element advances the offset by its alignment. Without STRING columns
// this is RowSize plus the padding-run sizes; a STRING slot counts 8 bytes
// here against 12 bytes on disk.
func (s *Schema) PaddedSize() int { return s.paddedSize }

// DiskSizes returns the per-column on-disk size (size x count), in column
// order.
func (s *Schema) DiskSizes() []int {
	out := make([]int, len(s.diskSizes))
	copy(out, s.diskSizes)
	return out
}

// Offsets returns the on-disk byte offset of each column, in column order.
func (s *Schema) Offsets() []int {
	out := make([]int, len(s.offsets))
	copy(out, s.offsets)
	return out
}

// Paddings returns the padding runs of the in-memory padded layout.
func (s *Schema) Paddings() []Padding {
	out := make([]Padding, len(s.paddings))
	copy(out, s.paddings)
	return out
}

// StringOffsets returns the on-disk byte offsets of STRING slots, in column
// order.
func (s *Schema) StringOffsets() []int {
	out := make([]int, len(s.stringOffsets))
	copy(out, s.stringOffsets)
	return out
}

// HasString reports whether any column is a STRING.
func (s *Schema) HasString() bool { return s.hasString }

// Equal reports whether two schemas have identical columns in the same
// order — used to validate a supplied schema against metadata read from an
// existing table file (spec.md §4.4, SchemaMismatch).
func (s *Schema) Equal(other *Schema) bool {
	if len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		a, b := s.columns[i], other.columns[i]
		if a.Name != b.Name || a.Type != b.Type || a.Count != b.Count {
			return false
		}
	}
	return true
}

// String renders the canonical textual form: |name:TYPE[count]|...| with
// the [count] suffix omitted when count == 1.
func (s *Schema) String() string {
	var b strings.Builder
	b.WriteByte('|')
	for _, c := range s.columns {
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(c.Type.String())
		if c.Count > 1 {
			fmt.Fprintf(&b, "[%d]", c.Count)
		}
		b.WriteByte('|')
	}
	return b.String()
}

// Parse builds a Schema from its canonical textual form, as produced by
// String. Grounded on original_source/src/vx_database.cpp's Schema(const
// std::string&) constructor.
func Parse(text string) (*Schema, error) {
	s := &Schema{}

	beg, end := 0, 0
	for {
		i := strings.IndexByte(text[end:], '|')
		if i < 0 {
			break
		}
		beg = end + i + 1
		j := strings.IndexByte(text[beg:], '|')
		if j < 0 {
			break
		}
		end = beg + j

		entry := text[beg:end]
		if entry == "" {
			continue
		}

		colon := strings.IndexByte(entry, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("%w: malformed column entry %q", ErrInvalidSchema, entry)
		}
		name := entry[:colon]
		rest := entry[colon+1:]

		typeName := rest
		count := 1
		if lb := strings.IndexByte(rest, '['); lb >= 0 {
			rb := strings.IndexByte(rest[lb:], ']')
			if rb < 0 {
				return nil, fmt.Errorf("%w: unterminated count in %q", ErrInvalidSchema, entry)
			}
			typeName = rest[:lb]
			countStr := rest[lb+1 : lb+rb]
			if countStr != "" {
				n, err := strconv.Atoi(countStr)
				if err != nil {
					return nil, fmt.Errorf("%w: bad column count in %q", ErrInvalidSchema, entry)
				}
				count = n
			}
		}

		typ, err := parseColumnType(typeName)
		if err != nil {
			return nil, err
		}
		if err := s.AddColumn(name, typ, count); err != nil {
			return nil, err
		}
	}
	return s, nil
}
