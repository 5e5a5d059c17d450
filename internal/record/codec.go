package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Values is the padded (host-native) representation of one row: one Go
// value per column, in column order. A column with Count == 1 holds a
// scalar (byte, int8, int16, int32, int64, float32, float64, or string); a
// column with Count > 1 holds the matching slice type.
//
// Go has no portable way to compute the natural field offsets of an
// arbitrary caller-defined struct the way the original pack_struct /
// unpack_struct helpers do over raw byte offsets, so Values plays that role
// instead — the same role the teacher's EncodeRow/DecodeRow(schema, []any)
// plays in internal/storage/rowcodec.go. The padding/alignment bookkeeping
// in Schema is still computed in full; it simply isn't used to lay out a Go
// struct.
type Values []any

// StringReader fetches a previously stored string's bytes from the strings
// heap. Implemented by *storage.StringsHeap; declared here to avoid a
// storage -> record -> storage import cycle.
type StringReader interface {
	Get(offset uint64, length uint32) ([]byte, error)
}

// PendingString is a string slot's raw bytes, discovered during Pack, that
// still needs a strings-heap offset written back into the packed row before
// it is persisted.
type PendingString struct {
	// Offset is the byte offset of this slot's length+offset field within
	// the packed row buffer.
	Offset int
	Bytes  []byte
}

// ErrRowSize is returned when a packed row buffer isn't exactly RowSize
// bytes, or a Values slice doesn't match the schema's column count.
var ErrRowSize = fmt.Errorf("record: row size mismatch")

// Pack encodes values into dst (which must be exactly s.RowSize() bytes) in
// the tightly packed on-disk row layout of spec.md §3. For every STRING
// slot it writes the 4-byte length and leaves the 8-byte strings-file offset
// as zero; for every non-empty string it also returns a PendingString so the
// caller (the Table's insertion path) can write the bytes into the strings
// heap and patch the offset with PatchStringOffset. A slot whose length is 0
// is the empty string.
func Pack(s *Schema, values Values, dst []byte) ([]PendingString, error) {
	if len(dst) != s.rowSize {
		return nil, fmt.Errorf("%w: dst is %d bytes, want %d", ErrRowSize, len(dst), s.rowSize)
	}
	if len(values) != len(s.columns) {
		return nil, fmt.Errorf("%w: got %d values, want %d columns", ErrRowSize, len(values), len(s.columns))
	}

	var pending []PendingString
	for i, c := range s.columns {
		off := s.offsets[i]
		if c.Count == 1 && c.Type != STRING {
			if err := packScalar(c.Type, dst[off:off+c.Type.diskSize()], values[i]); err != nil {
				return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
			}
			continue
		}
		if c.Type == STRING {
			strs, err := asStringSlice(values[i], c.Count)
			if err != nil {
				return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
			}
			for k := 0; k < c.Count; k++ {
				slotOff := off + k*stringSlotSize
				b := []byte(strs[k])
				binary.LittleEndian.PutUint32(dst[slotOff:slotOff+4], uint32(len(b)))
				// offset field left zero; patched after heap insertion.
				if len(b) > 0 {
					pending = append(pending, PendingString{Offset: slotOff, Bytes: b})
				}
			}
			continue
		}
		// fixed-size array column
		if err := packArray(c.Type, dst[off:off+s.diskSizes[i]], values[i], c.Count); err != nil {
			return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
		}
	}
	return pending, nil
}

// PatchStringOffset writes the strings-heap byte offset for the string slot
// at byte offset slotOffset within a packed row buffer.
func PatchStringOffset(row []byte, slotOffset int, heapOffset uint64) {
	binary.LittleEndian.PutUint64(row[slotOffset+4:slotOffset+12], heapOffset)
}

// Unpack decodes a packed row buffer into Values, fetching string payloads
// from strs. strs may be nil if the schema has no STRING columns.
func Unpack(s *Schema, src []byte, strs StringReader) (Values, error) {
	if len(src) != s.rowSize {
		return nil, fmt.Errorf("%w: src is %d bytes, want %d", ErrRowSize, len(src), s.rowSize)
	}

	values := make(Values, len(s.columns))
	for i, c := range s.columns {
		off := s.offsets[i]
		if c.Count == 1 && c.Type != STRING {
			v, err := unpackScalar(c.Type, src[off:off+c.Type.diskSize()])
			if err != nil {
				return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
			}
			values[i] = v
			continue
		}
		if c.Type == STRING {
			out := make([]string, c.Count)
			for k := 0; k < c.Count; k++ {
				slotOff := off + k*stringSlotSize
				length := binary.LittleEndian.Uint32(src[slotOff : slotOff+4])
				ptr := binary.LittleEndian.Uint64(src[slotOff+4 : slotOff+12])
				if length == 0 {
					out[k] = ""
					continue
				}
				if strs == nil {
					return nil, fmt.Errorf("record: column %q: string slot set but no string reader supplied", c.Name)
				}
				b, err := strs.Get(ptr, length)
				if err != nil {
					return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
				}
				out[k] = string(b)
			}
			if c.Count == 1 {
				values[i] = out[0]
			} else {
				values[i] = out
			}
			continue
		}
		v, err := unpackArray(c.Type, src[off:off+s.diskSizes[i]], c.Count)
		if err != nil {
			return nil, fmt.Errorf("record: column %q: %w", c.Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func asStringSlice(v any, count int) ([]string, error) {
	var out []string
	switch x := v.(type) {
	case string:
		out = []string{x}
	case []string:
		out = x
	default:
		return nil, fmt.Errorf("expected string or []string, got %T", v)
	}
	if len(out) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(out), count)
	}
	padded := make([]string, count)
	copy(padded, out)
	return padded, nil
}

func packScalar(t ColumnType, dst []byte, v any) error {
	switch t {
	case CHAR:
		b, err := asByte(v)
		if err != nil {
			return err
		}
		dst[0] = b
	case INT8:
		x, err := asInt(v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		dst[0] = byte(int8(x))
	case INT16:
		x, err := asInt(v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(x)))
	case INT32:
		x, err := asInt(v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(x)))
	case INT64:
		x, err := asInt(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(x))
	case FLOAT32:
		x, err := asFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(x)))
	case FLOAT64:
		x, err := asFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(x))
	default:
		return fmt.Errorf("unsupported scalar type %s", t)
	}
	return nil
}

func unpackScalar(t ColumnType, src []byte) (any, error) {
	switch t {
	case CHAR:
		return src[0], nil
	case INT8:
		return int8(src[0]), nil
	case INT16:
		return int16(binary.LittleEndian.Uint16(src)), nil
	case INT32:
		return int32(binary.LittleEndian.Uint32(src)), nil
	case INT64:
		return int64(binary.LittleEndian.Uint64(src)), nil
	case FLOAT32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src)), nil
	case FLOAT64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %s", t)
	}
}

func packArray(t ColumnType, dst []byte, v any, count int) error {
	elemSize := t.diskSize()
	switch t {
	case CHAR:
		xs, err := asByteSlice(v, count)
		if err != nil {
			return err
		}
		copy(dst, xs)
	case INT8:
		xs, err := asInt8Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			dst[i] = byte(x)
		}
	case INT16:
		xs, err := asInt16Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			binary.LittleEndian.PutUint16(dst[i*elemSize:], uint16(x))
		}
	case INT32:
		xs, err := asInt32Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			binary.LittleEndian.PutUint32(dst[i*elemSize:], uint32(x))
		}
	case INT64:
		xs, err := asInt64Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			binary.LittleEndian.PutUint64(dst[i*elemSize:], uint64(x))
		}
	case FLOAT32:
		xs, err := asFloat32Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			binary.LittleEndian.PutUint32(dst[i*elemSize:], math.Float32bits(x))
		}
	case FLOAT64:
		xs, err := asFloat64Slice(v, count)
		if err != nil {
			return err
		}
		for i, x := range xs {
			binary.LittleEndian.PutUint64(dst[i*elemSize:], math.Float64bits(x))
		}
	default:
		return fmt.Errorf("unsupported array type %s", t)
	}
	return nil
}

func unpackArray(t ColumnType, src []byte, count int) (any, error) {
	elemSize := t.diskSize()
	switch t {
	case CHAR:
		out := make([]byte, count)
		copy(out, src)
		return out, nil
	case INT8:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(src[i])
		}
		return out, nil
	case INT16:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(src[i*elemSize:]))
		}
		return out, nil
	case INT32:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(src[i*elemSize:]))
		}
		return out, nil
	case INT64:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(src[i*elemSize:]))
		}
		return out, nil
	case FLOAT32:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*elemSize:]))
		}
		return out, nil
	case FLOAT64:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*elemSize:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported array type %s", t)
	}
}

func asByte(v any) (byte, error) {
	switch x := v.(type) {
	case byte:
		return x, nil
	case int:
		return byte(x), nil
	}
	return 0, fmt.Errorf("expected byte, got %T", v)
}

func asInt(v any, min, max int64) (int64, error) {
	var x int64
	switch t := v.(type) {
	case int:
		x = int64(t)
	case int8:
		x = int64(t)
	case int16:
		x = int64(t)
	case int32:
		x = int64(t)
	case int64:
		x = t
	case byte:
		x = int64(t)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	if x < min || x > max {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", x, min, max)
	}
	return x, nil
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expected float, got %T", v)
}

func asByteSlice(v any, count int) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		if len(x) > count {
			return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
		}
		out := make([]byte, count)
		copy(out, x)
		return out, nil
	case string:
		return asByteSlice([]byte(x), count)
	}
	return nil, fmt.Errorf("expected []byte, got %T", v)
}

func asInt8Slice(v any, count int) ([]int8, error) {
	x, ok := v.([]int8)
	if !ok {
		return nil, fmt.Errorf("expected []int8, got %T", v)
	}
	return padInt8(x, count)
}

func padInt8(x []int8, count int) ([]int8, error) {
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]int8, count)
	copy(out, x)
	return out, nil
}

func asInt16Slice(v any, count int) ([]int16, error) {
	x, ok := v.([]int16)
	if !ok {
		return nil, fmt.Errorf("expected []int16, got %T", v)
	}
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]int16, count)
	copy(out, x)
	return out, nil
}

func asInt32Slice(v any, count int) ([]int32, error) {
	x, ok := v.([]int32)
	if !ok {
		return nil, fmt.Errorf("expected []int32, got %T", v)
	}
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]int32, count)
	copy(out, x)
	return out, nil
}

func asInt64Slice(v any, count int) ([]int64, error) {
	x, ok := v.([]int64)
	if !ok {
		return nil, fmt.Errorf("expected []int64, got %T", v)
	}
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]int64, count)
	copy(out, x)
	return out, nil
}

func asFloat32Slice(v any, count int) ([]float32, error) {
	x, ok := v.([]float32)
	if !ok {
		return nil, fmt.Errorf("expected []float32, got %T", v)
	}
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]float32, count)
	copy(out, x)
	return out, nil
}

func asFloat64Slice(v any, count int) ([]float64, error) {
	x, ok := v.([]float64)
	if !ok {
		return nil, fmt.Errorf("expected []float64, got %T", v)
	}
	if len(x) > count {
		return nil, fmt.Errorf("%d values exceed column count %d", len(x), count)
	}
	out := make([]float64, count)
	copy(out, x)
	return out, nil
}
