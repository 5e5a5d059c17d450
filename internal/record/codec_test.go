package record

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHeap is a trivial in-memory StringReader for codec tests that don't
// need a real strings file.
type fakeHeap struct {
	records map[uint64][]byte
	next    uint64
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{records: make(map[uint64][]byte), next: 1}
}

func (h *fakeHeap) add(b []byte) uint64 {
	off := h.next
	h.records[off] = b
	h.next += uint64(len(b)) + 1
	return off
}

func (h *fakeHeap) Get(offset uint64, length uint32) ([]byte, error) {
	b, ok := h.records[offset]
	if !ok || uint32(len(b)) != length {
		return nil, fmt.Errorf("no such string at %d", offset)
	}
	return b, nil
}

func TestPackUnpack_NoStrings(t *testing.T) {
	s, err := NewSchema([]Column{
		{Name: "id", Type: INT32, Count: 1},
		{Name: "score", Type: FLOAT64, Count: 1},
	})
	require.NoError(t, err)

	in := Values{int32(42), float64(3.5)}
	buf := make([]byte, s.RowSize())
	pending, err := Pack(s, in, buf)
	require.NoError(t, err)
	assert.Empty(t, pending)

	out, err := Unpack(s, buf, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPackUnpack_WithString(t *testing.T) {
	s, err := NewSchema([]Column{
		{Name: "id", Type: INT32, Count: 1},
		{Name: "name", Type: STRING, Count: 1},
	})
	require.NoError(t, err)

	in := Values{int32(1), "Intel"}
	buf := make([]byte, s.RowSize())
	pending, err := Pack(s, in, buf)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	heap := newFakeHeap()
	for _, p := range pending {
		off := heap.add(p.Bytes)
		PatchStringOffset(buf, p.Offset, off)
	}

	out, err := Unpack(s, buf, heap)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPackUnpack_EmptyString(t *testing.T) {
	s, err := NewSchema([]Column{{Name: "name", Type: STRING, Count: 1}})
	require.NoError(t, err)

	buf := make([]byte, s.RowSize())
	pending, err := Pack(s, Values{""}, buf)
	require.NoError(t, err)
	assert.Empty(t, pending)

	out, err := Unpack(s, buf, nil)
	require.NoError(t, err)
	assert.Equal(t, Values{""}, out)
}

func TestPackUnpack_Array(t *testing.T) {
	s, err := NewSchema([]Column{{Name: "tags", Type: INT32, Count: 3}})
	require.NoError(t, err)

	buf := make([]byte, s.RowSize())
	_, err = Pack(s, Values{[]int32{1, 2}}, buf)
	require.NoError(t, err)

	out, err := Unpack(s, buf, nil)
	require.NoError(t, err)
	assert.Equal(t, Values{[]int32{1, 2, 0}}, out)
}

func TestPack_IntOutOfRange(t *testing.T) {
	s, err := NewSchema([]Column{{Name: "v", Type: INT8, Count: 1}})
	require.NoError(t, err)

	buf := make([]byte, s.RowSize())
	_, err = Pack(s, Values{int64(1000)}, buf)
	require.Error(t, err)
}

func TestPack_WrongRowSize(t *testing.T) {
	s, err := NewSchema([]Column{{Name: "v", Type: INT32, Count: 1}})
	require.NoError(t, err)

	_, err = Pack(s, Values{int32(1)}, make([]byte, 3))
	require.ErrorIs(t, err, ErrRowSize)
}
