package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	text := "|id:INT32|name:STRING|price:FLOAT32|"
	s, err := Parse(text)
	require.NoError(t, err)

	assert.Equal(t, text, s.String())
	assert.Equal(t, 4+12+4, s.RowSize())
	assert.Equal(t, []int{4}, s.StringOffsets())
}

func TestParse_OmitsCountOne(t *testing.T) {
	s, err := Parse("|a:INT8|b:INT16[1]|")
	require.NoError(t, err)
	assert.Equal(t, "|a:INT8|b:INT16|", s.String())
}

func TestParse_Array(t *testing.T) {
	s, err := Parse("|tags:INT32[3]|")
	require.NoError(t, err)
	assert.Equal(t, "|tags:INT32[3]|", s.String())
	assert.Equal(t, 12, s.RowSize())
}

func TestAddColumn_Errors(t *testing.T) {
	s := &Schema{}
	require.Error(t, s.AddColumn("", INT32, 1))
	require.NoError(t, s.AddColumn("a", INT32, 1))
	require.Error(t, s.AddColumn("a", INT32, 1))
	require.Error(t, s.AddColumn("b", INT32, 0))
}

func TestEqual(t *testing.T) {
	a, err := Parse("|id:INT32|name:STRING|")
	require.NoError(t, err)
	b, err := Parse("|id:INT32|name:STRING|")
	require.NoError(t, err)
	c, err := Parse("|id:INT32|name:INT32|")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPaddingAlgorithm(t *testing.T) {
	// CHAR (1 byte) then INT32 (4-byte aligned) requires 3 bytes of padding,
	// then struct padded up to 4-byte max alignment at the end.
	s, err := NewSchema([]Column{
		{Name: "flag", Type: CHAR, Count: 1},
		{Name: "val", Type: INT32, Count: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, s.RowSize()) // 1 + 4, tightly packed on disk
	assert.Equal(t, 8, s.PaddedSize())
	require.Len(t, s.Paddings(), 1)
	assert.Equal(t, Padding{Offset: 1, Size: 3}, s.Paddings()[0])
}

func TestParse_InvalidSchema(t *testing.T) {
	_, err := Parse("|name:BOGUS|")
	require.ErrorIs(t, err, ErrInvalidSchema)

	_, err = Parse("|:INT32|")
	require.ErrorIs(t, err, ErrInvalidSchema)
}
