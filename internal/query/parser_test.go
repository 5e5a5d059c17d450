package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexarch/framedb/internal/record"
)

func mustSchema(t *testing.T, text string) *record.Schema {
	s, err := record.Parse(text)
	require.NoError(t, err)
	return s
}

func TestParse_SingleRow(t *testing.T) {
	s := mustSchema(t, "|id:INT32|name:STRING|price:FLOAT32|")
	rows, err := Parse(`1, "Intel", 3.5`, s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, record.Values{int32(1), "Intel", float32(3.5)}, rows[0])
}

func TestParse_MultipleRows(t *testing.T) {
	s := mustSchema(t, "|id:INT32|name:STRING|")
	rows, err := Parse(`(1, "a"), (2, "b")`, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, record.Values{int32(1), "a"}, rows[0])
	assert.Equal(t, record.Values{int32(2), "b"}, rows[1])
}

func TestParse_CharLiteral(t *testing.T) {
	s := mustSchema(t, "|flag:CHAR|")
	rows, err := Parse(`'x'`, s)
	require.NoError(t, err)
	assert.Equal(t, record.Values{byte('x')}, rows[0])
}

func TestParse_ArrayBraceAndBracket(t *testing.T) {
	s := mustSchema(t, "|tags:INT32[3]|")

	rows, err := Parse(`{1, 2}`, s)
	require.NoError(t, err)
	assert.Equal(t, record.Values{[]int32{1, 2, 0}}, rows[0])

	rows, err = Parse(`[3, 4, 5]`, s)
	require.NoError(t, err)
	assert.Equal(t, record.Values{[]int32{3, 4, 5}}, rows[0])
}

func TestParse_ArrayMismatchedBracketsRejected(t *testing.T) {
	s := mustSchema(t, "|tags:INT32[3]|")
	_, err := Parse(`{1, 2]`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_ArrayTooLongRejected(t *testing.T) {
	s := mustSchema(t, "|tags:INT32[2]|")
	_, err := Parse(`{1, 2, 3}`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_IntOutOfRangeRejected(t *testing.T) {
	s := mustSchema(t, "|v:INT8|")
	_, err := Parse(`1000`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_DecimalForIntegerColumnRejected(t *testing.T) {
	s := mustSchema(t, "|v:INT32|")
	_, err := Parse(`1.5`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_ArityMismatchRejected(t *testing.T) {
	s := mustSchema(t, "|a:INT32|b:INT32|")
	_, err := Parse(`1`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParse_NegativeNumber(t *testing.T) {
	s := mustSchema(t, "|v:INT32|")
	rows, err := Parse(`-7`, s)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(-7)}, rows[0])
}

func TestParse_UnterminatedStringRejected(t *testing.T) {
	s := mustSchema(t, "|a:INT32|b:STRING|")
	_, err := Parse(`1, 'unterminated, 2`, s)
	require.ErrorIs(t, err, ErrInvalidQuery)
}
