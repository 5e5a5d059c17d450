package storage

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

func TestTable_CreateAddGet(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|name:STRING|price:FLOAT32|")

	tbl, err := OpenOrCreate(dir, "products", schema)
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.AddElement(record.Values{int32(1), "Widget", float32(9.99)}))
	require.NoError(t, tbl.AddElement(record.Values{int32(2), "Gadget", float32(19.99)}))

	assert.Equal(t, 2, tbl.RowCount())

	row, err := tbl.GetElement(0)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(1), "Widget", float32(9.99)}, row)

	all, err := tbl.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestTable_ReopenValidatesSchema(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	require.NoError(t, tbl.AddElement(record.Values{int32(42)}))
	require.NoError(t, tbl.Close())

	reopened, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.RowCount())

	otherSchema := mustSchema(t, "|id:INT64|")
	_, err = OpenOrCreate(dir, "t", otherSchema)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTable_RemoveShiftsAndFreesStrings(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|name:STRING|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, tbl.AddElement(record.Values{int32(i), "row"}))
	}

	require.NoError(t, tbl.Remove(0))
	assert.Equal(t, 2, tbl.RowCount())
	assert.Len(t, tbl.strings.free, 1, "the removed row's string should become a reusable tombstone")

	row, err := tbl.GetElement(0)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(1), "row"}, row)

	row, err = tbl.GetElement(1)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(2), "row"}, row)
}

func TestTable_FindAndPop(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.AddElement(record.Values{int32(i)}))
	}

	isEven := func(v record.Values) bool { return v[0].(int32)%2 == 0 }
	found, err := tbl.FindAll(isEven)
	require.NoError(t, err)
	assert.Len(t, found, 3)

	popped, err := tbl.PopAll(isEven)
	require.NoError(t, err)
	assert.Len(t, popped, 3)
	assert.Equal(t, 2, tbl.RowCount())

	remaining, err := tbl.GetAll()
	require.NoError(t, err)
	for _, v := range remaining {
		assert.False(t, isEven(v))
	}
}

func TestTable_RemoveNBoundsCount(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, tbl.AddElement(record.Values{int32(i)}))
	}

	isEven := func(v record.Values) bool { return v[0].(int32)%2 == 0 }
	n, err := tbl.RemoveN(isEven, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, tbl.RowCount())

	remaining, err := tbl.GetAll()
	require.NoError(t, err)
	evenLeft := 0
	for _, v := range remaining {
		if isEven(v) {
			evenLeft++
		}
	}
	assert.Equal(t, 1, evenLeft, "one even row (4) should remain after removing only 2")
}

func TestTable_FindNegativeLimitRejected(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")
	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	_, err = tbl.Find(func(record.Values) bool { return true }, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = tbl.RemoveN(func(record.Values) bool { return true }, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTable_Clear(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.AddElement(record.Values{int32(i)}))
	}
	require.NoError(t, tbl.Clear())
	assert.Equal(t, 0, tbl.RowCount())
}

func TestTable_SpansMultipleFrames(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")

	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	n := tbl.frameCapacity*2 + 3
	for i := 0; i < n; i++ {
		require.NoError(t, tbl.AddElement(record.Values{int32(i)}))
	}
	assert.Equal(t, n, tbl.RowCount())
	assert.Equal(t, 3, tbl.frameCount)

	row, err := tbl.GetElement(n - 1)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(n - 1)}, row)
}

func TestTable_GetOutOfRange(t *testing.T) {
	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")
	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	_, err = tbl.GetElement(0)
	require.ErrorIs(t, err, ErrOutOfRange)
}
