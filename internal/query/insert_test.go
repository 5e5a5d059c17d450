package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexarch/framedb/internal/record"
	"github.com/vexarch/framedb/internal/storage"
)

func TestInsertInto(t *testing.T) {
	schema := mustSchema(t, "|id:INT32|name:STRING|")
	tbl, err := storage.OpenOrCreate(t.TempDir(), "widgets", schema)
	require.NoError(t, err)
	defer tbl.Close()

	n, err := InsertInto(tbl, `(1, "a"), (2, "b")`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, tbl.RowCount())

	row, err := tbl.GetElement(1)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(2), "b"}, row)
}
