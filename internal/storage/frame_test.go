package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexarch/framedb/internal/record"
)

func TestFrame_IdleEvictionFlushesAndUnloads(t *testing.T) {
	old := CacheLifetime
	SetCacheLifetime(20 * time.Millisecond)
	defer SetCacheLifetime(old)

	dir := t.TempDir()
	schema := mustSchema(t, "|id:INT32|")
	tbl, err := OpenOrCreate(dir, "t", schema)
	require.NoError(t, err)
	defer tbl.Close()

	require.NoError(t, tbl.AddElement(record.Values{int32(7)}))

	fr := tbl.frames[0]
	require.True(t, fr.loaded)

	assert.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return !fr.loaded
	}, time.Second, 5*time.Millisecond)

	row, err := tbl.GetElement(0)
	require.NoError(t, err)
	assert.Equal(t, record.Values{int32(7)}, row)
}
