package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringsHeap_AddGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer h.Close()

	off, err := h.Add([]byte("hello"))
	require.NoError(t, err)

	got, err := h.Get(off, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestStringsHeap_EmptyStringIsSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer h.Close()

	off, err := h.Add(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off)
}

func TestStringsHeap_RemoveThenReuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer h.Close()

	off1, err := h.Add([]byte("world"))
	require.NoError(t, err)

	sizeBefore := h.size
	require.NoError(t, h.Remove(off1, 5))

	off2, err := h.Add([]byte("earth"))
	require.NoError(t, err)
	assert.Equal(t, off1, off2, "reused tombstone should not grow the file")
	assert.Equal(t, sizeBefore, h.size)

	got, err := h.Get(off2, 5)
	require.NoError(t, err)
	assert.Equal(t, "earth", string(got))
}

func TestStringsHeap_ReopenRecoversTombstones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)

	off1, err := h.Add([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, h.Remove(off1, 5))
	sizeBeforeReopen := h.size
	require.NoError(t, h.Close())

	reopened, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer reopened.Close()

	off2, err := reopened.Add([]byte("earth"))
	require.NoError(t, err)
	assert.Equal(t, off1, off2, "tombstone left by a prior process should be reused, not appended past")
	assert.Equal(t, sizeBeforeReopen, reopened.size)

	got, err := reopened.Get(off2, 5)
	require.NoError(t, err)
	assert.Equal(t, "earth", string(got))
}

func TestStringsHeap_GetLengthMismatchIsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer h.Close()

	// "abcde" is stored with a length header of 5; asking for 3 bytes is
	// still within the heap's bounds (so it isn't ErrOutOfRange) but
	// disagrees with the stored header, which must be ErrCorruption.
	off, err := h.Add([]byte("abcde"))
	require.NoError(t, err)

	_, err = h.Get(off, 3)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestStringsHeap_GetOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.db")
	h, err := OpenStringsHeap(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Get(1000, 4)
	require.ErrorIs(t, err, ErrOutOfRange)
}
