package storage

import (
	"fmt"
	"time"
)

// Frame and cache constants from spec.md §4.2/§4.3.
const (
	MinFrameSize = 4096
	MaxFrameSize = 1 << 20

	// MetadataLength is the fixed padded size of a table's metadata header.
	MetadataLength = 2048

	filePerm = 0o644
)

// CacheLifetime and RowsPerFrame are the only two sizing knobs a deployment
// can override (via internal/config); every other constant above is a wire
// format invariant and stays fixed.
var (
	CacheLifetime = 15 * time.Second
	RowsPerFrame  = 64
)

// SetCacheLifetime overrides the idle-eviction timeout used by frames
// loaded after the call; it does not reschedule already-running eviction
// goroutines.
func SetCacheLifetime(d time.Duration) { CacheLifetime = d }

// SetRowsPerFrame overrides how many rows spec.md §4.2's frame-size formula
// targets per frame; it only affects tables created afterward, since an
// existing table's frame size is fixed in its metadata.
func SetRowsPerFrame(n int) {
	if n > 0 {
		RowsPerFrame = n
	}
}

// dataFileName and stringsFileName derive a table's two on-disk file names
// from its name, matching original_source's "<name>_table.db" /
// "<name>_table_strings.db" convention.
func dataFileName(name string) string    { return name + "_table.db" }
func stringsFileName(name string) string { return name + "_table_strings.db" }

// frameSize picks the frame byte size for a given row size: RowsPerFrame
// rows per frame, floored at MinFrameSize. Per spec.md §4.4, a row so wide
// that this would reach MaxFrameSize or beyond is rejected outright rather
// than silently clamped down to a smaller capacity.
func frameSize(rowSize int) (int, error) {
	size := rowSize * RowsPerFrame
	if size < MinFrameSize {
		size = MinFrameSize
	}
	if size >= MaxFrameSize {
		return 0, fmt.Errorf("%w: row size %d yields frame size %d >= max %d", ErrTooBigRow, rowSize, size, MaxFrameSize)
	}
	return size, nil
}

// frameCapacity returns how many rows of rowSize fit in a frame of the given
// size.
func frameCapacity(size, rowSize int) int {
	if rowSize <= 0 {
		return 0
	}
	return size / rowSize
}
