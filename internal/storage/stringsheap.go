package storage

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vexarch/framedb/internal/alias/bx"
	"github.com/vexarch/framedb/internal/alias/util"
)

// freeSpan is a reusable region of the strings file: a 4-byte length header
// slot at offset followed by capacity bytes of zeroed payload.
type freeSpan struct {
	offset   uint64
	capacity uint32
}

// StringsHeap is the out-of-line variable-length string store backing a
// table's STRING columns (spec.md §4.2). Records are (length:u32 LE,
// bytes[length]) packed back to back; Remove zeroes a record in place,
// turning it into a tombstone that Add can later reuse.
//
// The free list is recovered from the file's own bytes on open: per
// spec.md §4.2, add's scan only needs a zero length header followed by
// enough zero payload bytes, not a separately stored capacity, and a real
// record's length is never 0 (the empty string is the offset-0 sentinel
// and is never written), so every zero-length header found at a genuine
// record boundary is unambiguously a tombstone. No stored capacity is
// needed: the tombstone's usable capacity is just the length of the zero
// run starting there.
type StringsHeap struct {
	mu   sync.RWMutex
	file *os.File
	size int64
	free []freeSpan
}

// OpenStringsHeap opens or creates the strings file at path, rebuilding the
// in-memory free list from any tombstones already on disk.
func OpenStringsHeap(path string) (*StringsHeap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		return nil, fmt.Errorf("storage: open strings file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		util.CloseFileFunc(f)
		return nil, fmt.Errorf("storage: stat strings file: %w", err)
	}
	h := &StringsHeap{file: f, size: info.Size()}
	if h.size > 0 {
		if err := h.rebuildFreeList(); err != nil {
			util.CloseFileFunc(f)
			return nil, err
		}
	}
	return h, nil
}

// rebuildFreeList scans the whole file from offset 0, walking record by
// record (a live record's length advances the scan past its payload), and
// records a freeSpan for every zero-length header's run of trailing zero
// bytes. Grounded on spec.md §4.2's add algorithm: "a linear scan from the
// start of the file finds the first region whose length header is 0
// followed by >= len zero bytes of payload" — the same scan Add performs
// against the in-memory free list, run once here against the file itself.
func (h *StringsHeap) rebuildFreeList() error {
	data := make([]byte, h.size)
	if _, err := h.file.ReadAt(data, 0); err != nil {
		return fmt.Errorf("storage: scan strings file: %w", err)
	}
	pos := int64(0)
	for pos < h.size {
		length := bx.U32(data[pos : pos+4])
		if length == 0 {
			runEnd := pos + 4
			for runEnd < h.size && data[runEnd] == 0 {
				runEnd++
			}
			if capacity := runEnd - pos - 4; capacity > 0 {
				h.free = append(h.free, freeSpan{offset: uint64(pos), capacity: uint32(capacity)})
			}
			pos = runEnd
			continue
		}
		pos += 4 + int64(length)
	}
	return nil
}

// Close closes the underlying file.
func (h *StringsHeap) Close() error {
	return h.file.Close()
}

// Truncate empties the heap, discarding every record and free span. Used by
// Table.Clear, which per spec.md §4.4 truncates the strings heap along with
// the data file.
func (h *StringsHeap) Truncate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("storage: truncate strings file: %w", err)
	}
	h.size = 0
	h.free = nil
	return nil
}

// Add appends b as a new record, reusing a tombstone of sufficient capacity
// if one is available, and returns its offset. A zero-length b is never
// written and gets offset 0. The first record of an empty heap is also at
// offset 0, so a row slot's length, not its offset, marks an empty string.
func (h *StringsHeap) Add(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	need := uint32(len(b))
	for i, span := range h.free {
		if span.capacity < need {
			continue
		}
		if err := h.writeRecord(span.offset, b); err != nil {
			return 0, err
		}
		leftover := span.capacity - need
		h.free = append(h.free[:i], h.free[i+1:]...)
		if leftover >= 4 {
			h.free = append(h.free, freeSpan{
				offset:   span.offset + 4 + uint64(need),
				capacity: leftover - 4,
			})
		}
		slog.Debug("storage: reused strings tombstone", "offset", span.offset, "capacity", span.capacity, "need", need)
		return span.offset, nil
	}

	offset := uint64(h.size)
	if err := h.writeRecord(offset, b); err != nil {
		return 0, err
	}
	h.size += 4 + int64(len(b))
	return offset, nil
}

func (h *StringsHeap) writeRecord(offset uint64, b []byte) error {
	rec := make([]byte, 4+len(b))
	bx.PutU32(rec[0:4], uint32(len(b)))
	copy(rec[4:], b)
	if _, err := h.file.WriteAt(rec, int64(offset)); err != nil {
		return fmt.Errorf("storage: write strings record at %d: %w", offset, err)
	}
	return nil
}

// Get implements record.StringReader: it reads length bytes of payload from
// offset, verifying the on-disk length header matches.
func (h *StringsHeap) Get(offset uint64, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if int64(offset)+4+int64(length) > h.size {
		return nil, fmt.Errorf("%w: string offset %d exceeds heap size %d", ErrOutOfRange, offset, h.size)
	}

	rec := make([]byte, 4+length)
	if _, err := h.file.ReadAt(rec, int64(offset)); err != nil {
		return nil, fmt.Errorf("storage: read strings record at %d: %w", offset, err)
	}
	storedLen := bx.U32(rec[0:4])
	if storedLen != length {
		return nil, fmt.Errorf("%w: string at %d has length %d, expected %d", ErrCorruption, offset, storedLen, length)
	}
	return rec[4:], nil
}

// Remove zeroes the record at offset (a length header of length followed by
// length payload bytes) and marks it free for reuse by a later Add. A
// zero-length removal is a no-op, matching the empty-string sentinel.
func (h *StringsHeap) Remove(offset uint64, length uint32) error {
	if length == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if int64(offset)+4+int64(length) > h.size {
		return fmt.Errorf("%w: string offset %d exceeds heap size %d", ErrOutOfRange, offset, h.size)
	}

	zero := make([]byte, 4+length)
	if _, err := h.file.WriteAt(zero, int64(offset)); err != nil {
		return fmt.Errorf("storage: zero strings record at %d: %w", offset, err)
	}
	h.free = append(h.free, freeSpan{offset: offset, capacity: length})
	return nil
}
