// Package storage implements the frame-paged, disk-backed table: schema
// validation and lifecycle, the string heap, frame caching, and row
// CRUD. It depends on internal/record for schema and row codec and knows
// nothing about the query package built on top of it.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/vexarch/framedb/internal/alias/bx"
	"github.com/vexarch/framedb/internal/alias/util"
	"github.com/vexarch/framedb/internal/record"
)

// Predicate reports whether a decoded row matches some caller-defined
// condition, used by the Find/Pop family of operations.
type Predicate func(record.Values) bool

// Table is a schema-typed, frame-paged, disk-backed row store with an
// out-of-line string heap, matching the lifecycle of
// original_source/src/vx_database.cpp's Table: Absent -> Fresh on create,
// Populated -> Ready on open, Ready -> Closed on Close.
type Table struct {
	name   string
	schema *record.Schema

	dataFile *os.File
	strings  *StringsHeap

	frameByteSize int
	frameCapacity int

	mu         sync.Mutex // guards frames, frameCount, elementCnt
	frames     map[int]*frame
	frameCount int
	elementCnt int

	ctx    context.Context
	cancel context.CancelFunc
	evict  *evictGroup

	log *slog.Logger
}

// OpenOrCreate opens dir/<name>_table.db if it exists and is non-empty and
// validates its metadata against schema, or creates it fresh if it is absent
// or empty, per spec.md §4.4's state machine.
func OpenOrCreate(dir, name string, schema *record.Schema) (*Table, error) {
	dataPath := dataFileName(joinPath(dir, name))
	if info, err := os.Stat(dataPath); err == nil && info.Size() > 0 {
		return Open(dir, name, schema)
	}
	return create(dir, name, schema)
}

// Open opens an existing table and validates its persisted schema against
// schema, returning ErrSchemaMismatch on disagreement. A nil schema takes
// the table's schema from its metadata.
func Open(dir, name string, schema *record.Schema) (*Table, error) {
	dataPath := dataFileName(joinPath(dir, name))
	f, err := os.OpenFile(dataPath, os.O_RDWR, filePerm)
	if err != nil {
		return nil, fmt.Errorf("storage: open table %q: %w", name, err)
	}

	md, err := readMetadata(f)
	if err != nil {
		util.CloseFileFunc(f)
		return nil, err
	}
	if schema == nil {
		schema = md.schema
	} else if !md.schema.Equal(schema) {
		util.CloseFileFunc(f)
		return nil, fmt.Errorf("%w: table %q schema is %s, supplied %s", ErrSchemaMismatch, name, md.schema.String(), schema.String())
	}
	// Mirrors original_source/src/vx_database.cpp's read_metadata(), which
	// throws rather than reopen into a table whose frame can't hold a row.
	if frameCapacity(md.frameSize, schema.RowSize()) <= 0 {
		util.CloseFileFunc(f)
		return nil, fmt.Errorf("%w: table %q frame size %d cannot hold a single %d-byte row", ErrCorruption, name, md.frameSize, schema.RowSize())
	}

	sh, err := OpenStringsHeap(stringsFileName(joinPath(dir, name)))
	if err != nil {
		util.CloseFileFunc(f)
		return nil, err
	}

	t := newTable(name, schema, f, sh, md.frameSize)
	t.frameCount = md.frameCount
	t.elementCnt = md.elementCount
	t.log.Info("table opened", "frames", t.frameCount, "rows", t.elementCnt)
	return t, nil
}

// create truncates and initializes a fresh table file and its strings
// heap.
func create(dir, name string, schema *record.Schema) (*Table, error) {
	if len(schema.Columns()) == 0 {
		return nil, fmt.Errorf("%w: cannot create a table with no columns", ErrInvalidArgument)
	}
	dataPath := dataFileName(joinPath(dir, name))
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("storage: create table %q: %w", name, err)
	}
	if err := f.Truncate(MetadataLength); err != nil {
		util.CloseFileFunc(f)
		return nil, fmt.Errorf("storage: truncate table %q: %w", name, err)
	}

	size, err := frameSize(schema.RowSize())
	if err != nil {
		util.CloseFileFunc(f)
		return nil, err
	}
	sh, err := OpenStringsHeap(stringsFileName(joinPath(dir, name)))
	if err != nil {
		util.CloseFileFunc(f)
		return nil, err
	}

	t := newTable(name, schema, f, sh, size)
	if err := t.writeMetadataLocked(); err != nil {
		util.CloseFileFunc(f)
		util.CloseFileFunc(sh.file)
		return nil, err
	}
	t.log.Info("table created", "schema", schema.String(), "frame_size", size)
	return t, nil
}

func newTable(name string, schema *record.Schema, f *os.File, sh *StringsHeap, frameByteSize int) *Table {
	ctx, cancel := context.WithCancel(context.Background())
	return &Table{
		name:          name,
		schema:        schema,
		dataFile:      f,
		strings:       sh,
		frameByteSize: frameByteSize,
		frameCapacity: frameCapacity(frameByteSize, schema.RowSize()),
		frames:        make(map[int]*frame),
		ctx:           ctx,
		cancel:        cancel,
		evict:         newEvictGroup(),
		log:           slog.Default().With("table", name),
	}
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + string(os.PathSeparator) + name
}

// frameFileOffset returns the byte offset of frame n within the data file,
// accounting for the metadata header.
func (t *Table) frameFileOffset(n int) int64 {
	return int64(MetadataLength) + int64(n)*int64(4+t.frameCapacity*t.schema.RowSize())
}

func (t *Table) frameOnDiskSize() int {
	return 4 + t.frameCapacity*t.schema.RowSize()
}

// frameLocked returns frame n, creating its in-memory handle (not yet
// loaded) if this is the first time it's been referenced. Callers must
// hold t.mu.
func (t *Table) frameLocked(n int) *frame {
	fr, ok := t.frames[n]
	if !ok {
		fr = newFrame(t.dataFile, n, t.frameFileOffset(n), t.frameOnDiskSize(), t.schema.RowSize(), t.frameCapacity)
		t.frames[n] = fr
	}
	return fr
}

func (t *Table) writeMetadataLocked() error {
	return writeMetadata(t.dataFile, metadata{
		schema:       t.schema,
		frameSize:    t.frameByteSize,
		frameCount:   t.frameCount,
		elementCount: t.elementCnt,
	})
}

// RowCount returns the current number of live rows.
func (t *Table) RowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elementCnt
}

// Schema returns the table's schema.
func (t *Table) Schema() *record.Schema { return t.schema }

// AddElement packs and appends one row, writing any STRING payloads to the
// strings heap before patching their offsets into the packed row — frame
// exclusive access is always acquired before the strings heap is touched,
// per the table's lock ordering invariant.
func (t *Table) AddElement(values record.Values) error {
	buf := make([]byte, t.schema.RowSize())
	pending, err := record.Pack(t.schema, values, buf)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.frameCount == 0 {
		t.frameCount = 1
	}
	frameCount := t.frameCount
	t.mu.Unlock()

	// Iterate frames in order; the first with spare capacity is the target.
	// A deletion can leave a hole in any frame, not just the last one, so
	// the last frame is never assumed to be the only candidate.
	var fr *frame
	frameNo := 0
	for ; frameNo < frameCount; frameNo++ {
		t.mu.Lock()
		cand := t.frameLocked(frameNo)
		t.mu.Unlock()

		cand.mu.Lock()
		if err := cand.ensureLoaded(t.ctx, t.evict); err != nil {
			cand.mu.Unlock()
			return err
		}
		if cand.count() < int32(t.frameCapacity) {
			fr = cand
			break
		}
		cand.mu.Unlock()
	}

	if fr == nil {
		t.mu.Lock()
		frameNo = t.frameCount
		t.frameCount++
		fr = t.frameLocked(frameNo)
		t.mu.Unlock()

		fr.mu.Lock()
		if err := fr.ensureLoaded(t.ctx, t.evict); err != nil {
			fr.mu.Unlock()
			return err
		}
	}

	for _, p := range pending {
		off, err := t.strings.Add(p.Bytes)
		if err != nil {
			fr.mu.Unlock()
			return err
		}
		record.PatchStringOffset(buf, p.Offset, off)
	}

	idx := fr.count()
	copy(fr.rowBytes(int(idx)), buf)
	fr.setCount(idx + 1)
	fr.mu.Unlock()

	t.mu.Lock()
	t.elementCnt++
	err = t.writeMetadataLocked()
	t.mu.Unlock()
	return err
}

// AddElements appends every row in values, in order, stopping at the first
// error.
func (t *Table) AddElements(values []record.Values) error {
	for _, v := range values {
		if err := t.AddElement(v); err != nil {
			return err
		}
	}
	return nil
}

// locate converts a global row index into a (frame number, row-in-frame)
// pair. Per spec.md §4.4, frames are not assumed to be densely packed (a
// deletion only compacts the frame it touched, per Remove below), so this
// walks frames in order accumulating each one's real count; the first frame
// whose cumulative count exceeds index contains it, at
// frame.count - (cumulative - index).
func (t *Table) locate(index int) (int, int, error) {
	t.mu.Lock()
	n := t.elementCnt
	frameCount := t.frameCount
	t.mu.Unlock()
	if index < 0 || index >= n {
		return 0, 0, fmt.Errorf("%w: index %d out of range [0, %d)", ErrOutOfRange, index, n)
	}

	cumulative := 0
	for frameNo := 0; frameNo < frameCount; frameNo++ {
		t.mu.Lock()
		fr := t.frameLocked(frameNo)
		t.mu.Unlock()

		fr.mu.Lock()
		if err := fr.ensureLoaded(t.ctx, t.evict); err != nil {
			fr.mu.Unlock()
			return 0, 0, err
		}
		c := int(fr.count())
		fr.mu.Unlock()

		cumulative += c
		if cumulative > index {
			return frameNo, c - (cumulative - index), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: index %d not found despite row count %d", ErrCorruption, index, n)
}

func (t *Table) readRow(frameNo, rowInFrame int) (record.Values, error) {
	t.mu.Lock()
	fr := t.frameLocked(frameNo)
	t.mu.Unlock()

	// A shared lock can't safely call ensureLoaded, since loading mutates
	// frame state; take the frame exclusively for the whole read instead of
	// trying to upgrade a read lock.
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if err := fr.ensureLoaded(t.ctx, t.evict); err != nil {
		return nil, err
	}
	return record.Unpack(t.schema, fr.rowBytes(rowInFrame), t.strings)
}

// GetElement returns the row at the given global index.
func (t *Table) GetElement(index int) (record.Values, error) {
	fn, ri, err := t.locate(index)
	if err != nil {
		return nil, err
	}
	return t.readRow(fn, ri)
}

// GetAll returns every live row, in order.
func (t *Table) GetAll() ([]record.Values, error) {
	t.mu.Lock()
	n := t.elementCnt
	t.mu.Unlock()

	out := make([]record.Values, 0, n)
	for i := 0; i < n; i++ {
		v, err := t.GetElement(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FindFirst returns the first row matching pred.
func (t *Table) FindFirst(pred Predicate) (record.Values, bool, error) {
	matches, err := t.Find(pred, 1)
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	return matches[0], true, nil
}

// Find returns up to limit rows matching pred, in order. limit == 0 means
// unlimited, matching FindAll; a negative limit is ErrInvalidArgument.
func (t *Table) Find(pred Predicate, limit int) ([]record.Values, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: find limit %d must be non-negative", ErrInvalidArgument, limit)
	}
	t.mu.Lock()
	n := t.elementCnt
	t.mu.Unlock()

	var out []record.Values
	for i := 0; i < n; i++ {
		v, err := t.GetElement(i)
		if err != nil {
			return nil, err
		}
		if pred(v) {
			out = append(out, v)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// FindAll returns every row matching pred.
func (t *Table) FindAll(pred Predicate) ([]record.Values, error) {
	return t.Find(pred, 0)
}

// releaseRowStrings removes every STRING slot owned by the row at
// (frameNo, rowInFrame) from the strings heap, before the row's slot is
// overwritten or shifted away. Callers must hold fr.mu for writing.
func (t *Table) releaseRowStrings(fr *frame, rowInFrame int) error {
	if !t.schema.HasString() {
		return nil
	}
	row := fr.rowBytes(rowInFrame)
	for _, off := range t.schema.StringOffsets() {
		length := bx.U32(row[off : off+4])
		ptr := bx.U64(row[off+4 : off+12])
		if length == 0 {
			continue
		}
		if err := t.strings.Remove(ptr, length); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the row at the given global index, releasing its string
// entries and shifting rows [local_index+1, frame.count) one row size to
// the left within the owning frame, per spec.md §4.4 — mirroring
// original_source/src/vx_database.cpp's remove(), whose memmove is bounded
// by frame_size and never touches another frame. Frames are never deleted
// (spec.md §3/§4.4): a frame that empties out stays allocated at count 0,
// available to later inserts.
func (t *Table) Remove(index int) error {
	fn, ri, err := t.locate(index)
	if err != nil {
		return err
	}

	t.mu.Lock()
	fr := t.frameLocked(fn)
	t.mu.Unlock()

	fr.mu.Lock()
	defer fr.mu.Unlock()
	if err := fr.ensureLoaded(t.ctx, t.evict); err != nil {
		return err
	}
	if err := t.releaseRowStrings(fr, ri); err != nil {
		return err
	}

	count := int(fr.count())
	for i := ri; i < count-1; i++ {
		copy(fr.rowBytes(i), fr.rowBytes(i+1))
	}
	fr.setCount(int32(count - 1))

	t.mu.Lock()
	t.elementCnt--
	writeErr := t.writeMetadataLocked()
	t.mu.Unlock()
	return writeErr
}

// RemoveAll removes every row matching pred, returning how many were
// removed. Indices are scanned from the end so earlier removals don't
// disturb not-yet-visited positions.
func (t *Table) RemoveAll(pred Predicate) (int, error) {
	t.mu.Lock()
	n := t.elementCnt
	t.mu.Unlock()

	removed := 0
	for i := n - 1; i >= 0; i-- {
		v, err := t.GetElement(i)
		if err != nil {
			return removed, err
		}
		if pred(v) {
			if err := t.Remove(i); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// RemoveN removes up to limit rows matching pred, returning how many were
// removed. limit == 0 means unlimited, matching RemoveAll; a negative limit
// is ErrInvalidArgument. Matches are found by scanning from index 0 after
// every removal, per spec.md §9: the scan pointer never advances past a
// removed row, since the next row has shifted into its slot.
func (t *Table) RemoveN(pred Predicate, limit int) (int, error) {
	if limit < 0 {
		return 0, fmt.Errorf("%w: remove limit %d must be non-negative", ErrInvalidArgument, limit)
	}
	removed := 0
	for limit == 0 || removed < limit {
		t.mu.Lock()
		n := t.elementCnt
		t.mu.Unlock()

		found := false
		for i := 0; i < n; i++ {
			v, err := t.GetElement(i)
			if err != nil {
				return removed, err
			}
			if pred(v) {
				if err := t.Remove(i); err != nil {
					return removed, err
				}
				removed++
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return removed, nil
}

// PopFirst removes and returns the first row matching pred.
func (t *Table) PopFirst(pred Predicate) (record.Values, bool, error) {
	t.mu.Lock()
	n := t.elementCnt
	t.mu.Unlock()
	for i := 0; i < n; i++ {
		v, err := t.GetElement(i)
		if err != nil {
			return nil, false, err
		}
		if pred(v) {
			if err := t.Remove(i); err != nil {
				return nil, false, err
			}
			return v, true, nil
		}
	}
	return nil, false, nil
}

// Pop removes and returns up to limit rows matching pred. limit == 0 means
// unlimited, matching PopAll; a negative limit is ErrInvalidArgument.
func (t *Table) Pop(pred Predicate, limit int) ([]record.Values, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: pop limit %d must be non-negative", ErrInvalidArgument, limit)
	}
	var out []record.Values
	for limit <= 0 || len(out) < limit {
		v, ok, err := t.PopFirst(pred)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// PopAll removes and returns every row matching pred.
func (t *Table) PopAll(pred Predicate) ([]record.Values, error) {
	return t.Pop(pred, 0)
}

// Clear removes every row and releases every string entry, truncating the
// data file back to its metadata header with no frames; the next insert
// creates frame 0 again.
func (t *Table) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, fr := range t.frames {
		fr.mu.Lock()
		_ = fr.flushLocked()
		fr.unloadLocked()
		fr.mu.Unlock()
	}
	t.frames = make(map[int]*frame)
	t.frameCount = 0
	t.elementCnt = 0

	if err := t.dataFile.Truncate(int64(MetadataLength)); err != nil {
		return fmt.Errorf("storage: clear table %q: %w", t.name, err)
	}
	if err := t.strings.Truncate(); err != nil {
		return err
	}
	return t.writeMetadataLocked()
}

// Close flushes every loaded frame, waits for their eviction goroutines to
// exit, rewrites the metadata header, and closes both files.
func (t *Table) Close() error {
	t.cancel()
	t.evict.wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, fr := range t.frames {
		fr.mu.Lock()
		_ = fr.flushLocked()
		fr.mu.Unlock()
	}
	if err := t.writeMetadataLocked(); err != nil {
		return err
	}
	if err := t.strings.Close(); err != nil {
		return err
	}
	return t.dataFile.Close()
}
