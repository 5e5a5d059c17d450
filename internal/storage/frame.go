package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vexarch/framedb/internal/alias/bx"
)

// frame is one fixed-size page of a table's data file: a 4-byte element
// count header followed by capacity rows of rowSize bytes. Frames are
// loaded into memory lazily on first access and, once loaded, spawn a
// goroutine that flushes and unloads them after CacheLifetime of
// inactivity — grounded on original_source's load_frame / unload_frame /
// flush_frame and their per-frame atomic<bool> accessed flag.
type frame struct {
	mu       sync.RWMutex
	number   int
	fileOff  int64
	size     int
	rowSize  int
	capacity int

	loaded   bool
	dirty    bool
	buf      []byte
	accessed atomic.Bool

	file *os.File
}

func newFrame(file *os.File, number int, fileOff int64, size, rowSize, capacity int) *frame {
	return &frame{file: file, number: number, fileOff: fileOff, size: size, rowSize: rowSize, capacity: capacity}
}

// touch marks the frame as recently accessed, resetting its idle timer.
func (fr *frame) touch() { fr.accessed.Store(true) }

// ensureLoaded reads the frame's bytes from disk if it isn't already
// resident, and starts its idle-eviction goroutine under group. Callers
// must hold fr.mu for writing, since loading mutates the frame's state.
func (fr *frame) ensureLoaded(ctx context.Context, group *evictGroup) error {
	if fr.loaded {
		fr.touch()
		return nil
	}
	buf := make([]byte, fr.size)
	// A frame not yet written to disk (the first load of a brand-new frame,
	// including frame 0 of a just-created table) reads short or hits EOF
	// outright; per spec.md §4.4 a never-written frame is a zero count
	// followed by zero payload bytes, which buf already is since make
	// zero-fills it, so a short/EOF read is not an error here.
	if _, err := fr.file.ReadAt(buf, fr.fileOff); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("storage: load frame %d: %w", fr.number, err)
	}
	fr.buf = buf
	fr.loaded = true
	fr.dirty = false
	fr.touch()
	slog.Debug("storage: loaded frame", "frame", fr.number, "size", fr.size)
	group.spawn(fr, ctx)
	return nil
}

// count returns the number of live rows recorded in the frame's header.
func (fr *frame) count() int32 {
	return int32(bx.U32(fr.buf[0:4]))
}

func (fr *frame) setCount(n int32) {
	bx.PutU32(fr.buf[0:4], uint32(n))
	fr.dirty = true
}

// rowBytes returns a slice of buf holding row i's packed bytes.
func (fr *frame) rowBytes(i int) []byte {
	off := 4 + i*fr.rowSize
	return fr.buf[off : off+fr.rowSize]
}

// flushLocked writes the frame back to disk if dirty. Callers must hold
// fr.mu for writing.
func (fr *frame) flushLocked() error {
	if !fr.loaded || !fr.dirty {
		return nil
	}
	if _, err := fr.file.WriteAt(fr.buf, fr.fileOff); err != nil {
		return fmt.Errorf("storage: flush frame %d: %w", fr.number, err)
	}
	fr.dirty = false
	return nil
}

// unloadLocked drops the frame's in-memory buffer. Callers must hold fr.mu
// for writing and have already flushed.
func (fr *frame) unloadLocked() {
	fr.buf = nil
	fr.loaded = false
}

// evictGroup tracks the idle-eviction goroutines of every loaded frame in a
// table, so Close can wait for them all to exit before the data file is
// closed.
type evictGroup struct {
	g *errgroup.Group
}

func newEvictGroup() *evictGroup {
	return &evictGroup{g: &errgroup.Group{}}
}

func (eg *evictGroup) spawn(fr *frame, ctx context.Context) {
	eg.g.Go(func() error {
		fr.evictLoop(ctx)
		return nil
	})
}

func (eg *evictGroup) wait() { _ = eg.g.Wait() }

// evictLoop is the per-frame idle-eviction goroutine: every CacheLifetime it
// checks whether the frame was touched since the last tick; if not, it
// flushes and unloads the frame and exits. A touch during the interval
// resets the timer instead of evicting.
func (fr *frame) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(CacheLifetime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fr.mu.Lock()
			_ = fr.flushLocked()
			fr.unloadLocked()
			fr.mu.Unlock()
			return
		case <-ticker.C:
			if fr.accessed.Swap(false) {
				continue
			}
			fr.mu.Lock()
			if !fr.loaded {
				fr.mu.Unlock()
				return
			}
			slog.Debug("storage: evicting idle frame", "frame", fr.number, "dirty", fr.dirty)
			_ = fr.flushLocked()
			fr.unloadLocked()
			fr.mu.Unlock()
			return
		}
	}
}
