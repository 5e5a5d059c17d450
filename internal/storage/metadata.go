package storage

import (
	"fmt"
	"os"

	"github.com/vexarch/framedb/internal/alias/bx"
	"github.com/vexarch/framedb/internal/record"
)

// metadata is the fixed-size header written at the start of a table's data
// file (spec.md §4.4): the schema's canonical text, the frame byte size in
// use, and the current frame and row counts, padded out to MetadataLength.
type metadata struct {
	schema       *record.Schema
	frameSize    int
	frameCount   int
	elementCount int
}

// writeMetadata serializes m into a MetadataLength-byte header and writes it
// at the start of f.
func writeMetadata(f *os.File, m metadata) error {
	text := []byte(m.schema.String())
	if len(text)+16 > MetadataLength {
		return fmt.Errorf("%w: schema text of %d bytes does not fit in a %d-byte metadata header", ErrTooBigRow, len(text), MetadataLength)
	}

	buf := make([]byte, MetadataLength)
	off := 0
	bx.PutU32(buf[off:], uint32(len(text)))
	off += 4
	copy(buf[off:], text)
	off += len(text)
	bx.PutU32(buf[off:], uint32(m.frameSize))
	off += 4
	bx.PutU32(buf[off:], uint32(m.frameCount))
	off += 4
	bx.PutU32(buf[off:], uint32(m.elementCount))

	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("storage: write metadata: %w", err)
	}
	return nil
}

// readMetadata reads and validates the MetadataLength-byte header at the
// start of f.
func readMetadata(f *os.File) (metadata, error) {
	buf := make([]byte, MetadataLength)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return metadata{}, fmt.Errorf("storage: read metadata: %w", err)
	}

	off := 0
	schemaLen := bx.U32(buf[off:])
	off += 4
	if int(schemaLen)+16 > MetadataLength {
		return metadata{}, fmt.Errorf("%w: metadata schema length %d is invalid", ErrCorruption, schemaLen)
	}
	if off+int(schemaLen) > len(buf) {
		return metadata{}, fmt.Errorf("%w: metadata schema length %d overruns header", ErrCorruption, schemaLen)
	}
	schemaText := string(buf[off : off+int(schemaLen)])
	off += int(schemaLen)

	schema, err := record.Parse(schemaText)
	if err != nil {
		return metadata{}, fmt.Errorf("%w: metadata schema text invalid: %v", ErrCorruption, err)
	}

	frameSizeVal := bx.U32(buf[off:])
	off += 4
	frameCount := bx.U32(buf[off:])
	off += 4
	elementCount := bx.U32(buf[off:])

	if frameSizeVal < MinFrameSize || frameSizeVal > MaxFrameSize {
		return metadata{}, fmt.Errorf("%w: metadata frame size %d out of bounds", ErrCorruption, frameSizeVal)
	}

	return metadata{
		schema:       schema,
		frameSize:    int(frameSizeVal),
		frameCount:   int(frameCount),
		elementCount: int(elementCount),
	}, nil
}
