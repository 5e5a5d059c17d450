// Package util holds small file-handling helpers shared across the storage
// engine's Close paths.
package util

import (
	"log/slog"
	"os"
)

// CloseFileFunc closes f, logging rather than propagating a close error: the
// engine's Close/cleanup paths close multiple handles unconditionally and
// have no meaningful recovery if one of them fails.
func CloseFileFunc(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Warn("storage: close file failed", "file", f.Name(), "err", err)
	}
}
