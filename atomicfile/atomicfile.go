// Package atomicfile provides the write-temp-then-rename primitive every
// kernel-owned state file relies on: trust-epoch state, the device
// registry, and the consumed-token stores all use WriteFile so a crash
// mid-write never leaves a torn file behind; the evidence ledger appends
// its records through AppendFile instead. No library
// in the example pack owns this concern — it is pure orchestration over
// os.CreateTemp/os.Rename, not parsing, logging, or transport, so there is
// nothing upstream to wire here instead.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile atomically replaces path's contents with data: it writes to a
// temp file in the same directory (so the final rename is same-filesystem
// and therefore atomic on POSIX and Windows) and renames over path only
// after a successful close.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("atomicfile: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: renaming into place: %w", err)
	}
	return nil
}

// AppendFile opens path for append, creating it and its parent directory
// if needed, writes data followed by a single newline terminator, and
// closes it. Used by the evidence ledger, where each entry must land as
// one terminator-framed record rather than a full-file rewrite.
func AppendFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("atomicfile: creating %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: opening %s for append: %w", path, err)
	}
	defer f.Close()

	record := append(append([]byte{}, data...), '\n')
	if _, err := f.Write(record); err != nil {
		return fmt.Errorf("atomicfile: appending to %s: %w", path, err)
	}
	return f.Sync()
}
