package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/sentinel"
)

// ErrEmptyPath is returned when a destination path is empty.
const ErrEmptyPath = sentinel.Error("destination path must not be empty")

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename, creating parent directories as needed.
// On POSIX systems rename is atomic, so concurrent readers observe either
// the previous content or the full new content, never a partial write.
//
// The file is synced before the rename; without the fsync a crash could
// leave the renamed file with incomplete contents.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) (retErr error) {
	if path == "" {
		return ErrEmptyPath
	}

	if err := EnsureDirForFile(path); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to destination: %w", err)
	}
	return nil
}
