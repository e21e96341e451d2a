// Package portlock persists advisory port ownership records so independent
// launcher processes can recognize each other's listeners. A lock is a
// small JSON file named after the port; it is written only once the owning
// process is reachable, and readers re-validate the recorded pid so a
// crashed owner never wedges the port.
package portlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/platform"
)

// Record is the persisted claim on a port.
type Record struct {
	PID       int       `json:"pid"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// Path returns the lock file path for port under dir.
func Path(dir string, port int) string {
	return filepath.Join(dir, fmt.Sprintf("port-%d.json", port))
}

// Write persists a lock record for port, atomically so a concurrent reader
// never observes a torn file.
func Write(dir string, port int, rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("portlock: record pid must be positive, got %d", rec.PID)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("portlock: marshal record: %w", err)
	}
	if err := fileutil.WriteFileAtomic(Path(dir, port), data, 0o644); err != nil {
		return fmt.Errorf("portlock: write lock for port %d: %w", port, err)
	}
	return nil
}

// Read returns the live lock record for port, or nil when none exists. A
// record whose pid is no longer running is stale: it is deleted on sight
// and reported as absent. Unparseable lock files are treated the same way.
func Read(dir string, port int, caps platform.Capabilities, log *slog.Logger) (*Record, error) {
	if log == nil {
		log = slog.Default()
	}
	path := Path(dir, port)

	data, err := os.ReadFile(path) //nolint:gosec // G304: lock dir is caller-controlled by contract
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("portlock: read lock for port %d: %w", port, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn("removing unparseable port lock", "path", path, "error", err)
		removeQuietly(path, log)
		return nil, nil
	}
	if !caps.ProcessAlive(rec.PID) {
		log.Debug("removing stale port lock", "path", path, "pid", rec.PID)
		removeQuietly(path, log)
		return nil, nil
	}
	return &rec, nil
}

// Remove deletes the lock for port. Missing locks are not an error.
func Remove(dir string, port int) error {
	if err := os.Remove(Path(dir, port)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("portlock: remove lock for port %d: %w", port, err)
	}
	return nil
}

// Sweep deletes every stale lock under dir. Used by periodic cleanup; the
// per-port staleness check in Read makes this an optimization, not a
// correctness requirement.
func Sweep(ctx context.Context, dir string, caps platform.Capabilities, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("portlock: sweep %s: %w", dir, err)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var port int
		if _, err := fmt.Sscanf(e.Name(), "port-%d.json", &port); err != nil {
			continue
		}
		// Read deletes the lock as a side effect when stale.
		if _, err := Read(dir, port, caps, log); err != nil {
			log.Warn("sweep: unreadable port lock", "name", e.Name(), "error", err)
		}
	}
	return nil
}

func removeQuietly(path string, log *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("remove port lock failed", "path", path, "error", err)
	}
}
