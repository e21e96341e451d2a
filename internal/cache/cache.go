package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/transfer"
)

// mutationLockName is the advisory lock file taken for Evict and
// CleanStalePartials. Independent tool instances sharing the base
// directory serialize their sweeps on it.
const mutationLockName = ".cache.lock"

// Cache is a bounded set of named folders under BaseDir.
type Cache struct {
	baseDir string
	log     *slog.Logger
}

// New creates a Cache rooted at baseDir. The directory is created lazily by
// Resolve, not here.
func New(baseDir string, logger *slog.Logger) (*Cache, error) {
	if baseDir == "" {
		return nil, errors.New("cache base directory must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{baseDir: baseDir, log: logger}, nil
}

// BaseDir returns the cache base directory.
func (c *Cache) BaseDir() string { return c.baseDir }

// Resolve returns the folder path for key, lazily creating the base
// directory. The entry folder itself is not created: population is the
// caller's job.
func (c *Cache) Resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New("cache key must not be empty")
	}
	if key != filepath.Base(key) {
		return "", fmt.Errorf("cache key %q must not contain path separators", key)
	}
	if err := fileutil.EnsureDir(c.baseDir); err != nil {
		return "", err
	}
	return filepath.Join(c.baseDir, key), nil
}

// Touch bumps the entry's recency. Callers must touch a freshly populated
// entry before calling Evict, or the non-atomic scan-then-delete may evict
// it despite being new.
func (c *Cache) Touch(key string) error {
	path := filepath.Join(c.baseDir, key)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch cache entry %s: %w", key, err)
	}
	return nil
}

// Evict deletes the oldest-touched entry folders beyond maxEntries. The
// scan lists immediate subfolders only, sorts by modification time
// descending, and recursively removes everything past the bound. Deletions
// are best-effort: one failure does not abort the remainder of the sweep.
func (c *Cache) Evict(ctx context.Context, maxEntries int) error {
	if maxEntries < 0 {
		return fmt.Errorf("max entries must not be negative, got %d", maxEntries)
	}
	if _, err := os.Stat(c.baseDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	lock, err := acquireFileLock(ctx, filepath.Join(c.baseDir, mutationLockName))
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	defer releaseFileLock(c.log, lock)

	entries, err := c.listEntries()
	if err != nil {
		return err
	}
	if len(entries) <= maxEntries {
		return nil
	}

	for _, e := range entries[maxEntries:] {
		path := filepath.Join(c.baseDir, e.name)
		if err := os.RemoveAll(path); err != nil {
			c.log.Warn("evict: remove cache entry failed", "path", path, "error", err)
			continue
		}
		c.log.Debug("evicted cache entry", "key", e.name, "last_touched", e.modTime)
	}
	return nil
}

// CleanStalePartials removes transfer sidecar markers older than maxAge
// together with their orphaned partial data files. This sweeps abandoned
// downloads and is independent of recency-based eviction. Best-effort: a
// single failed removal does not abort the sweep.
func (c *Cache) CleanStalePartials(ctx context.Context, maxAge time.Duration) error {
	if maxAge <= 0 {
		return fmt.Errorf("max age must be positive, got %v", maxAge)
	}
	if _, err := os.Stat(c.baseDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	lock, err := acquireFileLock(ctx, filepath.Join(c.baseDir, mutationLockName))
	if err != nil {
		return fmt.Errorf("clean stale partials: %w", err)
	}
	defer releaseFileLock(c.log, lock)

	cutoff := time.Now().Add(-maxAge)
	walkErr := filepath.WalkDir(c.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A folder may disappear under a concurrent eviction; skip it.
			c.log.Debug("stale sweep: skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), transfer.MetaSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		dataPath := strings.TrimSuffix(path, transfer.MetaSuffix)
		if rmErr := os.Remove(path); rmErr != nil {
			c.log.Warn("stale sweep: remove sidecar failed", "path", path, "error", rmErr)
			return nil
		}
		if rmErr := os.Remove(dataPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.log.Warn("stale sweep: remove partial failed", "path", dataPath, "error", rmErr)
			return nil
		}
		c.log.Debug("removed stale partial", "path", dataPath)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, os.ErrNotExist) {
		return fmt.Errorf("clean stale partials: %w", walkErr)
	}
	return nil
}

type entryInfo struct {
	name    string
	modTime time.Time
}

// listEntries returns the cache's immediate subfolders sorted by
// modification time descending (most recently touched first).
func (c *Cache) listEntries() ([]entryInfo, error) {
	dirEntries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	entries := make([]entryInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			c.log.Debug("skip unstattable cache entry", "name", de.Name(), "error", err)
			continue
		}
		entries = append(entries, entryInfo{name: de.Name(), modTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})
	return entries, nil
}
