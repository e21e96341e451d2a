package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/cache"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/extract"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/transfer"
)

// Phase identifies the stage an install progress update belongs to.
type Phase string

const (
	PhaseDownload Phase = "download"
	PhaseExtract  Phase = "extract"
)

// ProgressFunc receives install progress updates. Percent is -1 when the
// total is unknown. Status is short human-readable text naming the file or
// step in flight.
type ProgressFunc func(phase Phase, percent float64, status string)

// RemoteFile is one file of a multi-file bundle. Size is the declared byte
// size, zero when unknown; aggregate percent across the batch is reported
// only when every file declares a size.
type RemoteFile struct {
	URL  string
	Name string
	Size int64
}

// Config holds the configuration for an Installer.
type Config struct {
	Engine          *transfer.Engine
	Cache           *cache.Cache
	Extractor       *extract.Extractor
	MaxCacheEntries int
	Logger          *slog.Logger // nil uses slog.Default
}

func (c Config) validate() error {
	if c.Engine == nil {
		return errors.New("install: transfer engine must not be nil")
	}
	if c.Cache == nil {
		return errors.New("install: cache must not be nil")
	}
	if c.Extractor == nil {
		return errors.New("install: extractor must not be nil")
	}
	if c.MaxCacheEntries < 1 {
		return fmt.Errorf("install: max cache entries must be at least 1, got %d", c.MaxCacheEntries)
	}
	return nil
}

// Installer runs the download-then-extract sequence against a shared
// content cache.
type Installer struct {
	engine     *transfer.Engine
	cache      *cache.Cache
	extractor  *extract.Extractor
	maxEntries int
	log        *slog.Logger
}

// New creates an Installer with the given configuration.
func New(cfg Config) (*Installer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Installer{
		engine:     cfg.Engine,
		cache:      cfg.Cache,
		extractor:  cfg.Extractor,
		maxEntries: cfg.MaxCacheEntries,
		log:        log,
	}, nil
}

// InstallSingle downloads the archive at url into the cache entry for
// cacheKey, then extracts it into destDir. An artifact already complete in
// the cache skips the download. expectedSize of zero means unknown. Any
// stage failure aborts the install; populated cache content is preserved
// so a retry resumes instead of restarting.
func (ins *Installer) InstallSingle(
	ctx context.Context,
	url, destDir, cacheKey string,
	expectedSize int64,
	onProgress ProgressFunc,
) error {
	entryDir, err := ins.cache.Resolve(cacheKey)
	if err != nil {
		return err
	}
	name, err := fileNameFromURL(url)
	if err != nil {
		return err
	}
	artifact := filepath.Join(entryDir, name)

	if artifactComplete(artifact, expectedSize) {
		ins.log.Debug("artifact already cached", "key", cacheKey, "artifact", artifact)
		emit(onProgress, PhaseDownload, 100, name)
	} else {
		ins.discardWrongSize(artifact, expectedSize)
		if err := fileutil.EnsureDir(entryDir); err != nil {
			return err
		}
		_, err := ins.engine.Transfer(ctx, url, artifact, func(p transfer.Progress) {
			emit(onProgress, PhaseDownload, p.Percent, downloadStatus(name, p))
		}, transfer.Options{ExpectedSize: expectedSize})
		if err != nil {
			return err
		}
	}

	if err := ins.cache.Touch(cacheKey); err != nil {
		return err
	}
	if err := ins.cache.Evict(ctx, ins.maxEntries); err != nil {
		return err
	}

	return ins.extractTo(ctx, artifact, destDir, onProgress)
}

// InstallMulti downloads every file of a bundle into cacheDir in order,
// then extracts the bundle's entry point into destDir. Progress is a
// single monotone aggregate across the batch; files already complete in
// the cache credit their bytes without a request. Eviction runs once,
// after all files are present.
func (ins *Installer) InstallMulti(
	ctx context.Context,
	files []RemoteFile,
	destDir, cacheDir string,
	onProgress ProgressFunc,
) error {
	if len(files) == 0 {
		return errors.New("install: file list must not be empty")
	}
	names := make([]string, len(files))
	for i, f := range files {
		if f.URL == "" || f.Name == "" {
			return fmt.Errorf("install: file %d must declare both url and name", i)
		}
		if f.Name != filepath.Base(f.Name) {
			return fmt.Errorf("install: file name %q must not contain path separators", f.Name)
		}
		names[i] = f.Name
	}
	if err := fileutil.EnsureDir(cacheDir); err != nil {
		return err
	}

	// Aggregate totals only exist when every file declares a size.
	var total int64
	for _, f := range files {
		if f.Size <= 0 {
			total = -1
			break
		}
		total += f.Size
	}

	agg := &aggregate{onProgress: onProgress, total: total, batch: len(files)}
	for i, f := range files {
		dest := filepath.Join(cacheDir, f.Name)
		if artifactComplete(dest, f.Size) {
			ins.log.Debug("bundle file already cached", "name", f.Name)
			agg.finishFile(i, f)
			continue
		}
		ins.discardWrongSize(dest, f.Size)
		_, err := ins.engine.Transfer(ctx, f.URL, dest, func(p transfer.Progress) {
			agg.fileProgress(i, f, p)
		}, transfer.Options{ExpectedSize: f.Size})
		if err != nil {
			return err
		}
		agg.finishFile(i, f)
	}

	// Bump recency before eviction so the freshly populated entry is never
	// its own victim.
	now := time.Now()
	if err := os.Chtimes(cacheDir, now, now); err != nil {
		ins.log.Warn("touch bundle cache dir failed", "dir", cacheDir, "error", err)
	}
	if err := ins.cache.Evict(ctx, ins.maxEntries); err != nil {
		return err
	}

	entry := extract.EntryPoint(names)
	return ins.extractTo(ctx, filepath.Join(cacheDir, entry), destDir, onProgress)
}

// extractTo runs the extraction phase, forwarding backend percents.
func (ins *Installer) extractTo(ctx context.Context, archive, destDir string, onProgress ProgressFunc) error {
	return ins.extractor.Extract(ctx, archive, destDir, func(p extract.Progress) {
		emit(onProgress, PhaseExtract, p.Percent, filepath.Base(archive))
	})
}

// discardWrongSize removes a completed artifact whose size contradicts the
// declared size, forcing a fresh download. Files still carrying a transfer
// sidecar are left alone: those resume.
func (ins *Installer) discardWrongSize(artifact string, expectedSize int64) {
	if expectedSize <= 0 {
		return
	}
	info, err := os.Stat(artifact)
	if err != nil {
		return
	}
	if _, err := os.Stat(transfer.SidecarPath(artifact)); !errors.Is(err, os.ErrNotExist) {
		return
	}
	if info.Size() == expectedSize {
		return
	}
	ins.log.Warn("cached artifact size mismatch, discarding",
		"artifact", artifact, "have", info.Size(), "want", expectedSize)
	if err := os.Remove(artifact); err != nil {
		ins.log.Warn("discard mismatched artifact failed", "artifact", artifact, "error", err)
	}
}

// aggregate folds per-file transfer progress into one monotone batch-wide
// percent stream.
type aggregate struct {
	onProgress ProgressFunc
	total      int64 // -1 when any file size is unknown
	batch      int
	credited   int64 // bytes of files already finished
	last       float64
}

func (a *aggregate) fileProgress(index int, f RemoteFile, p transfer.Progress) {
	if a.onProgress == nil {
		return
	}
	percent := float64(-1)
	if a.total > 0 {
		percent = float64(a.credited+p.Received) / float64(a.total) * 100
	}
	a.emit(percent, batchStatus(index, a.batch, downloadStatus(f.Name, p)))
}

// finishFile credits the file's bytes to the aggregate. Files with unknown
// declared size contribute nothing to the percent, which stays -1 anyway.
func (a *aggregate) finishFile(index int, f RemoteFile) {
	a.credited += f.Size
	if a.onProgress == nil {
		return
	}
	percent := float64(-1)
	if a.total > 0 {
		percent = float64(a.credited) / float64(a.total) * 100
	}
	a.emit(percent, batchStatus(index, a.batch, f.Name))
}

// emit clamps the aggregate percent to be non-decreasing. A resumed file
// restarting from zero after a failed validator must not walk the batch
// percent backwards.
func (a *aggregate) emit(percent float64, status string) {
	if percent >= 0 {
		if percent < a.last {
			percent = a.last
		}
		if percent > 100 {
			percent = 100
		}
		a.last = percent
	}
	a.onProgress(PhaseDownload, percent, status)
}

func emit(onProgress ProgressFunc, phase Phase, percent float64, status string) {
	if onProgress != nil {
		onProgress(phase, percent, status)
	}
}

// artifactComplete reports whether the artifact on disk is a finished
// download: data present, no transfer sidecar, and the declared size (when
// known) matches.
func artifactComplete(path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if _, err := os.Stat(transfer.SidecarPath(path)); !errors.Is(err, os.ErrNotExist) {
		return false
	}
	return size <= 0 || info.Size() == size
}

// fileNameFromURL derives the on-disk artifact name from the URL path.
func fileNameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &faults.ValidationError{Op: "install", Reason: fmt.Sprintf("unparseable url %q", rawURL)}
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", &faults.ValidationError{Op: "install", Reason: fmt.Sprintf("url %q carries no file name", rawURL)}
	}
	return name, nil
}

func downloadStatus(name string, p transfer.Progress) string {
	if p.BytesPerSec > 0 {
		return fmt.Sprintf("%s @ %.1f MB/s", name, p.BytesPerSec/1e6)
	}
	return name
}

func batchStatus(index, batch int, inner string) string {
	return fmt.Sprintf("[%d/%d] %s", index+1, batch, inner)
}
