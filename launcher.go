package launcher

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/cache"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/core"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/extract"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/install"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/netutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/platform"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/portlock"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/transfer"
)

// Phase identifies the stage an install progress update belongs to.
type Phase string

const (
	PhaseDownload Phase = Phase(install.PhaseDownload)
	PhaseExtract  Phase = Phase(install.PhaseExtract)
)

// ProgressFunc receives install progress updates. Percent is -1 when the
// total is unknown. Callbacks run on the installing goroutine and must not
// block.
type ProgressFunc func(phase Phase, percent float64, status string)

// RemoteFile is one file of a multi-file bundle. Size is the declared byte
// size, zero when unknown.
type RemoteFile struct {
	URL  string
	Name string
	Size int64
}

// LaunchSpec describes one application launch. Zero-valued readiness and
// stop fields inherit the Service configuration; a zero Port scans the
// default port range.
type LaunchSpec struct {
	Name    string   // Process name for logs and log file names
	Command string   // Binary path
	Args    []string // Arguments, without the binary name
	Env     []string // Extra environment, appended to the parent's
	WorkDir string   // Working directory; stdout/stderr logs land here

	Host      string // Listen host; empty means 127.0.0.1
	Port      int    // Explicit port; zero picks from the range
	PortStart int    // Scan range when Port is zero; zero uses DefaultPortStart
	PortEnd   int

	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	StopTimeout   time.Duration
}

// Service is the top-level entry point. Independent Services (including
// ones in other processes) coordinate through the cache and lock
// directories; within one Service, concurrent installs of the same cache
// key are deduplicated.
type Service struct {
	cfg       config
	cache     *cache.Cache
	installer *install.Installer
	launcher  *core.Launcher
	caps      platform.Capabilities

	// installs collapses concurrent installs of the same cache key into
	// one download, since the transfer engine assumes a single writer per
	// destination.
	installs singleflight.Group
}

// New creates a Service with the given options. Panics if any option
// receives an invalid value; see the individual With* functions.
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.Logger
	if log == nil {
		log = core.Logger()
	}

	contentCache, err := cache.New(cfg.CacheDir, log)
	if err != nil {
		return nil, err
	}
	installer, err := install.New(install.Config{
		Engine:          transfer.New(transfer.Config{Client: cfg.HTTPClient, Logger: log}),
		Cache:           contentCache,
		Extractor:       extract.New(extract.Config{Backend: cfg.ExtractBackend, Logger: log}),
		MaxCacheEntries: cfg.MaxCacheEntries,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	caps := platform.Native()
	coreLauncher, err := core.NewLauncher(core.Config{
		Ports:   netutil.NewPortRegistry(log),
		Caps:    caps,
		LockDir: cfg.LockDir,
		Label:   cfg.Label,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		cache:     contentCache,
		installer: installer,
		launcher:  coreLauncher,
		caps:      caps,
	}, nil
}

// InstallSingle downloads the archive at url into the cache entry for
// cacheKey and extracts it into destDir. Interrupted downloads resume on
// the next call. Concurrent calls with the same cacheKey share one
// execution; only the first caller's onProgress receives updates.
func (s *Service) InstallSingle(
	ctx context.Context,
	url, destDir, cacheKey string,
	expectedSize int64,
	onProgress ProgressFunc,
) error {
	_, err, _ := s.installs.Do("key:"+cacheKey, func() (any, error) {
		return nil, s.installer.InstallSingle(ctx, url, destDir, cacheKey, expectedSize, wrapProgress(onProgress))
	})
	return err
}

// InstallMulti downloads every file of a multi-file bundle into cacheDir in
// order and extracts the bundle's entry point into destDir, reporting one
// monotone aggregate progress stream. Concurrent calls with the same
// cacheDir share one execution.
func (s *Service) InstallMulti(
	ctx context.Context,
	files []RemoteFile,
	destDir, cacheDir string,
	onProgress ProgressFunc,
) error {
	remote := make([]install.RemoteFile, len(files))
	for i, f := range files {
		remote[i] = install.RemoteFile{URL: f.URL, Name: f.Name, Size: f.Size}
	}
	_, err, _ := s.installs.Do("dir:"+cacheDir, func() (any, error) {
		return nil, s.installer.InstallMulti(ctx, remote, destDir, cacheDir, wrapProgress(onProgress))
	})
	return err
}

// Launch starts the application described by spec and returns once it
// accepts connections and holds its port lock.
func (s *Service) Launch(ctx context.Context, spec LaunchSpec) (*Instance, error) {
	coreSpec := core.LaunchSpec{
		Name:          spec.Name,
		Command:       spec.Command,
		Args:          spec.Args,
		Env:           spec.Env,
		WorkDir:       spec.WorkDir,
		Host:          spec.Host,
		Port:          spec.Port,
		PortStart:     spec.PortStart,
		PortEnd:       spec.PortEnd,
		ReadyTimeout:  spec.ReadyTimeout,
		ReadyInterval: spec.ReadyInterval,
		StopTimeout:   spec.StopTimeout,
	}
	if coreSpec.Port == 0 && coreSpec.PortStart == 0 {
		coreSpec.PortStart, coreSpec.PortEnd = DefaultPortStart, DefaultPortEnd
	}
	if coreSpec.ReadyTimeout <= 0 {
		coreSpec.ReadyTimeout = s.cfg.ReadyTimeout
	}
	if coreSpec.ReadyInterval <= 0 {
		coreSpec.ReadyInterval = s.cfg.ReadyInterval
	}
	if coreSpec.StopTimeout <= 0 {
		coreSpec.StopTimeout = s.cfg.StopTimeout
	}

	inst, err := s.launcher.Launch(ctx, coreSpec)
	if err != nil {
		return nil, err
	}
	return &Instance{inst: inst, stopTimeout: coreSpec.StopTimeout}, nil
}

// PortOwner returns the live lock record holder for port: the owning pid
// and whether it was started by a launcher sharing our label prefix. A
// (0, false) return means no live instance claims the port.
func (s *Service) PortOwner(port int) (pid int, known bool) {
	rec, err := portlock.Read(s.cfg.LockDir, port, s.caps, nil)
	if err != nil || rec == nil {
		return 0, false
	}
	return rec.PID, hasLabelPrefix(rec.Label, s.cfg.Label)
}

// CleanCache evicts cache entries beyond the configured bound and sweeps
// stale partial downloads and dead port locks.
func (s *Service) CleanCache(ctx context.Context) error {
	if err := s.cache.Evict(ctx, s.cfg.MaxCacheEntries); err != nil {
		return err
	}
	if err := s.cache.CleanStalePartials(ctx, DefaultStalePartialMaxAge); err != nil {
		return err
	}
	return portlock.Sweep(ctx, s.cfg.LockDir, s.caps, nil)
}

// CacheDir returns the cache base directory.
func (s *Service) CacheDir() string { return s.cache.BaseDir() }

// Instance is a launched, reachable application process.
//
// The instance is detached from this process: it keeps running if the
// program exits without calling Stop.
type Instance struct {
	inst        *core.Instance
	stopTimeout time.Duration
}

// Port returns the instance's listen port.
func (i *Instance) Port() int { return i.inst.Port() }

// PID returns the instance's process id. It is captured at spawn time and
// stays valid after Stop.
func (i *Instance) PID() int { return i.inst.PID() }

// Label returns the instance's port lock label.
func (i *Instance) Label() string { return i.inst.Label() }

// Logs returns the instance's stdout and stderr log file paths.
func (i *Instance) Logs() (stdout, stderr string) { return i.inst.Logs() }

// Crashed reports whether the process exited without Stop being called.
func (i *Instance) Crashed() bool { return i.inst.State() == core.StateCrashed }

// Wait blocks until the process exits or ctx is done. A nil return means
// the process exited; Crashed distinguishes a crash from a Stop.
func (i *Instance) Wait(ctx context.Context) error { return i.inst.Wait(ctx) }

// Stop removes the port lock and terminates the process, escalating from a
// graceful signal to a kill of the whole process group after the timeout.
// A zero timeout uses the Service's configured stop timeout. Safe to call
// more than once.
func (i *Instance) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = i.stopTimeout
	}
	err := i.inst.Stop(timeout)
	i.inst.Close()
	return err
}

func hasLabelPrefix(label, prefix string) bool {
	return len(label) >= len(prefix) && label[:len(prefix)] == prefix
}

func wrapProgress(onProgress ProgressFunc) install.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	return func(phase install.Phase, percent float64, status string) {
		onProgress(Phase(phase), percent, status)
	}
}
