package launcher

import "time"

// Default configuration values for New.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultReadyTimeout).
const (
	// DefaultCacheDirName is the directory name under the system temp
	// directory where downloaded bundle content is cached. The full path is
	// computed as filepath.Join(os.TempDir(), DefaultCacheDirName).
	DefaultCacheDirName = "comfyui-launcher-cache"

	// DefaultLockDirName is the directory name under the system temp
	// directory holding the per-port lock files that coordinate independent
	// launcher processes.
	DefaultLockDirName = "comfyui-launcher-locks"

	// DefaultMaxCacheEntries is the bound on cached bundle folders. The
	// oldest-touched entries beyond the bound are evicted after each
	// successful download.
	DefaultMaxCacheEntries = 5

	// DefaultExtractBackend is the binary name used to locate the
	// decompression backend in PATH.
	DefaultExtractBackend = "7za"

	// DefaultStalePartialMaxAge is how old an abandoned partial download
	// must be before CleanCache sweeps it.
	DefaultStalePartialMaxAge = 24 * time.Hour

	// DefaultReadyTimeout is the maximum time allowed for a launched
	// process to start accepting connections. First launches of large
	// bundles can be slow, so the default is generous.
	DefaultReadyTimeout = 60 * time.Second

	// DefaultReadyInterval is the poll interval for reachability probes.
	DefaultReadyInterval = 500 * time.Millisecond

	// DefaultStopTimeout is the maximum time allowed for a launched process
	// to stop gracefully before the kill escalation.
	DefaultStopTimeout = 10 * time.Second

	// DefaultLabel is the lock label prefix identifying instances started
	// by this library.
	DefaultLabel = "launcher"

	// DefaultPortStart and DefaultPortEnd bound the port scan when a
	// LaunchSpec does not pin an explicit port.
	DefaultPortStart = 8188
	DefaultPortEnd   = 8288
)
