package launcher

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("launcher: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("launcher: %s must not be empty", name))
	}
}

// Option configures a Service during construction via New.
// Each With* function returns an Option that sets a specific field.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// counts and durations). These panics are intentional: option values are
// typically compile-time constants or package-level variables, so an invalid
// value indicates a programmer error rather than a runtime condition. The
// pattern mirrors [regexp.MustCompile] - fail fast during initialization
// instead of returning errors that would be universally fatal anyway.
type Option func(*config)

// WithCacheDir sets the base directory for cached bundle content.
// If not set, defaults to filepath.Join(os.TempDir(), DefaultCacheDirName).
// Panics if dir is empty.
func WithCacheDir(dir string) Option {
	requireNonEmpty("cache directory", dir)
	return func(c *config) {
		c.CacheDir = dir
	}
}

// WithLockDir sets the directory holding per-port lock files. Independent
// launcher processes must point at the same directory to recognize each
// other's instances.
// Panics if dir is empty.
func WithLockDir(dir string) Option {
	requireNonEmpty("lock directory", dir)
	return func(c *config) {
		c.LockDir = dir
	}
}

// WithMaxCacheEntries sets the bound on cached bundle folders. Eviction
// runs after each successful download and removes the oldest-touched
// entries beyond the bound.
//
// Default: DefaultMaxCacheEntries.
//
// Panics if n <= 0.
func WithMaxCacheEntries(n int) Option {
	requirePositive("max cache entries", n)
	return func(c *config) {
		c.MaxCacheEntries = n
	}
}

// WithExtractBackend sets the decompression backend binary, as a bare name
// resolved in PATH or an explicit path.
// Panics if backend is empty.
func WithExtractBackend(backend string) Option {
	requireNonEmpty("extract backend", backend)
	return func(c *config) {
		c.ExtractBackend = backend
	}
}

// WithHTTPClient sets the HTTP client used for downloads. The client is
// shallow-copied so its redirect policy can be replaced; avoid a client
// with an overall Timeout, since bundle downloads run for minutes to hours
// and cancellation comes from the context.
// Panics if client is nil.
func WithHTTPClient(client *http.Client) Option {
	if client == nil {
		panic("launcher: http client must not be nil")
	}
	return func(c *config) {
		c.HTTPClient = client
	}
}

// WithReadyTimeout sets the maximum time a launched process gets to start
// accepting connections.
//
// Default: DefaultReadyTimeout.
//
// Panics if d <= 0.
func WithReadyTimeout(d time.Duration) Option {
	requirePositive("ready timeout", d)
	return func(c *config) {
		c.ReadyTimeout = d
	}
}

// WithReadyInterval sets the poll interval for reachability probes.
//
// Default: DefaultReadyInterval.
//
// Panics if d <= 0.
func WithReadyInterval(d time.Duration) Option {
	requirePositive("ready interval", d)
	return func(c *config) {
		c.ReadyInterval = d
	}
}

// WithStopTimeout sets the default graceful-stop timeout applied to
// launches whose spec does not set one.
//
// Default: DefaultStopTimeout.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) Option {
	requirePositive("stop timeout", d)
	return func(c *config) {
		c.StopTimeout = d
	}
}

// WithLabel sets the lock label prefix recorded in port locks. Instances
// whose lock labels share this prefix are reported as known instances on
// port conflicts.
//
// Default: DefaultLabel.
//
// Panics if label is empty.
func WithLabel(label string) Option {
	requireNonEmpty("label", label)
	return func(c *config) {
		c.Label = label
	}
}

// WithLogger sets the logger for all Service components. If not set, the
// package-level logger is used (see SetLogger).
// Panics if l is nil; use SetLogger(nil) to reset the package default.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("launcher: logger must not be nil")
	}
	return func(c *config) {
		c.Logger = l
	}
}
