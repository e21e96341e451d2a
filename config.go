package launcher

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// config holds the assembled Service configuration. Options mutate it; the
// With* constructors validate eagerly, so an assembled config is always
// usable.
type config struct {
	CacheDir        string
	LockDir         string
	MaxCacheEntries int
	ExtractBackend  string
	HTTPClient      *http.Client
	ReadyTimeout    time.Duration
	ReadyInterval   time.Duration
	StopTimeout     time.Duration
	Label           string
	Logger          *slog.Logger
}

// defaultConfig returns a config populated with all default values.
func defaultConfig() config {
	return config{
		CacheDir:        filepath.Join(os.TempDir(), DefaultCacheDirName),
		LockDir:         filepath.Join(os.TempDir(), DefaultLockDirName),
		MaxCacheEntries: DefaultMaxCacheEntries,
		ExtractBackend:  DefaultExtractBackend,
		ReadyTimeout:    DefaultReadyTimeout,
		ReadyInterval:   DefaultReadyInterval,
		StopTimeout:     DefaultStopTimeout,
		Label:           DefaultLabel,
	}
}
