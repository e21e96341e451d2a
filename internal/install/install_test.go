package install

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/cache"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/extract"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/transfer"
)

// fakeBackend writes a shell script standing in for the decompression
// backend: it prints a percent, drops a marker in the -o destination, and
// exits cleanly.
func fakeBackend(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script requires a POSIX shell")
	}

	script := `#!/bin/sh
dest=""
for arg in "$@"; do
	case "$arg" in
		-o*) dest="${arg#-o}" ;;
	esac
done
echo "100%"
touch "$dest/extracted.marker"
exit 0
`
	path := filepath.Join(t.TempDir(), "fake7za")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake backend: %v", err)
	}
	return path
}

type update struct {
	phase   Phase
	percent float64
	status  string
}

func newInstaller(t *testing.T, maxEntries int) (*Installer, *cache.Cache) {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), nil)
	if err != nil {
		t.Fatalf("cache.New() error: %v", err)
	}
	ins, err := New(Config{
		Engine:          transfer.New(transfer.Config{}),
		Cache:           c,
		Extractor:       extract.New(extract.Config{Backend: fakeBackend(t)}),
		MaxCacheEntries: maxEntries,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return ins, c
}

func serveBytes(t *testing.T, files map[string][]byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstallSingle_DownloadsThenExtracts(t *testing.T) {
	t.Parallel()
	ins, c := newInstaller(t, 5)
	body := []byte(strings.Repeat("payload", 512))
	srv := serveBytes(t, map[string][]byte{"/bundle.7z": body}, nil)

	var updates []update
	destDir := t.TempDir()
	err := ins.InstallSingle(context.Background(), srv.URL+"/bundle.7z", destDir, "bundle", int64(len(body)),
		func(phase Phase, percent float64, status string) {
			updates = append(updates, update{phase, percent, status})
		})
	if err != nil {
		t.Fatalf("InstallSingle() error: %v", err)
	}

	artifact := filepath.Join(c.BaseDir(), "bundle", "bundle.7z")
	if info, err := os.Stat(artifact); err != nil || info.Size() != int64(len(body)) {
		t.Errorf("cached artifact missing or truncated: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "extracted.marker")); err != nil {
		t.Errorf("extraction output missing: %v", err)
	}

	sawDownload, sawExtract := false, false
	for _, u := range updates {
		switch u.phase {
		case PhaseDownload:
			sawDownload = true
			if sawExtract {
				t.Fatal("download progress reported after extraction began")
			}
		case PhaseExtract:
			sawExtract = true
		}
	}
	if !sawDownload || !sawExtract {
		t.Errorf("expected both phases in progress stream, got download=%v extract=%v", sawDownload, sawExtract)
	}
	last := updates[len(updates)-1]
	if last.phase != PhaseExtract || last.percent != 100 {
		t.Errorf("final update = %+v, want extract at 100%%", last)
	}
}

func TestInstallSingle_CachedArtifactSkipsDownload(t *testing.T) {
	t.Parallel()
	ins, c := newInstaller(t, 5)
	body := []byte("cached-bytes")
	var hits atomic.Int64
	srv := serveBytes(t, map[string][]byte{"/bundle.7z": body}, &hits)

	entry := filepath.Join(c.BaseDir(), "bundle")
	if err := os.MkdirAll(entry, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(entry, "bundle.7z"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	err := ins.InstallSingle(context.Background(), srv.URL+"/bundle.7z", t.TempDir(), "bundle", int64(len(body)), nil)
	if err != nil {
		t.Fatalf("InstallSingle() error: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0 for a complete cached artifact", hits.Load())
	}
}

func TestInstallSingle_WrongSizeArtifactIsRedownloaded(t *testing.T) {
	t.Parallel()
	ins, c := newInstaller(t, 5)
	body := []byte("the-real-artifact-content")
	var hits atomic.Int64
	srv := serveBytes(t, map[string][]byte{"/bundle.7z": body}, &hits)

	entry := filepath.Join(c.BaseDir(), "bundle")
	if err := os.MkdirAll(entry, 0o755); err != nil {
		t.Fatal(err)
	}
	artifact := filepath.Join(entry, "bundle.7z")
	if err := os.WriteFile(artifact, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := ins.InstallSingle(context.Background(), srv.URL+"/bundle.7z", t.TempDir(), "bundle", int64(len(body)), nil)
	if err != nil {
		t.Fatalf("InstallSingle() error: %v", err)
	}
	if hits.Load() == 0 {
		t.Error("size-mismatched artifact should have forced a fresh download")
	}
	if info, err := os.Stat(artifact); err != nil || info.Size() != int64(len(body)) {
		t.Errorf("artifact not replaced with full content: %v", err)
	}
}

func TestInstallSingle_EvictsBeyondBound(t *testing.T) {
	t.Parallel()
	ins, c := newInstaller(t, 1)
	body := []byte("bundle-bytes")
	srv := serveBytes(t, map[string][]byte{"/bundle.7z": body}, nil)

	stale := filepath.Join(c.BaseDir(), "old-entry")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	err := ins.InstallSingle(context.Background(), srv.URL+"/bundle.7z", t.TempDir(), "bundle", int64(len(body)), nil)
	if err != nil {
		t.Fatalf("InstallSingle() error: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("older entry should be evicted with max entries 1")
	}
	if _, err := os.Stat(filepath.Join(c.BaseDir(), "bundle")); err != nil {
		t.Errorf("freshly installed entry must survive its own eviction: %v", err)
	}
}

func TestInstallMulti_AggregateProgressIsMonotone(t *testing.T) {
	t.Parallel()
	ins, _ := newInstaller(t, 5)
	part1 := []byte(strings.Repeat("a", 3000))
	part2 := []byte(strings.Repeat("b", 1000))
	srv := serveBytes(t, map[string][]byte{
		"/bundle.7z.001": part1,
		"/bundle.7z.002": part2,
	}, nil)

	files := []RemoteFile{
		{URL: srv.URL + "/bundle.7z.001", Name: "bundle.7z.001", Size: int64(len(part1))},
		{URL: srv.URL + "/bundle.7z.002", Name: "bundle.7z.002", Size: int64(len(part2))},
	}

	var downloads []update
	destDir := t.TempDir()
	cacheDir := t.TempDir()
	err := ins.InstallMulti(context.Background(), files, destDir, cacheDir,
		func(phase Phase, percent float64, status string) {
			if phase == PhaseDownload {
				downloads = append(downloads, update{phase, percent, status})
			}
		})
	if err != nil {
		t.Fatalf("InstallMulti() error: %v", err)
	}

	prev := float64(0)
	for _, u := range downloads {
		if u.percent < prev {
			t.Fatalf("aggregate percent went backwards: %v then %v", prev, u.percent)
		}
		prev = u.percent
	}
	if prev != 100 {
		t.Errorf("final aggregate percent = %v, want 100", prev)
	}
	if _, err := os.Stat(filepath.Join(destDir, "extracted.marker")); err != nil {
		t.Errorf("extraction output missing: %v", err)
	}
}

func TestInstallMulti_CompleteFilesCreditBytesWithoutRequests(t *testing.T) {
	t.Parallel()
	ins, _ := newInstaller(t, 5)
	part1 := []byte(strings.Repeat("a", 2000))
	part2 := []byte(strings.Repeat("b", 2000))
	var hits atomic.Int64
	srv := serveBytes(t, map[string][]byte{"/bundle.7z.002": part2}, &hits)

	cacheDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cacheDir, "bundle.7z.001"), part1, 0o644); err != nil {
		t.Fatal(err)
	}

	files := []RemoteFile{
		{URL: srv.URL + "/bundle.7z.001", Name: "bundle.7z.001", Size: int64(len(part1))},
		{URL: srv.URL + "/bundle.7z.002", Name: "bundle.7z.002", Size: int64(len(part2))},
	}

	var first float64 = -1
	err := ins.InstallMulti(context.Background(), files, t.TempDir(), cacheDir,
		func(phase Phase, percent float64, _ string) {
			if phase == PhaseDownload && first < 0 {
				first = percent
			}
		})
	if err != nil {
		t.Fatalf("InstallMulti() error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (only the missing part)", hits.Load())
	}
	if first < 50 {
		t.Errorf("first aggregate percent = %v, want >= 50 (cached part credited up front)", first)
	}
}

func TestInstallMulti_RejectsBadFileLists(t *testing.T) {
	t.Parallel()
	ins, _ := newInstaller(t, 5)
	ctx := context.Background()

	if err := ins.InstallMulti(ctx, nil, t.TempDir(), t.TempDir(), nil); err == nil {
		t.Error("expected error for empty file list")
	}
	bad := []RemoteFile{{URL: "http://x/a", Name: "sub/dir.7z"}}
	if err := ins.InstallMulti(ctx, bad, t.TempDir(), t.TempDir(), nil); err == nil {
		t.Error("expected error for file name containing a path separator")
	}
}

func TestFileNameFromURL(t *testing.T) {
	t.Parallel()

	name, err := fileNameFromURL("https://host/dir/bundle.7z?sig=abc")
	if err != nil || name != "bundle.7z" {
		t.Errorf("fileNameFromURL() = (%q, %v), want (\"bundle.7z\", nil)", name, err)
	}
	if _, err := fileNameFromURL("https://host/"); err == nil {
		t.Error("expected error for url without a file name")
	}
}
