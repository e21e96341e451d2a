package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
)

// DefaultBackend is the decompression backend binary name used to locate
// it in PATH when no explicit path is configured.
const DefaultBackend = "7za"

// Progress is a point-in-time view of an extraction, derived from the
// backend's streamed percent indicator. ETA is -1 until a percent above
// zero has been observed.
type Progress struct {
	Percent float64
	Elapsed time.Duration
	ETA     time.Duration
}

// ProgressFunc receives extraction progress updates. It is invoked from
// the stdout-scanning goroutine; implementations must not block.
type ProgressFunc func(Progress)

// percentPattern matches the backend's streamed percent tokens, e.g. " 42%".
var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// nonFatalPattern matches diagnostic lines that report an unsupported
// compression method or filter. These are optional per platform and do not
// fail the extraction. The match is deliberately narrow; every captured
// line is preserved in the ExtractionError so wording drift in the backend
// stays observable.
var nonFatalPattern = regexp.MustCompile(`(?i)unsupported\s+(method|filter)`)

// Config holds the configuration for an Extractor.
type Config struct {
	Backend string       // Backend binary path or name (default: DefaultBackend)
	Logger  *slog.Logger // Logger for operational messages (nil uses slog.Default)
}

// Extractor unpacks archives via an external backend subprocess.
type Extractor struct {
	backend string
	log     *slog.Logger
}

// New creates an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	backend := cfg.Backend
	if backend == "" {
		backend = DefaultBackend
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{backend: backend, log: log}
}

// Extract unpacks archivePath into destDir. For a split archive, pass the
// first part; the backend follows subsequent parts by naming convention.
// Cancellation terminates the backend process and returns a
// CancelledError. Failures never touch the source archive, so a retry can
// re-extract without re-downloading.
func (x *Extractor) Extract(ctx context.Context, archivePath, destDir string, onProgress ProgressFunc) error {
	if archivePath == "" {
		return errors.New("extract: archive path must not be empty")
	}
	if destDir == "" {
		return errors.New("extract: destination directory must not be empty")
	}
	if err := fileutil.EnsureDir(destDir); err != nil {
		return err
	}

	// -bsp1 streams the percent indicator on stdout, -y answers prompts so
	// the backend can never block waiting for input.
	cmd := exec.CommandContext(ctx, x.backend, "x", archivePath, "-o"+destDir, "-y", "-bsp1", "-bso1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("extract: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("extract: stderr pipe: %w", err)
	}

	x.log.Info("extracting archive", "archive", archivePath, "dest", destDir, "backend", x.backend)
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("extract: start backend %s: %w", x.backend, err)
	}

	var diagnostics []string
	g := new(errgroup.Group)
	g.Go(func() error {
		x.scanPercent(stdout, start, onProgress)
		return nil
	})
	g.Go(func() error {
		diagnostics = collectDiagnostics(stderr)
		return nil
	})
	// Scanner goroutines only read the pipes; they never fail the group.
	_ = g.Wait()

	waitErr := cmd.Wait()
	return x.classify(ctx, archivePath, diagnostics, waitErr)
}

// classify turns the backend's exit status and diagnostic lines into the
// error taxonomy. Diagnostics consisting solely of unsupported-method
// lines are non-fatal even on a non-zero exit.
func (x *Extractor) classify(ctx context.Context, archivePath string, diagnostics []string, waitErr error) error {
	if ctx.Err() != nil {
		return &faults.CancelledError{Op: "extract"}
	}

	fatal := false
	for _, line := range diagnostics {
		if !nonFatalPattern.MatchString(line) {
			fatal = true
			break
		}
	}

	if fatal || (waitErr != nil && len(diagnostics) == 0) {
		return &faults.ExtractionError{Archive: archivePath, Diagnostics: diagnostics, Err: waitErr}
	}
	if len(diagnostics) > 0 {
		x.log.Warn("backend reported unsupported compression filters; continuing",
			"archive", archivePath, "diagnostics", diagnostics)
	}
	return nil
}

// scanPercent parses the backend's streamed percent tokens into progress
// updates. The stream uses carriage returns to redraw its progress line,
// so the scanner splits on both \r and \n.
func (x *Extractor) scanPercent(r io.Reader, start time.Time, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanProgressTokens)

	lastPercent := -1
	for scanner.Scan() {
		m := percentPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		percent, err := strconv.Atoi(m[1])
		if err != nil || percent < 0 || percent > 100 || percent == lastPercent {
			continue
		}
		lastPercent = percent
		if onProgress == nil {
			continue
		}

		elapsed := time.Since(start)
		eta := time.Duration(-1)
		if percent > 0 {
			eta = time.Duration(float64(elapsed) * float64(100-percent) / float64(percent))
		}
		onProgress(Progress{Percent: float64(percent), Elapsed: elapsed, ETA: eta})
	}
}

// collectDiagnostics gathers non-blank stderr lines.
func collectDiagnostics(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// scanProgressTokens is a bufio.SplitFunc that treats both \r and \n as
// token terminators, so in-place progress redraws are observed as they
// stream rather than buffered until process exit.
func scanProgressTokens(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
