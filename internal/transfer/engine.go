package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/sentinel"
)

// maxRedirects is the redirect depth after which a transfer is terminal.
const maxRedirects = 5

// copyBufferSize is the read buffer used while streaming the response body.
const copyBufferSize = 64 * 1024

// errTooManyRedirects is returned by the redirect policy when the chain
// exceeds maxRedirects. It surfaces to callers as a ValidationError.
const errTooManyRedirects = sentinel.Error("stopped after too many redirects")

// Config holds the configuration for a transfer Engine. All fields are
// optional.
type Config struct {
	Client *http.Client // HTTP client; a zero-timeout default is used when nil
	Logger *slog.Logger // Logger for operational messages (nil uses slog.Default)
}

// Options configures a single Transfer call.
type Options struct {
	// ExpectedSize is the caller-declared total size in bytes. When positive
	// and conflicting with the server-declared size, the transfer fails fast
	// before any byte is written. Zero means unknown.
	ExpectedSize int64
}

// Engine fetches one remote resource to one local path, resumable and
// cancellable. It performs no internal locking: exactly one concurrent
// writer per destination path is assumed, not enforced.
type Engine struct {
	client *http.Client
	log    *slog.Logger
}

// New creates an Engine. The configured client is shallow-copied so its
// redirect policy can be replaced without mutating the caller's client.
func New(cfg Config) *Engine {
	base := cfg.Client
	if base == nil {
		// No overall timeout: bundle downloads run for minutes to hours.
		// Cancellation and per-request deadlines come from the context.
		base = &http.Client{}
	}
	client := *base
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: &client, log: log}
}

// Transfer fetches url into destPath. If a matching partial transfer is on
// disk it resumes from the current file length; an already-complete
// destination (data present, sidecar absent) returns immediately without a
// request. Returns destPath on success.
//
// Failure semantics follow the taxonomy in internal/faults: validation
// failures purge partial state, network failures and cancellation preserve
// it for a later resume.
func (e *Engine) Transfer(
	ctx context.Context,
	url, destPath string,
	onProgress ProgressFunc,
	opts Options,
) (string, error) {
	if url == "" {
		return "", errors.New("transfer: url must not be empty")
	}
	if destPath == "" {
		return "", errors.New("transfer: destination path must not be empty")
	}

	// Sidecar absence plus data presence is the sole completion signal.
	if info, err := os.Stat(destPath); err == nil {
		if _, scErr := os.Stat(SidecarPath(destPath)); errors.Is(scErr, os.ErrNotExist) {
			e.log.Debug("transfer already complete", "dest", destPath, "size", info.Size())
			if onProgress != nil {
				var w rateWindow
				onProgress(w.snapshot(info.Size(), info.Size()))
			}
			return destPath, nil
		}
	}

	offset, validator := e.resumeState(url, destPath)

	resp, err := e.openStream(ctx, url, destPath, offset, validator)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// A 200 on a range request means the validator no longer matches; the
	// server sent the full content and the stale partial is discarded.
	if offset > 0 && resp.StatusCode == http.StatusOK {
		e.log.Info("resume rejected by server, restarting from zero", "url", url)
		offset = 0
	}

	total := serverTotal(resp, offset)

	if opts.ExpectedSize > 0 && total >= 0 && total != opts.ExpectedSize {
		purgeState(destPath)
		return "", &faults.ValidationError{
			Op:     "transfer",
			Reason: fmt.Sprintf("expected size %d conflicts with server-declared size %d", opts.ExpectedSize, total),
		}
	}

	// The sidecar is written before streaming begins: it is the only
	// durable signal distinguishing "complete" from "crashed mid-write".
	sc := &Sidecar{
		URL:          url,
		ExpectedSize: total,
		Validator:    responseValidator(resp, validator),
		StartedAt:    time.Now().UTC(),
	}
	if err := writeSidecar(destPath, sc); err != nil {
		return "", err
	}

	received, err := e.stream(ctx, resp.Body, url, destPath, offset, total, onProgress)
	if err != nil {
		return "", err
	}

	return destPath, e.finalize(destPath, received, total, onProgress)
}

// resumeState inspects the sidecar and partial file and returns the resume
// offset and validator. Mismatched or unstattable state is purged outright
// and the transfer starts from zero.
func (e *Engine) resumeState(url, destPath string) (int64, string) {
	sc, err := readSidecar(destPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.log.Warn("unreadable sidecar, purging partial state", "dest", destPath, "error", err)
			purgeState(destPath)
		}
		return 0, ""
	}
	info, err := os.Stat(destPath)
	if err != nil {
		e.log.Warn("sidecar without stattable data file, purging", "dest", destPath, "error", err)
		purgeState(destPath)
		return 0, ""
	}
	if sc.URL != url {
		e.log.Info("sidecar url mismatch, purging partial state", "dest", destPath, "have", sc.URL, "want", url)
		purgeState(destPath)
		return 0, ""
	}
	e.log.Debug("resuming transfer", "dest", destPath, "offset", info.Size())
	return info.Size(), sc.Validator
}

// openStream issues the GET request, with a conditional byte-range header
// when resuming, and maps request-phase failures onto the error taxonomy.
func (e *Engine) openStream(
	ctx context.Context,
	url, destPath string,
	offset int64,
	validator string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if validator != "" {
			req.Header.Set("If-Range", validator)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &faults.CancelledError{Op: "transfer"}
		}
		if errors.Is(err, errTooManyRedirects) {
			purgeState(destPath)
			return nil, &faults.ValidationError{
				Op:     "transfer",
				Reason: fmt.Sprintf("exceeded %d redirects fetching %s", maxRedirects, url),
			}
		}
		return nil, &faults.NetworkError{Op: "transfer", URL: url, Err: err}
	}

	ok := resp.StatusCode == http.StatusOK ||
		(offset > 0 && resp.StatusCode == http.StatusPartialContent)
	if !ok {
		_ = resp.Body.Close()
		return nil, &faults.NetworkError{
			Op:  "transfer",
			URL: url,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return resp, nil
}

// stream copies the response body into the destination file, emitting
// throttled progress from a rolling throughput window. It returns the
// cumulative received byte count including the resume offset.
func (e *Engine) stream(
	ctx context.Context,
	body io.Reader,
	url, destPath string,
	offset, total int64,
	onProgress ProgressFunc,
) (int64, error) {
	if err := fileutil.EnsureDirForFile(destPath); err != nil {
		return 0, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(destPath, flags, 0o644) //nolint:gosec // G304: path is caller-controlled by contract
	if err != nil {
		return 0, fmt.Errorf("open destination %s: %w", destPath, err)
	}

	received := offset
	var win rateWindow
	win.add(time.Now(), received)
	var lastEmit time.Time

	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = f.Close()
				return received, fmt.Errorf("write %s: %w", destPath, writeErr)
			}
			received += int64(n)
			now := time.Now()
			win.add(now, received)
			if onProgress != nil && now.Sub(lastEmit) >= progressMinInterval {
				lastEmit = now
				onProgress(win.snapshot(received, total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// File and sidecar stay on disk for a later resume.
			_ = f.Close()
			if ctx.Err() != nil {
				return received, &faults.CancelledError{Op: "transfer"}
			}
			return received, &faults.NetworkError{Op: "transfer", URL: url, Err: readErr}
		}
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return received, fmt.Errorf("sync %s: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		return received, fmt.Errorf("close %s: %w", destPath, err)
	}
	return received, nil
}

// finalize verifies the completed file against the known total, removes the
// sidecar, and emits the final progress snapshot. A size mismatch deletes
// both file and sidecar: no partial trust.
func (e *Engine) finalize(destPath string, received, total int64, onProgress ProgressFunc) error {
	if total >= 0 && received != total {
		purgeState(destPath)
		return &faults.ValidationError{
			Op:     "transfer",
			Reason: fmt.Sprintf("final size %d does not match declared size %d", received, total),
		}
	}
	if err := removeSidecar(destPath); err != nil {
		return err
	}
	if onProgress != nil {
		var w rateWindow
		onProgress(w.snapshot(received, received))
	}
	e.log.Debug("transfer complete", "dest", destPath, "size", received)
	return nil
}

// serverTotal derives the full entity size the server declared: the
// Content-Range total for a partial response, otherwise Content-Length.
// Returns -1 when the server declared nothing usable.
func serverTotal(resp *http.Response, offset int64) int64 {
	if offset > 0 && resp.StatusCode == http.StatusPartialContent {
		return parseContentRangeTotal(resp.Header.Get("Content-Range"))
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	return -1
}

// parseContentRangeTotal extracts the total from a "bytes start-end/total"
// header value. Returns -1 for an absent, unparseable, or "*" total.
func parseContentRangeTotal(value string) int64 {
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return -1
	}
	totalPart := value[idx+1:]
	if totalPart == "*" {
		return -1
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return -1
	}
	return total
}

// responseValidator picks the cache validator for the sidecar: the
// response ETag, falling back to Last-Modified, falling back to whatever
// the previous sidecar recorded.
func responseValidator(resp *http.Response, previous string) string {
	if v := resp.Header.Get("ETag"); v != "" {
		return v
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		return v
	}
	return previous
}
