package process

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
)

// DefaultReachableInterval is the default poll interval for WaitReachable.
const DefaultReachableInterval = 500 * time.Millisecond

// DefaultReachableTimeout is the default overall timeout for WaitReachable.
// Application bundles can take a long time to bind their port on first
// start, so the default is generous.
const DefaultReachableTimeout = 60 * time.Second

// Attempt describes one reachability probe, delivered to the OnAttempt
// callback before the probe runs.
type Attempt struct {
	Attempt int // 1-based
	Elapsed time.Duration
}

// ReachableConfig configures WaitReachable. Zero values pick the defaults.
type ReachableConfig struct {
	Interval      time.Duration
	Timeout       time.Duration
	Name          string // For logging; defaults to "process"
	Logger        *slog.Logger
	OnAttempt     func(Attempt)
	ProcessExited <-chan struct{} // If non-nil, abort immediately when closed
	Client        *http.Client    // For URL targets; nil uses a per-probe default
}

// WaitReachable polls until target accepts a connection. A target of the
// form "host:port" is probed with a TCP dial; an http:// or https:// target
// is probed with a GET, and any HTTP response counts as reachable (even a
// 5xx means the process is up and serving).
//
// The deadline elapsing returns a TimeoutError; the caller canceling ctx
// returns a CancelledError. A closed ProcessExited channel aborts with
// ErrProcessExited wrapped in the returned error.
func WaitReachable(ctx context.Context, target string, cfg ReachableConfig) error {
	if target == "" {
		return errors.New("wait reachable: target must not be empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReachableInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReachableTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "process"
	}

	probe := tcpProbe(target)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		probe = httpProbe(target, cfg.Client)
	}

	start := time.Now()
	err := WaitReady(ctx, WaitReadyConfig{
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		Name:          cfg.Name,
		Target:        target,
		Logger:        cfg.Logger,
		ProcessExited: cfg.ProcessExited,
	}, func(pollCtx context.Context, attempt int) (bool, error) {
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(Attempt{Attempt: attempt, Elapsed: time.Since(start)})
		}
		return probe(pollCtx), nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProcessExited) {
		return err
	}
	// The poll loop surfaces both its own deadline and caller cancellation
	// as context errors; the caller's ctx distinguishes them.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &faults.CancelledError{Op: "wait reachable"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &faults.TimeoutError{Op: "wait for " + cfg.Name + " on " + target, Elapsed: time.Since(start)}
	}
	return err
}

// tcpProbe reports whether a TCP connection to addr can be established.
func tcpProbe(addr string) func(context.Context) bool {
	var d net.Dialer
	return func(ctx context.Context) bool {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// httpProbe reports whether url answers a GET with any HTTP response.
func httpProbe(url string, client *http.Client) func(context.Context) bool {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}
}
