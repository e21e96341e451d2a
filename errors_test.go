package launcher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	launcher "github.com/Comfy-Org/ComfyUI-Launcher"
)

// TestSentinelErrors verifies that every exported sentinel error:
//   - implements the error interface (Error() returns a non-empty string)
//   - matches itself via errors.Is, directly and wrapped via fmt.Errorf %w
//   - does not match a different error
func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	allErrors := map[string]error{
		"ErrPortRangeExhausted": launcher.ErrPortRangeExhausted,
		"ErrProcessExited":      launcher.ErrProcessExited,
	}

	for name, sentinel := range allErrors {
		name, sentinel := name, sentinel
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if sentinel == nil {
				t.Fatalf("%s is nil", name)
			}
			if msg := sentinel.Error(); msg == "" {
				t.Errorf("%s.Error() returned empty string", name)
			}
			if !errors.Is(sentinel, sentinel) {
				t.Errorf("errors.Is(%s, %s) = false, want true (self-match)", name, name)
			}
			wrapped := fmt.Errorf("wrapping: %w", sentinel)
			if !errors.Is(wrapped, sentinel) {
				t.Errorf("errors.Is(wrapped %s) = false, want true", name)
			}
			if errors.Is(sentinel, errors.New("some other error")) {
				t.Errorf("errors.Is(%s, errors.New(...)) = true, want false", name)
			}
		})
	}
}

// TestCancelledErrorMatchesContextCanceled covers the contract that a
// user-initiated abort is distinguishable with the standard context
// sentinel, even through wrapping.
func TestCancelledErrorMatchesContextCanceled(t *testing.T) {
	t.Parallel()

	var err error = &launcher.CancelledError{Op: "download"}
	if !errors.Is(err, context.Canceled) {
		t.Error("CancelledError must match context.Canceled")
	}

	wrapped := fmt.Errorf("install: %w", err)
	var cerr *launcher.CancelledError
	if !errors.As(wrapped, &cerr) {
		t.Error("errors.As must find CancelledError through wrapping")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Error("CancelledError must not match context.DeadlineExceeded")
	}
}

// TestTimeoutErrorMatchesDeadlineExceeded covers the contract that an
// elapsed readiness deadline is distinguishable from a cancellation.
func TestTimeoutErrorMatchesDeadlineExceeded(t *testing.T) {
	t.Parallel()

	var err error = &launcher.TimeoutError{Op: "wait reachable", Elapsed: 3 * time.Second}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("TimeoutError must match context.DeadlineExceeded")
	}
	if errors.Is(err, context.Canceled) {
		t.Error("TimeoutError must not match context.Canceled")
	}
}

// TestErrorTypesAreMatchableViaAs verifies the re-exported error types
// survive errors.As through a wrapping chain, which is how callers are
// expected to branch on failure class.
func TestErrorTypesAreMatchableViaAs(t *testing.T) {
	t.Parallel()

	t.Run("ValidationError", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("install: %w", &launcher.ValidationError{Op: "download", Reason: "size conflict"})
		var verr *launcher.ValidationError
		if !errors.As(wrapped, &verr) {
			t.Fatal("errors.As failed to find ValidationError")
		}
		if verr.Reason != "size conflict" {
			t.Errorf("Reason = %q, want \"size conflict\"", verr.Reason)
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection reset")
		wrapped := fmt.Errorf("install: %w", &launcher.NetworkError{Op: "stream", URL: "http://x", Err: cause})
		var nerr *launcher.NetworkError
		if !errors.As(wrapped, &nerr) {
			t.Fatal("errors.As failed to find NetworkError")
		}
		if !errors.Is(wrapped, cause) {
			t.Error("NetworkError must unwrap to its cause")
		}
	})

	t.Run("ExtractionError", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("install: %w", &launcher.ExtractionError{
			Archive:     "bundle.7z",
			Diagnostics: []string{"ERROR: CRC failed"},
		})
		var xerr *launcher.ExtractionError
		if !errors.As(wrapped, &xerr) {
			t.Fatal("errors.As failed to find ExtractionError")
		}
		if len(xerr.Diagnostics) != 1 {
			t.Errorf("Diagnostics = %v, want one line", xerr.Diagnostics)
		}
	})

	t.Run("PortConflictError", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("launch: %w", &launcher.PortConflictError{Port: 8188, PIDs: []int{4242}, KnownInstance: true})
		var perr *launcher.PortConflictError
		if !errors.As(wrapped, &perr) {
			t.Fatal("errors.As failed to find PortConflictError")
		}
		if perr.Port != 8188 || !perr.KnownInstance {
			t.Errorf("conflict = %+v, want port 8188 and known instance", perr)
		}
	})
}
