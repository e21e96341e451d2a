package faults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestCancelledError_MatchesContextCanceled(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("launch: %w", &CancelledError{Op: "wait"})
	if !errors.Is(err, context.Canceled) {
		t.Error("CancelledError should match context.Canceled through errors.Is")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Error("CancelledError must not match context.DeadlineExceeded")
	}
}

func TestTimeoutError_MatchesDeadlineExceeded(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("launch: %w", &TimeoutError{Op: "wait", Elapsed: time.Minute})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("TimeoutError should match context.DeadlineExceeded through errors.Is")
	}
	if errors.Is(err, context.Canceled) {
		t.Error("TimeoutError must not match context.Canceled")
	}
}

func TestNetworkError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	err := &NetworkError{Op: "transfer", URL: "http://example.test/f", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("NetworkError should unwrap to its cause")
	}

	var netErr *NetworkError
	if !errors.As(fmt.Errorf("install: %w", err), &netErr) {
		t.Error("errors.As should find NetworkError in a wrapped chain")
	}
}

func TestExtractionError_IncludesDiagnostics(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{
		Archive:     "bundle.7z.001",
		Diagnostics: []string{"ERROR: CRC failed", "Sub items errors: 1"},
	}
	msg := err.Error()
	if !strings.Contains(msg, "CRC failed") {
		t.Errorf("message %q should contain captured diagnostics", msg)
	}
}

func TestPortConflictError_Message(t *testing.T) {
	t.Parallel()

	err := &PortConflictError{Port: 8188, PIDs: []int{4321}, KnownInstance: true}
	msg := err.Error()
	if !strings.Contains(msg, "8188") || !strings.Contains(msg, "4321") {
		t.Errorf("message %q should name the port and conflicting pids", msg)
	}
}
