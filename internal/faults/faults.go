package faults

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ValidationError marks state that is provably wrong: a declared size
// conflicting with the server's, a malformed redirect chain, or a final
// file whose size does not match the known total. The operation that
// raises it has already purged any corrupted partial state; retrying
// without changing the inputs cannot succeed.
type ValidationError struct {
	Op     string // operation that failed, e.g. "transfer"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed: %s", e.Op, e.Reason)
}

// NetworkError wraps a connection or stream failure. Resumable on-disk
// state (partial file plus sidecar) is preserved; a later call to the
// same operation naturally resumes. Retry policy belongs to the caller.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CancelledError marks a user-initiated abort. It is distinct from
// NetworkError so cancellations are never reported as failures, and
// distinct from TimeoutError so readiness deadlines are never reported
// as user intent.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: cancelled", e.Op)
}

// Is reports a match for context.Canceled so callers using
// errors.Is(err, context.Canceled) see through the taxonomy.
func (e *CancelledError) Is(target error) bool {
	return target == context.Canceled
}

// ExtractionError carries the diagnostic lines captured from the
// decompression backend. The source cache artifact is left intact, so a
// retry can re-extract without re-downloading.
type ExtractionError struct {
	Archive     string
	Diagnostics []string
	Err         error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s", e.Archive)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Diagnostics) > 0 {
		msg += ": " + strings.Join(e.Diagnostics, "; ")
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PortConflictError reports a port that is already in use. PIDs lists the
// processes the OS reports as listening on the port, and Commands the
// command lines the OS could resolve for them. KnownInstance is true when
// a live lock record shows the listener is another instance of this tool,
// letting the caller choose kill-and-retry versus pick-another-port.
type PortConflictError struct {
	Port          int
	PIDs          []int
	Commands      []string
	KnownInstance bool
}

func (e *PortConflictError) Error() string {
	msg := fmt.Sprintf("port %d is in use by pids %v", e.Port, e.PIDs)
	if len(e.Commands) > 0 {
		msg += fmt.Sprintf(" (%s)", strings.Join(e.Commands, "; "))
	}
	return msg + fmt.Sprintf(" (known instance: %v)", e.KnownInstance)
}

// TimeoutError marks a bounded wait that elapsed. On readiness polling the
// target process may still come up later, so this is neither a
// CancelledError nor a hard NetworkError.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Elapsed.Round(time.Millisecond))
}

// Is reports a match for context.DeadlineExceeded so callers using
// errors.Is(err, context.DeadlineExceeded) see through the taxonomy.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}
