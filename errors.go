package launcher

import (
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/netutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/process"
)

// Error types re-exported for errors.As matching. Each type encodes its
// recovery contract; see the package documentation.
type (
	// ValidationError marks provably wrong state (size conflicts, broken
	// redirect chains, truncated completions). Corrupted partial state has
	// been purged; retrying without changing the inputs cannot succeed.
	ValidationError = faults.ValidationError

	// NetworkError wraps a connection or stream failure. Resumable on-disk
	// state is preserved; a retried install resumes where it stopped.
	NetworkError = faults.NetworkError

	// CancelledError marks a user-initiated abort. It matches
	// errors.Is(err, context.Canceled).
	CancelledError = faults.CancelledError

	// ExtractionError carries the decompression backend's diagnostic
	// lines. The cached archive is intact; only extraction needs repeating.
	ExtractionError = faults.ExtractionError

	// PortConflictError reports a port already in use, with the listening
	// pids, their command lines where resolvable, and whether a live lock
	// marks the listener as one of ours.
	PortConflictError = faults.PortConflictError

	// TimeoutError marks an elapsed readiness deadline. It matches
	// errors.Is(err, context.DeadlineExceeded).
	TimeoutError = faults.TimeoutError
)

// Sentinel errors for error inspection with errors.Is.
const (
	// ErrPortRangeExhausted is returned by Launch when no port in the
	// configured range can be bound.
	ErrPortRangeExhausted = netutil.ErrPortRangeExhausted
)

// ErrProcessExited is returned by Launch when the process dies before it
// becomes reachable; the error message names the process's log files.
var ErrProcessExited = process.ErrProcessExited
