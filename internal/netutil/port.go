package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/sentinel"
)

// ErrPortRangeExhausted is returned when no port in the configured range
// can be bound. It is terminal: rescanning the same range cannot succeed
// until a listener goes away.
const ErrPortRangeExhausted = sentinel.Error("no available port in range")

// PortRegistry tracks ports currently reserved by this process to prevent
// the TOCTOU race where two concurrent launches bind-probe the same free
// port, both see it available, and both spawn onto it (the probe listener
// is closed before the child binds).
//
// One PortRegistry is shared via dependency injection with every launch in
// the process. Cross-process coordination is the port lock files' job.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a new PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve attempts to register a port in the registry.
// Returns true if the port was successfully reserved, false if already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// FindAvailablePort scans [start, end] in ascending order and returns the
// first port that is neither reserved in the registry nor bound by any
// process, probing each candidate with a short-lived listener on host.
//
// The returned port is registered in the registry; callers must call
// Release when the port is no longer needed (launch failed or the process
// stopped). Exhausting the range returns ErrPortRangeExhausted.
func (r *PortRegistry) FindAvailablePort(host string, start, end int) (int, error) {
	if start < 1 || end > 65535 || start > end {
		return 0, fmt.Errorf("invalid port range %d-%d", start, end)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	for port := start; port <= end; port++ {
		if !r.reserve(port) {
			r.log.Debug("port reserved by a concurrent launch, skipping", "port", port)
			continue
		}
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			r.Release(port)
			r.log.Debug("port occupied, skipping", "port", port, "error", err)
			continue
		}
		// The registry entry keeps the port claimed in-process between this
		// close and the child process binding it.
		if err := l.Close(); err != nil {
			r.log.Warn("close probe listener", "port", port, "error", err)
		}
		return port, nil
	}
	return 0, fmt.Errorf("scan ports %d-%d on %s: %w", start, end, host, ErrPortRangeExhausted)
}
