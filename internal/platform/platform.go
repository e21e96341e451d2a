package platform

import "context"

// Capabilities is the OS-specific process and port inspection surface.
type Capabilities interface {
	// FindPidsByPort returns the pids of processes listening on the TCP
	// port. An empty slice means no listener was found.
	FindPidsByPort(ctx context.Context, port int) ([]int, error)

	// KillTree forcefully terminates the process and its descendants.
	KillTree(pid int) error

	// ProcessAlive reports whether the pid refers to a running process.
	ProcessAlive(pid int) bool

	// ProcessCommand returns the command line or image name of the pid.
	ProcessCommand(ctx context.Context, pid int) (string, error)
}

// Native returns the Capabilities implementation for the current OS.
func Native() Capabilities {
	return native{}
}
