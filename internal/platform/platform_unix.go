//go:build unix

package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type native struct{}

// FindPidsByPort shells out to lsof, which is the one portable way to map
// a TCP listener back to pids across the unix family. A non-zero exit with
// no output means no listener, not a failure.
func (native) FindPidsByPort(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-ti", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof tcp:%d: %w", port, err)
	}

	var pids []int
	for _, line := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// KillTree signals the process group so grandchildren forked by the target
// die with it. Launched processes get their own group via Setsid, making
// pid double as the group id.
func (native) KillTree(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		// No dedicated group; fall back to the single process.
		if killErr := unix.Kill(pid, unix.SIGKILL); killErr != nil && !errors.Is(killErr, unix.ESRCH) {
			return fmt.Errorf("kill pid %d: %w", pid, killErr)
		}
	}
	return nil
}

// ProcessAlive probes with signal 0. EPERM still means the pid exists, it
// just belongs to another user.
func (native) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (native) ProcessCommand(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "command=").Output()
	if err != nil {
		return "", fmt.Errorf("ps -p %d: %w", pid, err)
	}
	return strings.TrimSpace(string(out)), nil
}
