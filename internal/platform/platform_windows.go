//go:build windows

package platform

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type native struct{}

// FindPidsByPort parses netstat output for LISTENING entries on the port.
func (native) FindPidsByPort(ctx context.Context, port int) ([]int, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano", "-p", "TCP").Output()
	if err != nil {
		return nil, fmt.Errorf("netstat: %w", err)
	}

	suffix := fmt.Sprintf(":%d", port)
	seen := make(map[int]struct{})
	var pids []int
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Proto Local Foreign State PID
		if len(fields) < 5 || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil {
			continue
		}
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}
	return pids, nil
}

func (native) KillTree(pid int) error {
	if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run(); err != nil {
		return fmt.Errorf("taskkill pid %d: %w", pid, err)
	}
	return nil
}

func (native) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), fmt.Sprintf("\"%d\"", pid))
}

func (native) ProcessCommand(ctx context.Context, pid int) (string, error) {
	out, err := exec.CommandContext(ctx, "tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH").Output()
	if err != nil {
		return "", fmt.Errorf("tasklist pid %d: %w", pid, err)
	}
	fields := strings.SplitN(strings.TrimSpace(string(out)), ",", 2)
	if len(fields) == 0 {
		return "", fmt.Errorf("tasklist pid %d: no output", pid)
	}
	return strings.Trim(fields[0], "\""), nil
}
