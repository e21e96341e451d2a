package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LaunchSpec describes one application launch.
type LaunchSpec struct {
	Name    string   // Process name for logs and log file names
	Command string   // Binary path
	Args    []string // Arguments, without the binary name
	Env     []string // Extra environment, appended to the parent's
	WorkDir string   // Working directory; stdout/stderr logs land here

	Host      string // Listen host; empty means 127.0.0.1
	Port      int    // Explicit port; zero picks from the range
	PortStart int    // Scan range when Port is zero
	PortEnd   int

	ReadyTimeout  time.Duration // Zero uses the process package default
	ReadyInterval time.Duration
	StopTimeout   time.Duration // Zero uses process.DefaultStopTimeout
}

func (s *LaunchSpec) validate() error {
	if s.Name == "" {
		return errors.New("launch: name must not be empty")
	}
	if s.Command == "" {
		return errors.New("launch: command must not be empty")
	}
	if s.WorkDir == "" {
		return errors.New("launch: working directory must not be empty")
	}
	if s.Port == 0 && (s.PortStart < 1 || s.PortEnd < s.PortStart) {
		return fmt.Errorf("launch: invalid port range %d-%d", s.PortStart, s.PortEnd)
	}
	return nil
}

func (s *LaunchSpec) host() string {
	if s.Host == "" {
		return "127.0.0.1"
	}
	return s.Host
}

// SetPortArg makes the spec's argument list carry the selected port: the
// value following an existing --port flag (or a --port= form) is replaced,
// otherwise --port <port> is appended. The launched application owns the
// flag's meaning; the launcher only keeps it consistent with the port it
// probed and locked.
func SetPortArg(spec *LaunchSpec, port int) {
	p := strconv.Itoa(port)
	for i, arg := range spec.Args {
		if arg == "--port" {
			if i+1 < len(spec.Args) {
				spec.Args[i+1] = p
				return
			}
			spec.Args = append(spec.Args, p)
			return
		}
		if strings.HasPrefix(arg, "--port=") {
			spec.Args[i] = "--port=" + p
			return
		}
	}
	spec.Args = append(spec.Args, "--port", p)
}
