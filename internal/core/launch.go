package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Comfy-Org/ComfyUI-Launcher/internal/faults"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/fileutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/netutil"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/platform"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/portlock"
	"github.com/Comfy-Org/ComfyUI-Launcher/internal/process"
)

// State is a launch lifecycle phase.
type State string

const (
	StateIdle                State = "idle"
	StatePortSelection       State = "port-selection"
	StateSpawning            State = "spawning"
	StateWaitingForReachable State = "waiting-for-reachable"
	StateReady               State = "ready"
	StateRunning             State = "running"
	StateStopped             State = "stopped"
	StateCrashed             State = "crashed"
)

// Config holds the shared collaborators a Launcher needs.
type Config struct {
	Ports   *netutil.PortRegistry // Required; shared across all launches in the process
	Caps    platform.Capabilities // nil uses platform.Native()
	LockDir string                // Required; directory holding port lock files
	Label   string                // Lock label prefix; empty uses "launcher"
	Logger  *slog.Logger          // nil uses the package logger
}

func (c Config) validate() error {
	if c.Ports == nil {
		return errors.New("launch: port registry must not be nil")
	}
	if c.LockDir == "" {
		return errors.New("launch: lock directory must not be empty")
	}
	return nil
}

// Launcher runs the launch state machine. One Launcher serves any number of
// sequential or concurrent Launch calls.
type Launcher struct {
	ports   *netutil.PortRegistry
	caps    platform.Capabilities
	lockDir string
	label   string
	log     *slog.Logger
}

// NewLauncher creates a Launcher with the given configuration.
func NewLauncher(cfg Config) (*Launcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	caps := cfg.Caps
	if caps == nil {
		caps = platform.Native()
	}
	label := cfg.Label
	if label == "" {
		label = "launcher"
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	return &Launcher{
		ports:   cfg.Ports,
		caps:    caps,
		lockDir: cfg.LockDir,
		label:   label,
		log:     log,
	}, nil
}

// Launch walks the state machine to a running instance: select a port,
// spawn the process detached, wait for it to accept connections, then write
// the port lock. Cancellation in the first three states aborts cleanly
// without writing a lock; a process that dies before reachability is
// reported with its log file paths so the caller can surface them.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec) (*Instance, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if err := fileutil.EnsureDir(l.lockDir); err != nil {
		return nil, err
	}
	if err := fileutil.EnsureDir(spec.WorkDir); err != nil {
		return nil, err
	}

	// PortSelection.
	if err := ctx.Err(); err != nil {
		return nil, &faults.CancelledError{Op: "launch"}
	}
	port, err := l.selectPort(ctx, &spec)
	if err != nil {
		return nil, err
	}
	SetPortArg(&spec, port)

	inst := &Instance{
		BaseProcess: process.NewBaseProcess(spec.Name, l.log.With("process", spec.Name, "port", port), spec.StopTimeout, l.caps.KillTree),
		spec:        spec,
		port:        port,
		label:       fmt.Sprintf("%s-%s", l.label, uuid.NewString()),
		lockDir:     l.lockDir,
		ports:       l.ports,
		state:       StateSpawning,
	}

	// Spawning.
	if err := ctx.Err(); err != nil {
		l.ports.Release(port)
		return nil, &faults.CancelledError{Op: "launch"}
	}
	cmd := exec.Command(spec.Command, spec.Args...) //nolint:gosec // G204: launching caller-specified binaries is this package's purpose
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if err := inst.SetupAndStart(cmd, spec.WorkDir); err != nil {
		l.ports.Release(port)
		return nil, fmt.Errorf("launch %s: %w", spec.Name, err)
	}
	// Captured before the instance is shared: Stop clears the BaseProcess
	// fields, so a Wait or PID racing a concurrent Stop must read stable
	// copies, never the BaseProcess directly.
	inst.pid = inst.BaseProcess.PID()
	inst.exited = inst.Exited()
	l.log.Info("process spawned", "process", spec.Name, "pid", inst.pid, "port", port)

	// WaitingForReachable.
	inst.setState(StateWaitingForReachable)
	target := net.JoinHostPort(spec.host(), strconv.Itoa(port))
	err = process.WaitReachable(ctx, target, process.ReachableConfig{
		Interval:      spec.ReadyInterval,
		Timeout:       spec.ReadyTimeout,
		Name:          spec.Name,
		Logger:        l.log,
		ProcessExited: inst.Exited(),
	})
	if err != nil {
		stdout, stderr := inst.Logs()
		if errors.Is(err, process.ErrProcessExited) {
			inst.setState(StateCrashed)
			err = fmt.Errorf("%w (logs: %s, %s)", err, stdout, stderr)
		}
		// Stop is a no-op for an already-dead process and tears down a
		// still-starting one; either way the port is freed.
		if stopErr := process.StopCloseAndNil(&inst, spec.StopTimeout); stopErr != nil {
			l.log.Warn("stop after failed launch", "process", spec.Name, "error", stopErr)
		}
		l.ports.Release(port)
		return nil, err
	}

	// Ready: the lock is written only once the process answers, so a lock
	// on disk always describes a reachable instance (or a crashed one whose
	// staleness the pid re-check catches).
	inst.setState(StateReady)
	rec := portlock.Record{PID: inst.pid, Label: inst.label, Timestamp: time.Now().UTC()}
	if err := portlock.Write(l.lockDir, port, rec); err != nil {
		if stopErr := process.StopCloseAndNil(&inst, spec.StopTimeout); stopErr != nil {
			l.log.Warn("stop after lock write failure", "process", spec.Name, "error", stopErr)
		}
		l.ports.Release(port)
		return nil, err
	}

	inst.setState(StateRunning)
	go inst.watch(inst.exited)
	l.log.Info("instance running", "process", spec.Name, "port", port, "label", inst.label)
	return inst, nil
}

// selectPort picks the listen port. An explicit port that is occupied is a
// PortConflictError carrying the listening pids; KnownInstance is true when
// a live port lock shows the listener was started by this tool.
func (l *Launcher) selectPort(ctx context.Context, spec *LaunchSpec) (int, error) {
	host := spec.host()
	if spec.Port == 0 {
		port, err := l.ports.FindAvailablePort(host, spec.PortStart, spec.PortEnd)
		if err != nil {
			return 0, err
		}
		return port, nil
	}

	port, err := l.ports.FindAvailablePort(host, spec.Port, spec.Port)
	if err == nil {
		return port, nil
	}
	if !errors.Is(err, netutil.ErrPortRangeExhausted) {
		return 0, err
	}

	pids, pidErr := l.caps.FindPidsByPort(ctx, spec.Port)
	if pidErr != nil {
		l.log.Debug("pid lookup for occupied port failed", "port", spec.Port, "error", pidErr)
	}
	var commands []string
	for _, pid := range pids {
		cmdline, cmdErr := l.caps.ProcessCommand(ctx, pid)
		if cmdErr != nil || cmdline == "" {
			continue
		}
		commands = append(commands, cmdline)
	}
	known := false
	if rec, readErr := portlock.Read(l.lockDir, spec.Port, l.caps, l.log); readErr == nil && rec != nil {
		known = strings.HasPrefix(rec.Label, l.label)
	}
	return 0, &faults.PortConflictError{Port: spec.Port, PIDs: pids, Commands: commands, KnownInstance: known}
}

var _ process.Stoppable = (*Instance)(nil)

// Instance is a launched, reachable process holding a port lock.
//
// pid and exited are stable copies of the BaseProcess fields, taken while
// the instance was still private to Launch. Stop clears the BaseProcess
// fields, so any method that may run concurrently with Stop reads the
// copies instead.
type Instance struct {
	process.BaseProcess

	spec    LaunchSpec
	port    int
	pid     int
	label   string
	lockDir string
	ports   *netutil.PortRegistry
	exited  <-chan struct{}

	mu    sync.Mutex
	state State
}

// Port returns the instance's listen port.
func (i *Instance) Port() int { return i.port }

// PID returns the launched process id. It is captured at spawn time and
// stays valid after Stop, so lock records and diagnostics can still name
// the process.
func (i *Instance) PID() int { return i.pid }

// Label returns the instance's lock label.
func (i *Instance) Label() string { return i.label }

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// Stop removes the port lock, terminates the process with the usual
// SIGTERM-then-SIGKILL escalation, and releases the in-process port
// reservation. Safe to call more than once.
func (i *Instance) Stop(timeout time.Duration) error {
	i.mu.Lock()
	alreadyDown := i.state == StateStopped || i.state == StateCrashed
	i.state = StateStopped
	i.mu.Unlock()

	// The lock goes first so a concurrent launcher never reads a lock for a
	// port whose owner is mid-shutdown.
	if err := portlock.Remove(i.lockDir, i.port); err != nil {
		i.Logger().Warn("remove port lock", "port", i.port, "error", err)
	}
	err := i.BaseProcess.Stop(timeout)
	if !alreadyDown {
		i.ports.Release(i.port)
	}
	return err
}

// Wait blocks until the process exits or ctx is done. A nil return means
// the process exited; the exit may be a crash, observable via State. Safe
// to call concurrently with Stop.
func (i *Instance) Wait(ctx context.Context) error {
	if i.exited == nil {
		return nil
	}
	select {
	case <-i.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch marks the instance crashed when the process exits on its own, and
// cleans up the lock and port reservation it can no longer be using.
func (i *Instance) watch(exited <-chan struct{}) {
	if exited == nil {
		return
	}
	<-exited

	i.mu.Lock()
	crashed := i.state == StateRunning
	if crashed {
		i.state = StateCrashed
	}
	i.mu.Unlock()
	if !crashed {
		return
	}

	i.Logger().Warn("process exited unexpectedly", "port", i.port)
	if err := portlock.Remove(i.lockDir, i.port); err != nil {
		i.Logger().Warn("remove port lock after crash", "port", i.port, "error", err)
	}
	i.ports.Release(i.port)
}
