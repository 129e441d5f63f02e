// Package process supervises the forwarding daemon as a child process.
// Only one instance runs at a time; restarts are a stop followed by a start.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start when the daemon is already up.
var ErrAlreadyRunning = errors.New("proxy is already running")

// Manager controls the lifecycle of the forwarding daemon.
type Manager interface {
	// Start launches the daemon with the given config file. The port is
	// informational; the daemon reads its listen port from the config.
	// Returns the child PID, or ErrAlreadyRunning.
	Start(configPath string, port int) (int, error)

	// Stop kills the daemon. Stopping a stopped daemon is a no-op.
	Stop() error

	// Running reports whether the daemon is up.
	Running() bool

	// PID returns the daemon's process ID, or 0 when stopped.
	PID() int

	// UptimeSeconds returns seconds since start, or 0 when stopped.
	UptimeSeconds() int64
}

// Local runs the daemon binary on the same host.
type Local struct {
	binaryPath string

	mu        sync.Mutex
	child     *exec.Cmd
	startedAt time.Time
}

// NewLocal returns a Local manager for the daemon at binaryPath.
func NewLocal(binaryPath string) *Local {
	return &Local{binaryPath: binaryPath}
}

// Start spawns "<binary> --config <path>".
func (l *Local) Start(configPath string, _ int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.child != nil {
		return 0, ErrAlreadyRunning
	}

	cmd := exec.Command(l.binaryPath, "--config", configPath)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", l.binaryPath, err)
	}

	// Reap the child when it exits on its own, so a crashed daemon does
	// not leave a zombie or a stale Running() state.
	go func(c *exec.Cmd) {
		c.Wait() //nolint:errcheck
		l.mu.Lock()
		if l.child == c {
			l.child = nil
			l.startedAt = time.Time{}
		}
		l.mu.Unlock()
	}(cmd)

	l.child = cmd
	l.startedAt = time.Now()
	return cmd.Process.Pid, nil
}

// Stop kills the daemon if it is running.
func (l *Local) Stop() error {
	l.mu.Lock()
	child := l.child
	l.child = nil
	l.startedAt = time.Time{}
	l.mu.Unlock()

	if child == nil || child.Process == nil {
		return nil
	}
	if err := child.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill daemon: %w", err)
	}
	return nil
}

// Running reports whether a child process is tracked.
func (l *Local) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.child != nil
}

// PID returns the tracked child's process ID.
func (l *Local) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.child == nil || l.child.Process == nil {
		return 0
	}
	return l.child.Process.Pid
}

// UptimeSeconds returns seconds since the daemon was started.
func (l *Local) UptimeSeconds() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.child == nil {
		return 0
	}
	return int64(time.Since(l.startedAt).Seconds())
}
