package testutil

import (
	"fmt"
	"sync"

	"github.com/proxypal/proxypal/internal/process"
)

// FakePID is the process ID reported by FakeProcess after a start.
const FakePID = 12345

// FakeProcess is a process.Manager that tracks state in memory and records
// calls like "start:/data/proxy-config.yaml:8317" and "stop".
type FakeProcess struct {
	mu       sync.Mutex
	running  bool
	pid      int
	StartErr error

	calls []string
}

// Calls returns a copy of the recorded call log.
func (f *FakeProcess) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// SetRunning forces the running state, for tests that begin mid-lifecycle.
func (f *FakeProcess) SetRunning(running bool, pid int) {
	f.mu.Lock()
	f.running = running
	if running {
		f.pid = pid
	} else {
		f.pid = 0
	}
	f.mu.Unlock()
}

// Start records the call and marks the daemon running, honoring StartErr
// and process.ErrAlreadyRunning.
func (f *FakeProcess) Start(configPath string, port int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("start:%s:%d", configPath, port))
	if f.StartErr != nil {
		return 0, f.StartErr
	}
	if f.running {
		return 0, process.ErrAlreadyRunning
	}
	f.running = true
	f.pid = FakePID
	return f.pid, nil
}

// Stop records the call and marks the daemon stopped.
func (f *FakeProcess) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	f.running = false
	f.pid = 0
	return nil
}

// Running reports the fake state.
func (f *FakeProcess) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// PID reports the fake PID.
func (f *FakeProcess) PID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pid
}

// UptimeSeconds reports a fixed 120 seconds while running.
func (f *FakeProcess) UptimeSeconds() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return 120
	}
	return 0
}
