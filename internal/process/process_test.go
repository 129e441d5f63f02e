package process

import (
	"errors"
	"testing"
	"time"
)

func TestLocalLifecycle(t *testing.T) {
	t.Parallel()

	l := NewLocal("/bin/sleep")
	// /bin/sleep ignores --config and the path, which happens to be a
	// number, so it just sleeps long enough for the assertions.
	pid, err := l.Start("60", 8317)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid == 0 {
		t.Fatal("pid = 0")
	}
	defer l.Stop()

	if !l.Running() {
		t.Fatal("not running after Start")
	}
	if l.PID() != pid {
		t.Fatalf("PID() = %d, want %d", l.PID(), pid)
	}
	if l.UptimeSeconds() < 0 {
		t.Fatalf("uptime = %d", l.UptimeSeconds())
	}

	if _, err := l.Start("60", 8317); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if l.Running() || l.PID() != 0 || l.UptimeSeconds() != 0 {
		t.Fatalf("state after Stop: running=%v pid=%d uptime=%d",
			l.Running(), l.PID(), l.UptimeSeconds())
	}

	// Stop is idempotent.
	if err := l.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestLocalStartBadBinary(t *testing.T) {
	t.Parallel()

	l := NewLocal("/nonexistent/daemon-binary")
	if _, err := l.Start("/tmp/config.yaml", 8317); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if l.Running() {
		t.Fatal("should not be running after failed start")
	}
}

func TestLocalReapsExitedChild(t *testing.T) {
	t.Parallel()

	l := NewLocal("/bin/true")
	if _, err := l.Start("/tmp/config.yaml", 8317); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for l.Running() {
		if time.Now().After(deadline) {
			t.Fatal("exited child still reported as running")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A new start succeeds once the old child is reaped.
	if _, err := l.Start("60", 8317); err != nil {
		t.Fatalf("restart after exit: %v", err)
	}
	l.Stop()
}

func TestNewLocalInitialState(t *testing.T) {
	t.Parallel()

	l := NewLocal("cliproxyapi")
	if l.Running() || l.PID() != 0 || l.UptimeSeconds() != 0 {
		t.Fatalf("fresh manager: running=%v pid=%d uptime=%d",
			l.Running(), l.PID(), l.UptimeSeconds())
	}
}
