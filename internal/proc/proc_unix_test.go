//go:build unix

package proc

import (
	"os/exec"
	"testing"
	"time"
)

func TestOS_TerminateChild(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	pid := cmd.Process.Pid
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	sys := System()
	if !sys.Exists(pid) {
		t.Fatalf("Exists(%d) = false for a running child", pid)
	}
	if err := sys.Signal(pid, Terminate); err != nil {
		t.Fatalf("Signal(Terminate) error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = sys.Signal(pid, Kill)
		t.Fatal("child did not exit after SIGTERM")
	}

	if sys.Exists(pid) {
		t.Errorf("Exists(%d) = true after the child was reaped", pid)
	}
}
