package proc

import (
	"os"
	"testing"
)

func TestSignal_String(t *testing.T) {
	tests := []struct {
		sig  Signal
		want string
	}{
		{Terminate, "SIGTERM"},
		{Kill, "SIGKILL"},
		{Signal(7), "signal(7)"},
	}
	for _, tt := range tests {
		if got := tt.sig.String(); got != tt.want {
			t.Errorf("Signal(%d).String() = %q, want %q", int(tt.sig), got, tt.want)
		}
	}
}

func TestOS_ExistsSelf(t *testing.T) {
	if !System().Exists(os.Getpid()) {
		t.Error("Exists(self) = false, want true")
	}
}

func TestOS_ExistsRejectsNonPositive(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if System().Exists(pid) {
			t.Errorf("Exists(%d) = true, want false", pid)
		}
	}
}

func TestOS_SignalRejectsNonPositive(t *testing.T) {
	if err := System().Signal(0, Terminate); err == nil {
		t.Error("Signal(0) should fail rather than signal the process group")
	}
}

func TestOS_ProcessesIncludesSelf(t *testing.T) {
	procs, err := System().Processes()
	if err != nil {
		t.Skipf("process enumeration unavailable: %v", err)
	}
	self := os.Getpid()
	for _, p := range procs {
		if p.PID == self {
			if p.Cmdline == "" {
				t.Error("own process has empty command line")
			}
			return
		}
	}
	t.Errorf("own pid %d not found among %d processes", self, len(procs))
}
