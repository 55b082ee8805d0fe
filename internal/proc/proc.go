// Package proc abstracts the OS process operations browserd coordinates
// with: a non-destructive liveness probe, signal delivery, and process
// enumeration. Coordination code depends on the Prober and Lister
// interfaces only, so it stays platform-agnostic and testable with fakes.
package proc

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Signal is a platform-neutral termination request.
type Signal int

const (
	// Terminate asks a process to exit (SIGTERM on unix).
	Terminate Signal = iota
	// Kill forces a process to exit (SIGKILL on unix).
	Kill
)

// String returns the conventional name of the signal.
func (s Signal) String() string {
	switch s {
	case Terminate:
		return "SIGTERM"
	case Kill:
		return "SIGKILL"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Prober checks liveness and delivers signals.
type Prober interface {
	// Exists reports whether pid names a live process. It never affects the
	// process. Non-positive pids and zombies are not live.
	Exists(pid int) bool
	// Signal delivers sig to pid.
	Signal(pid int, sig Signal) error
}

// Process is a snapshot of one OS process.
type Process struct {
	PID     int
	PPID    int
	Cmdline string
}

// Lister enumerates the processes visible to the caller.
type Lister interface {
	Processes() ([]Process, error)
}

// OS is the Prober and Lister backed by the running operating system.
type OS struct{}

// System returns the OS-backed implementation.
func System() *OS {
	return &OS{}
}

// Exists implements Prober.
func (OS) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	return exists(pid)
}

// Signal implements Prober.
func (OS) Signal(pid int, sig Signal) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	if err := signal(pid, sig); err != nil {
		return fmt.Errorf("failed to send %s to pid %d: %w", sig, pid, err)
	}
	return nil
}

// Processes implements Lister. Processes that exit or deny access while
// being inspected are skipped.
func (OS) Processes() ([]Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || strings.TrimSpace(cmdline) == "" {
			continue
		}
		ppid, err := p.Ppid()
		if err != nil {
			ppid = 0
		}
		out = append(out, Process{
			PID:     int(p.Pid),
			PPID:    int(ppid),
			Cmdline: cmdline,
		})
	}
	return out, nil
}

// isZombie reports whether pid has exited but not been reaped. A zombie
// still answers signal 0, yet it will never do more work.
func isZombie(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return false
	}
	for _, s := range status {
		if s == process.Zombie {
			return true
		}
	}
	return false
}
