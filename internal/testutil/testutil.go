// Package testutil provides testing utilities for browserd tests.
package testutil

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/browserd/internal/proc"
)

// SignalCall records one signal delivered through FakeProcs.
type SignalCall struct {
	PID    int
	Signal proc.Signal
}

// FakeProcess describes a simulated process.
type FakeProcess struct {
	PID     int
	PPID    int
	Cmdline string
	// IgnoreTerm keeps the process alive after Terminate.
	IgnoreTerm bool
	// Unkillable keeps the process alive after Kill as well.
	Unkillable bool

	alive bool
}

// FakeProcs is an in-memory process table implementing proc.Prober and
// proc.Lister. Terminate and Kill end a process immediately unless it is
// configured to resist. It is safe for concurrent use.
type FakeProcs struct {
	mu      sync.Mutex
	procs   map[int]*FakeProcess
	signals []SignalCall
	ListErr error
	nextPID int
}

// NewFakeProcs returns an empty process table.
func NewFakeProcs() *FakeProcs {
	return &FakeProcs{
		procs:   make(map[int]*FakeProcess),
		nextPID: 10000,
	}
}

// Add registers a live process and returns it for further configuration.
func (f *FakeProcs) Add(p FakeProcess) *FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.PID == 0 {
		f.nextPID++
		p.PID = f.nextPID
	}
	p.alive = true
	f.procs[p.PID] = &p
	return &p
}

// Spawn registers a live process with a fresh pid and returns the pid.
func (f *FakeProcs) Spawn() int {
	return f.Add(FakeProcess{}).PID
}

// DeadPID returns a pid that is guaranteed not to be live in the table.
func (f *FakeProcs) DeadPID() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextPID++
	return f.nextPID
}

// Exit marks pid as no longer live, as if it crashed.
func (f *FakeProcs) Exit(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.procs[pid]; ok {
		p.alive = false
	}
}

// Exists implements proc.Prober.
func (f *FakeProcs) Exists(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.procs[pid]
	return ok && p.alive
}

// Signal implements proc.Prober.
func (f *FakeProcs) Signal(pid int, sig proc.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signals = append(f.signals, SignalCall{PID: pid, Signal: sig})

	p, ok := f.procs[pid]
	if !ok || !p.alive {
		return fmt.Errorf("no such process: %d", pid)
	}
	switch sig {
	case proc.Terminate:
		if !p.IgnoreTerm && !p.Unkillable {
			p.alive = false
		}
	case proc.Kill:
		if !p.Unkillable {
			p.alive = false
		}
	}
	return nil
}

// Processes implements proc.Lister, returning live processes ordered by pid.
func (f *FakeProcs) Processes() ([]proc.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var out []proc.Process
	for _, p := range f.procs {
		if !p.alive {
			continue
		}
		out = append(out, proc.Process{PID: p.PID, PPID: p.PPID, Cmdline: p.Cmdline})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Signals returns a copy of every signal delivered so far.
func (f *FakeProcs) Signals() []SignalCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]SignalCall, len(f.signals))
	copy(out, f.signals)
	return out
}

// SignalsTo returns the signals delivered to pid, in order.
func (f *FakeProcs) SignalsTo(pid int) []proc.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []proc.Signal
	for _, s := range f.signals {
		if s.PID == pid {
			out = append(out, s.Signal)
		}
	}
	return out
}
