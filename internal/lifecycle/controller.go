// Package lifecycle stops registered instances and sweeps up browser
// processes whose owning instance is gone.
//
// Stopping escalates from Terminate to Kill with fixed-interval polling
// against a deadline. A process that survives every step is reported in the
// Result rather than returned as an error.
package lifecycle

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/proc"
	"github.com/Iron-Ham/browserd/internal/registry"
)

// Default timings for Stop.
const (
	DefaultGracePeriod  = 5 * time.Second
	DefaultKillTimeout  = 2 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// maxAncestry bounds the parent walk when deciding whether a process
// descends from a protected one.
const maxAncestry = 64

// Options tune a Controller.
type Options struct {
	// GracePeriod is how long the owner gets to exit after Terminate.
	GracePeriod time.Duration
	// KillTimeout is how long a process gets to disappear after Kill.
	KillTimeout time.Duration
	// PollInterval is the liveness polling period while waiting.
	PollInterval time.Duration
	// OrphanMarker is the command-line substring identifying browser
	// processes we launched. Empty disables the process scan.
	OrphanMarker string
	// SelfPID is never signalled. Zero means the current process.
	SelfPID int
}

// DefaultOptions returns the standard timings with no orphan marker.
func DefaultOptions() Options {
	return Options{
		GracePeriod:  DefaultGracePeriod,
		KillTimeout:  DefaultKillTimeout,
		PollInterval: DefaultPollInterval,
		SelfPID:      os.Getpid(),
	}
}

// Result is the outcome of stopping one instance.
type Result struct {
	Port    int    `json:"port"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Stale is set for records pruned because their owner was already dead.
	Stale bool `json:"stale,omitempty"`
}

// Controller stops instances recorded in a registry.
type Controller struct {
	reg    *registry.Registry
	procs  proc.Prober
	lister proc.Lister
	opts   Options
	logger *logging.Logger
}

// NewController returns a Controller. lister may be nil, which disables the
// orphan process scan. Zero timings in opts fall back to the defaults.
func NewController(reg *registry.Registry, procs proc.Prober, lister proc.Lister, opts Options, logger *logging.Logger) *Controller {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SelfPID == 0 {
		opts.SelfPID = os.Getpid()
	}
	return &Controller{
		reg:    reg,
		procs:  procs,
		lister: lister,
		opts:   opts,
		logger: logging.OrNop(logger).WithComponent("lifecycle"),
	}
}

// Stop stops the instance registered on port and removes its record.
func (c *Controller) Stop(port int) Result {
	logger := c.logger.WithPort(port)

	rec, err := c.reg.Get(port)
	if err != nil {
		if errors.Is(err, errors.ErrInstanceNotFound) {
			return Result{Port: port, Message: fmt.Sprintf("instance on port %d is not registered", port)}
		}
		logger.Warn("cannot stop instance with unreadable record", "error", err.Error())
		return Result{Port: port, Message: fmt.Sprintf("record for port %d is unreadable: %v", port, err)}
	}

	if !c.procs.Exists(rec.PID) {
		childGone := c.killChild(rec.ChromePID)
		c.reg.UnregisterOwned(port, rec.PID)
		logger.Info("instance already stopped", "pid", rec.PID)
		if !childGone {
			return Result{Port: port, Message: fmt.Sprintf(
				"instance on port %d was already stopped but child pid %d is still running", port, rec.ChromePID)}
		}
		return Result{Port: port, Success: true, Message: fmt.Sprintf(
			"instance on port %d was already stopped (pid %d)", port, rec.PID)}
	}

	ownerGone := c.terminate(rec.PID, logger)
	childGone := c.killChild(rec.ChromePID)
	c.reg.UnregisterOwned(port, rec.PID)

	if ownerGone && childGone {
		logger.Info("instance stopped", "pid", rec.PID, "child_pid", rec.ChromePID)
		return Result{Port: port, Success: true, Message: fmt.Sprintf("stopped instance on port %d (pid %d)", port, rec.PID)}
	}

	logger.Error("instance did not stop", "pid", rec.PID, "owner_stopped", ownerGone,
		"child_pid", rec.ChromePID, "child_stopped", childGone)
	return Result{Port: port, Message: fmt.Sprintf("instance on port %d did not stop: owner pid %d %s, child %s",
		port, rec.PID, describe(ownerGone), describeChild(rec.ChromePID, childGone))}
}

// StopAll prunes stale records, then stops every remaining instance in port
// order.
func (c *Controller) StopAll() []Result {
	var results []Result

	for _, rec := range c.reg.CleanStale() {
		res := Result{Port: rec.Port, Success: true, Stale: true, Message: fmt.Sprintf(
			"removed stale record for port %d (pid %d not running)", rec.Port, rec.PID)}
		if !c.killChild(rec.ChromePID) {
			res.Success = false
			res.Message = fmt.Sprintf("removed stale record for port %d but child pid %d is still running",
				rec.Port, rec.ChromePID)
		}
		results = append(results, res)
	}

	for _, rec := range c.reg.List() {
		results = append(results, c.Stop(rec.Port))
	}
	return results
}

// CleanOrphanedChrome prunes stale records, kills their children, and then
// kills any process carrying the orphan marker that no live instance owns.
// It returns the number of processes it killed.
func (c *Controller) CleanOrphanedChrome() int {
	killed := 0
	for _, rec := range c.reg.CleanStale() {
		if rec.ChromePID > 0 && c.procs.Exists(rec.ChromePID) && c.killChild(rec.ChromePID) {
			c.logger.Info("killed child of stale instance", "port", rec.Port, "child_pid", rec.ChromePID)
			killed++
		}
	}

	if c.lister == nil || c.opts.OrphanMarker == "" {
		return killed
	}

	procs, err := c.lister.Processes()
	if err != nil {
		c.logger.Warn("process scan failed", "error", err.Error())
		return killed
	}

	protected := map[int]bool{c.opts.SelfPID: true}
	for _, rec := range c.reg.List() {
		protected[rec.PID] = true
		if rec.ChromePID > 0 {
			protected[rec.ChromePID] = true
		}
	}
	parents := make(map[int]int, len(procs))
	for _, p := range procs {
		parents[p.PID] = p.PPID
	}

	for _, p := range procs {
		if !strings.Contains(p.Cmdline, c.opts.OrphanMarker) {
			continue
		}
		if descendsFrom(p.PID, parents, protected) {
			continue
		}
		// An earlier kill may have taken this helper down with its parent.
		if !c.procs.Exists(p.PID) {
			continue
		}
		if c.kill(p.PID) {
			c.logger.Info("killed orphaned browser process", "pid", p.PID)
			killed++
		} else {
			c.logger.Warn("orphaned browser process survived kill", "pid", p.PID)
		}
	}
	return killed
}

// terminate asks pid to exit, escalating to Kill after the grace period.
// It reports whether the process is gone.
func (c *Controller) terminate(pid int, logger *logging.Logger) bool {
	if err := c.procs.Signal(pid, proc.Terminate); err != nil {
		logger.Debug("terminate failed", "pid", pid, "error", err.Error())
	}
	if c.waitForExit(pid, c.opts.GracePeriod) {
		return true
	}

	logger.Warn("process ignored terminate, killing", "pid", pid, "grace_period", c.opts.GracePeriod.String())
	return c.kill(pid)
}

// killChild kills a recorded child pid if it is live. It reports whether the
// child is gone; an unknown child (pid 0) counts as gone.
func (c *Controller) killChild(pid int) bool {
	if pid <= 0 || !c.procs.Exists(pid) {
		return true
	}
	return c.kill(pid)
}

func (c *Controller) kill(pid int) bool {
	if err := c.procs.Signal(pid, proc.Kill); err != nil {
		c.logger.Debug("kill failed", "pid", pid, "error", err.Error())
	}
	return c.waitForExit(pid, c.opts.KillTimeout)
}

// waitForExit polls until pid is gone or timeout elapses.
func (c *Controller) waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !c.procs.Exists(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(c.opts.PollInterval)
	}
}

// descendsFrom reports whether pid or any of its ancestors is protected.
func descendsFrom(pid int, parents map[int]int, protected map[int]bool) bool {
	seen := make(map[int]bool)
	for i := 0; i < maxAncestry && pid > 0 && !seen[pid]; i++ {
		if protected[pid] {
			return true
		}
		seen[pid] = true
		next, ok := parents[pid]
		if !ok {
			return false
		}
		pid = next
	}
	return false
}

func describe(gone bool) string {
	if gone {
		return "stopped"
	}
	return "still running"
}

func describeChild(pid int, gone bool) string {
	if pid <= 0 {
		return "not recorded"
	}
	return fmt.Sprintf("pid %d %s", pid, describe(gone))
}
