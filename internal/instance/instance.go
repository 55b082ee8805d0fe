// Package instance runs the startup and shutdown flow of one browserd
// instance: allocate a port pair, claim the profile directory, register,
// and undo all three on close.
package instance

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/port"
	"github.com/Iron-Ham/browserd/internal/profile"
	"github.com/Iron-Ham/browserd/internal/registry"
)

// Deps are the collaborators an instance is started with.
type Deps struct {
	Ports    *port.Allocator
	Locks    *profile.Manager
	Registry *registry.Registry
	Logger   *logging.Logger
	// PID is the owner pid recorded in the registry. Zero means this process.
	PID int
}

// Options describe the instance to start.
type Options struct {
	// Port is the requested primary port.
	Port int
	// CDPPort pins the secondary port. Zero derives it from Port.
	CDPPort    int
	ProfileDir string
	Label      string
	Mode       string
	Headless   bool
}

// Instance is a started instance. Close releases everything Start claimed.
type Instance struct {
	deps   Deps
	lock   *profile.Lock
	pair   port.Pair
	logger *logging.Logger

	mu     sync.Mutex
	rec    registry.Record
	closed bool
}

// Start allocates ports, locks the profile and registers the instance. If a
// later step fails the earlier ones are undone.
func Start(deps Deps, opts Options) (*Instance, error) {
	if opts.ProfileDir == "" {
		return nil, errors.NewValidationError("profile directory is required").WithField("profile")
	}
	if deps.PID == 0 {
		deps.PID = os.Getpid()
	}
	logger := logging.OrNop(deps.Logger).WithComponent("instance")

	pair, err := deps.Ports.Allocate(opts.Port, opts.CDPPort)
	if err != nil {
		return nil, err
	}
	if pair.AutoSelected {
		logger.Info("port auto-selected", "requested", opts.Port, "port", pair.Primary, "cdp_port", pair.Secondary)
	}

	lock, err := deps.Locks.Acquire(opts.ProfileDir, pair.Primary)
	if err != nil {
		return nil, err
	}

	rec := registry.Record{
		PID:        deps.PID,
		Port:       pair.Primary,
		CDPPort:    pair.Secondary,
		Mode:       opts.Mode,
		Label:      opts.Label,
		Headless:   opts.Headless,
		StartedAt:  time.Now().UTC(),
		ProfileDir: opts.ProfileDir,
	}
	if err := deps.Registry.Register(rec); err != nil {
		lock.Release()
		return nil, fmt.Errorf("failed to register instance: %w", err)
	}

	logger.WithPort(pair.Primary).Info("instance started", "profile", opts.ProfileDir, "label", opts.Label)
	return &Instance{
		deps:   deps,
		lock:   lock,
		pair:   pair,
		rec:    rec,
		logger: logger.WithPort(pair.Primary),
	}, nil
}

// Ports returns the allocated port pair.
func (i *Instance) Ports() port.Pair {
	return i.pair
}

// Record returns a snapshot of the registered record.
func (i *Instance) Record() registry.Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rec
}

// SetChildPID records the pid of the spawned browser process.
func (i *Instance) SetChildPID(pid int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	if err := i.deps.Registry.UpdateChildPID(i.pair.Primary, pid); err != nil {
		return err
	}
	i.rec.ChromePID = pid
	return nil
}

// Close unregisters the instance and releases the profile lock. A record
// another owner has since written for the port is left in place. Safe to
// call multiple times.
func (i *Instance) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}
	i.closed = true

	i.deps.Registry.UnregisterOwned(i.pair.Primary, i.rec.PID)
	i.lock.Release()
	i.logger.Info("instance closed", "uptime", registry.FormatUptime(i.rec.StartedAt))
}
