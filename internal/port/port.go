// Package port allocates the primary/secondary TCP port pair an instance
// listens on, probing by actually binding rather than by connecting.
package port

import (
	"fmt"
	"net"
	"strconv"

	"github.com/Iron-Ham/browserd/internal/errors"
)

const (
	// DefaultMaxAttempts is how many candidate pairs auto-selection tries.
	DefaultMaxAttempts = 20
	// DefaultHost is the interface ports are probed on.
	DefaultHost = "127.0.0.1"

	maxPort = 65535
)

// Pair is an allocated primary port and its paired secondary (CDP) port.
type Pair struct {
	Primary   int
	Secondary int
	// AutoSelected is true when Primary differs from the requested port.
	AutoSelected bool
}

// ProbeFunc reports whether port can currently be bound.
type ProbeFunc func(port int) bool

// Allocator finds free port pairs.
type Allocator struct {
	// MaxAttempts bounds auto-selection. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Host is the address probed. Empty means DefaultHost.
	Host string
	// PrimaryFlag and SecondaryFlag name the flags quoted in conflict errors.
	PrimaryFlag   string
	SecondaryFlag string
	// Probe overrides socket probing, for tests.
	Probe ProbeFunc
}

// NewAllocator returns an Allocator probing host with the given attempt budget.
func NewAllocator(host string, maxAttempts int) *Allocator {
	return &Allocator{
		MaxAttempts:   maxAttempts,
		Host:          host,
		PrimaryFlag:   "--port",
		SecondaryFlag: "--cdp-port",
	}
}

// Allocate returns a free pair starting from requested. When secondary is
// non-zero both ports are taken as given and any conflict is an error; when
// it is zero the secondary is requested+1 and, if that pair is busy, the
// primary advances by 2 until a free pair is found or the budget runs out.
func (a *Allocator) Allocate(requested, secondary int) (Pair, error) {
	if !valid(requested) {
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("port %d is outside 1-%d", requested, maxPort), errors.ErrInvalidPort).
			WithFlag(a.primaryFlag()).WithPorts(requested)
	}

	if secondary != 0 {
		return a.allocateExplicit(requested, secondary)
	}
	return a.allocateDerived(requested)
}

func (a *Allocator) allocateExplicit(primary, secondary int) (Pair, error) {
	if !valid(secondary) {
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("port %d is outside 1-%d", secondary, maxPort), errors.ErrInvalidPort).
			WithFlag(a.secondaryFlag()).WithPorts(secondary)
	}
	if secondary == primary {
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("primary and secondary ports must differ (both %d)", primary), errors.ErrInvalidPort).
			WithFlag(a.secondaryFlag()).WithPorts(primary)
	}

	primaryFree, secondaryFree := a.probe(primary), a.probe(secondary)
	switch {
	case !primaryFree && !secondaryFree:
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("ports %d and %d are already in use; choose others with %s and %s",
				primary, secondary, a.primaryFlag(), a.secondaryFlag()),
			errors.ErrPortInUse).WithFlag(a.primaryFlag()+"/"+a.secondaryFlag()).WithPorts(primary, secondary)
	case !primaryFree:
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("port %d is already in use; choose another with %s", primary, a.primaryFlag()),
			errors.ErrPortInUse).WithFlag(a.primaryFlag()).WithPorts(primary)
	case !secondaryFree:
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("port %d is already in use; choose another with %s", secondary, a.secondaryFlag()),
			errors.ErrPortInUse).WithFlag(a.secondaryFlag()).WithPorts(secondary)
	}

	return Pair{Primary: primary, Secondary: secondary}, nil
}

func (a *Allocator) allocateDerived(requested int) (Pair, error) {
	if requested+1 > maxPort {
		return Pair{}, errors.NewConfigurationError(
			fmt.Sprintf("port %d leaves no room for its paired port", requested), errors.ErrInvalidPort).
			WithFlag(a.primaryFlag()).WithPorts(requested)
	}

	attempts := a.maxAttempts()
	last := requested + 1
	tried := 0
	for i := 0; i < attempts; i++ {
		primary := requested + 2*i
		if primary+1 > maxPort {
			break
		}
		tried++
		last = primary + 1
		if a.probe(primary) && a.probe(primary+1) {
			return Pair{
				Primary:      primary,
				Secondary:    primary + 1,
				AutoSelected: primary != requested,
			}, nil
		}
	}

	return Pair{}, errors.NewConfigurationError(
		fmt.Sprintf("no free port pair in %d-%d after %d attempts; pass %s with a different base port",
			requested, last, tried, a.primaryFlag()),
		errors.ErrPortRangeExhausted).WithFlag(a.primaryFlag()).WithRange(requested, last)
}

func (a *Allocator) probe(port int) bool {
	if a.Probe != nil {
		return a.Probe(port)
	}
	return Available(a.host(), port)
}

func (a *Allocator) maxAttempts() int {
	if a.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return a.MaxAttempts
}

func (a *Allocator) host() string {
	if a.Host == "" {
		return DefaultHost
	}
	return a.Host
}

func (a *Allocator) primaryFlag() string {
	if a.PrimaryFlag == "" {
		return "--port"
	}
	return a.PrimaryFlag
}

func (a *Allocator) secondaryFlag() string {
	if a.SecondaryFlag == "" {
		return "--cdp-port"
	}
	return a.SecondaryFlag
}

// Available binds a TCP listener on host:port and releases it immediately.
// A port that merely refuses connections may still be bound by a listener
// on another interface, so connecting is not a substitute.
func Available(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func valid(p int) bool {
	return p >= 1 && p <= maxPort
}
