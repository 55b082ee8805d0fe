// Package registry keeps a best-effort, crash-tolerant directory of running
// instances, one JSON file per primary port.
//
// Every operation tolerates files that vanish or change underneath it. A
// record whose owner pid is no longer live is stale and is pruned by
// CleanStale rather than trusted.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/proc"
)

const (
	recordExt    = ".json"
	lockFileName = ".registry.lock"

	// DefaultLockTimeout bounds the wait for the registry's advisory lock.
	DefaultLockTimeout = 500 * time.Millisecond
	lockRetryDelay     = 10 * time.Millisecond
)

// Registry reads and writes instance records in a directory.
type Registry struct {
	// LockTimeout bounds how long writers wait for the advisory lock before
	// proceeding without it.
	LockTimeout time.Duration

	dir    string
	procs  proc.Prober
	logger *logging.Logger
}

// New returns a Registry rooted at dir. The directory is created on first
// Register. The logger may be nil.
func New(dir string, procs proc.Prober, logger *logging.Logger) *Registry {
	return &Registry{
		LockTimeout: DefaultLockTimeout,
		dir:         dir,
		procs:       procs,
		logger:      logging.OrNop(logger).WithComponent("registry"),
	}
}

// Dir returns the registry directory.
func (r *Registry) Dir() string {
	return r.dir
}

// RecordPath returns the file a record for port is stored in.
func (r *Registry) RecordPath(port int) string {
	return filepath.Join(r.dir, strconv.Itoa(port)+recordExt)
}

// Register creates or replaces the record for rec.Port.
func (r *Registry) Register(rec Record) error {
	if rec.Port < 1 || rec.Port > 65535 {
		return errors.NewValidationError("record port out of range").
			WithField("port").WithValue(rec.Port).WithCause(errors.ErrInvalidPort)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	return r.withLock("register", func() error {
		if err := r.write(rec); err != nil {
			return err
		}
		r.logger.Info("instance registered", "port", rec.Port, "pid", rec.PID, "label", rec.Label)
		return nil
	})
}

// Unregister removes the record for port. It never fails and is idempotent.
func (r *Registry) Unregister(port int) {
	if !r.dirExists() {
		return
	}
	_ = r.withLock("unregister", func() error {
		r.remove(port)
		return nil
	})
}

// UpdateChildPID sets the child pid on the record for port. A record that
// no longer exists is left absent.
func (r *Registry) UpdateChildPID(port, childPID int) error {
	if !r.dirExists() {
		return nil
	}
	return r.withLock("update", func() error {
		rec, err := r.read(port)
		if err != nil {
			if errors.Is(err, errors.ErrInstanceNotFound) {
				r.logger.Debug("record vanished before child pid update", "port", port)
				return nil
			}
			return err
		}
		rec.ChromePID = childPID
		if err := r.write(*rec); err != nil {
			return err
		}
		r.logger.Debug("child pid recorded", "port", port, "child_pid", childPID)
		return nil
	})
}

// Get returns the record for port. A missing record yields an error matching
// errors.ErrInstanceNotFound; an unparseable one matches
// errors.ErrRecordCorrupted.
func (r *Registry) Get(port int) (*Record, error) {
	return r.read(port)
}

// List returns every readable record sorted by port. Unreadable files are
// logged and skipped.
func (r *Registry) List() []Record {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read registry directory", "dir", r.dir, "error", err.Error())
		}
		return nil
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		port, ok := portFromName(entry.Name())
		if !ok {
			continue
		}
		rec, err := r.read(port)
		if err != nil {
			// Removed since ReadDir, or corrupt.
			if !errors.Is(err, errors.ErrInstanceNotFound) {
				r.logger.Warn("skipping unreadable record", "port", port, "error", err.Error())
			}
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Port < records[j].Port })
	return records
}

// UnregisterOwned removes the record for port only while it still belongs
// to pid. A record another process registered on the same port is kept.
// It reports whether a record was removed.
func (r *Registry) UnregisterOwned(port, pid int) bool {
	return r.removeIf("unregister", port, func(cur Record) bool {
		return cur.PID == pid
	})
}

// CleanStale removes every record whose owner pid is not live and returns
// the removed records. Each record is re-read under the lock before removal
// so one that was replaced after the scan survives.
func (r *Registry) CleanStale() []Record {
	var stale []Record
	for _, rec := range r.List() {
		if r.procs.Exists(rec.PID) {
			continue
		}
		removed := r.removeIf("clean", rec.Port, func(cur Record) bool {
			return cur.PID == rec.PID && cur.StartedAt.Equal(rec.StartedAt) && !r.procs.Exists(cur.PID)
		})
		if !removed {
			r.logger.Debug("stale record replaced before prune", "port", rec.Port, "pid", rec.PID)
			continue
		}
		r.logger.Warn("stale record pruned", "port", rec.Port, "pid", rec.PID)
		stale = append(stale, rec)
	}
	return stale
}

// removeIf deletes the record for port under the registry lock when match
// accepts its current contents. Missing and unreadable records are left
// alone.
func (r *Registry) removeIf(op string, port int, match func(Record) bool) bool {
	if !r.dirExists() {
		return false
	}
	removed := false
	_ = r.withLock(op, func() error {
		cur, err := r.read(port)
		if err != nil {
			if !errors.Is(err, errors.ErrInstanceNotFound) {
				r.logger.Warn("leaving unreadable record in place", "port", port, "error", err.Error())
			}
			return nil
		}
		if !match(*cur) {
			return nil
		}
		removed = r.remove(port)
		return nil
	})
	return removed
}

func (r *Registry) read(port int) (*Record, error) {
	path := r.RecordPath(port)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("instance", strconv.Itoa(port)).WithCause(errors.ErrInstanceNotFound)
		}
		return nil, errors.NewRegistryError("failed to read record", err).WithPath(path).WithPort(port)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewRegistryError("failed to parse record",
			errors.Join(errors.ErrRecordCorrupted, err)).WithPath(path).WithPort(port)
	}
	return &rec, nil
}

func (r *Registry) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return atomicWriteFile(r.RecordPath(rec.Port), data, 0o644)
}

func (r *Registry) remove(port int) bool {
	if err := os.Remove(r.RecordPath(port)); err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to remove record", "port", port, "error", err.Error())
		}
		return false
	}
	r.logger.Info("instance unregistered", "port", port)
	return true
}

func (r *Registry) dirExists() bool {
	info, err := os.Stat(r.dir)
	return err == nil && info.IsDir()
}

// withLock runs fn under the registry's advisory file lock. If the lock is
// unavailable fn still runs.
func (r *Registry) withLock(op string, fn func() error) error {
	timeout := r.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fl := flock.New(filepath.Join(r.dir, lockFileName))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		reason := "timed out"
		if err != nil {
			reason = err.Error()
		}
		r.logger.Warn("registry lock unavailable, proceeding unlocked", "op", op, "reason", reason)
		return fn()
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

// portFromName parses "<digits>.json".
func portFromName(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, recordExt)
	if !ok || base == "" {
		return 0, false
	}
	for _, c := range base {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	port, err := strconv.Atoi(base)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers see either the old or the new content.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
