// Package profile gives one process exclusive use of a browser profile
// directory through a PID lock file, recovering directories whose former
// owner crashed without releasing them.
package profile

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/proc"
)

// LockFileName is the name of the lock file within a profile directory.
const LockFileName = ".browserd.lock"

// DefaultCorruptGrace is how long an unparseable lock file is presumed to be
// mid-write by its creator before it is treated as stale.
const DefaultCorruptGrace = 2 * time.Second

// Record is the on-disk content of a lock file.
type Record struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
}

// Lock is an acquired profile lock.
type Lock struct {
	Record
	Dir string

	mgr *Manager
}

// Release releases the lock. Safe to call multiple times.
func (l *Lock) Release() {
	if l == nil || l.mgr == nil {
		return
	}
	l.mgr.Release(l.Dir)
}

// Manager acquires and releases profile locks on behalf of one process.
type Manager struct {
	// PID is written into acquired locks and decides ownership on release.
	PID int
	// CorruptGrace protects a lock file another process has created but not
	// yet written.
	CorruptGrace time.Duration

	procs  proc.Prober
	logger *logging.Logger

	// beforeCreate runs between the stale check and the exclusive create.
	beforeCreate func()
}

// NewManager returns a Manager for the current process. The logger may be nil.
func NewManager(procs proc.Prober, logger *logging.Logger) *Manager {
	return &Manager{
		PID:          os.Getpid(),
		CorruptGrace: DefaultCorruptGrace,
		procs:        procs,
		logger:       logging.OrNop(logger).WithComponent("profile"),
	}
}

// LockPath returns the lock file path for dir.
func LockPath(dir string) string {
	return filepath.Join(dir, LockFileName)
}

// Acquire claims dir for this process, creating it if needed. A lock held by
// a live process yields a *errors.LockConflictError; a lock left by a dead
// process is replaced.
func (m *Manager) Acquire(dir string, port int) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	if err := m.clearStale(dir); err != nil {
		return nil, err
	}

	lock := &Lock{
		Record: Record{PID: m.PID, Port: port, StartedAt: time.Now()},
		Dir:    dir,
		mgr:    m,
	}
	data, err := json.MarshalIndent(lock.Record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	if m.beforeCreate != nil {
		m.beforeCreate()
	}

	err = createExclusive(LockPath(dir), data)
	if err != nil && os.IsExist(err) {
		// Another process created the file after our check.
		m.logger.Debug("lock creation raced", "dir", dir)
		if err := m.clearStale(dir); err != nil {
			return nil, err
		}
		err = createExclusive(LockPath(dir), data)
		if err != nil && os.IsExist(err) {
			return nil, m.conflict(dir)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	m.logger.Info("profile lock acquired", "dir", dir, "pid", m.PID, "port", port)
	return lock, nil
}

// clearStale removes the lock in dir if its owner is dead, or returns a
// conflict if the owner is alive.
func (m *Manager) clearStale(dir string) error {
	rec, err := ReadLock(dir)
	switch {
	case err == nil:
		if m.procs.Exists(rec.PID) {
			m.logger.Warn("profile is locked", "dir", dir, "holder_pid", rec.PID, "holder_port", rec.Port)
			return errors.NewLockConflictError(dir, rec.PID, rec.Port, rec.StartedAt)
		}
		if err := removeLock(dir); err != nil {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
		m.logger.Warn("stale lock cleaned", "dir", dir, "old_pid", rec.PID, "old_port", rec.Port)
		return nil

	case errors.Is(err, fs.ErrNotExist):
		return nil

	case errors.Is(err, errors.ErrRecordCorrupted):
		info, statErr := os.Stat(LockPath(dir))
		if statErr != nil {
			// Removed between read and stat.
			return nil
		}
		if time.Since(info.ModTime()) < m.CorruptGrace {
			return errors.NewLockConflictError(dir, 0, 0, time.Time{})
		}
		if err := removeLock(dir); err != nil {
			return fmt.Errorf("failed to remove unreadable lock: %w", err)
		}
		m.logger.Warn("unreadable lock cleaned", "dir", dir, "age", time.Since(info.ModTime()).String())
		return nil

	default:
		return fmt.Errorf("failed to read lock: %w", err)
	}
}

// conflict builds the error for a lock we lost twice.
func (m *Manager) conflict(dir string) error {
	rec, err := ReadLock(dir)
	if err != nil {
		return errors.NewLockConflictError(dir, 0, 0, time.Time{})
	}
	return errors.NewLockConflictError(dir, rec.PID, rec.Port, rec.StartedAt)
}

// Release removes the lock in dir if it belongs to this process or cannot be
// parsed. It never fails and is idempotent.
func (m *Manager) Release(dir string) {
	rec, err := ReadLock(dir)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err == nil && rec.PID != m.PID {
		m.logger.Debug("lock not released, held by another process", "dir", dir, "holder_pid", rec.PID)
		return
	}

	if err := removeLock(dir); err != nil {
		m.logger.Warn("failed to remove lock file", "dir", dir, "error", err.Error())
		return
	}
	m.logger.Info("profile lock released", "dir", dir)
}

// Status describes the lock state of a profile directory.
type Status struct {
	Dir    string
	Locked bool
	// Holder is nil when no lock file exists or it cannot be parsed.
	Holder  *Record
	Live    bool
	Corrupt bool
	Owned   bool
}

// Inspect reports who holds dir without changing anything.
func (m *Manager) Inspect(dir string) (Status, error) {
	st := Status{Dir: dir}

	rec, err := ReadLock(dir)
	switch {
	case err == nil:
		st.Locked = true
		st.Holder = rec
		st.Live = m.procs.Exists(rec.PID)
		st.Owned = rec.PID == m.PID
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, errors.ErrRecordCorrupted):
		st.Locked = true
		st.Corrupt = true
	default:
		return st, err
	}
	return st, nil
}

// ReadLock reads the lock record in dir. A missing file yields an error
// matching fs.ErrNotExist; one that does not parse matches
// errors.ErrRecordCorrupted.
func ReadLock(dir string) (*Record, error) {
	path := LockPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrRecordCorrupted, path, err)
	}
	if rec.PID <= 0 {
		return nil, fmt.Errorf("%w: %s: missing pid", errors.ErrRecordCorrupted, path)
	}
	return &rec, nil
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func removeLock(dir string) error {
	if err := os.Remove(LockPath(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
