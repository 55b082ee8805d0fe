package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	// MaxSizeMB is the size in megabytes at which the file is rotated.
	// Zero disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept as browserd.log.1..N.
	MaxBackups int
}

// DefaultRotationConfig returns the rotation settings used when none are configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// RotatingWriter is an io.WriteCloser that appends to a file and rotates it
// once it grows past a size limit. Several browserd processes may append to
// the same file; each rotates based on its own view of the size, which is
// good enough for a diagnostic log.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	maxSizeB   int64
	maxBackups int

	file        *os.File
	currentSize int64
}

// NewRotatingWriter opens filePath for appending, creating parent directories.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filePath:   filePath,
		maxSizeB:   int64(config.MaxSizeMB) * 1024 * 1024,
		maxBackups: config.MaxBackups,
	}

	if err := rw.openFile(); err != nil {
		return nil, err
	}
	return rw, nil
}

// openFile opens the log file. The caller must hold the mutex.
func (rw *RotatingWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(rw.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rw.file = file
	rw.currentSize = info.Size()
	return nil
}

// Write appends p to the log file, rotating first if p would push the file
// past its size limit.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	if rw.maxSizeB > 0 && rw.currentSize+int64(len(p)) > rw.maxSizeB {
		if err := rw.rotate(); err != nil {
			// Keep writing to whatever file is open rather than drop the entry.
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
			if rw.file == nil {
				return 0, err
			}
		}
	}

	n, err := rw.file.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

// rotate shifts backups and reopens a fresh file. The caller must hold the mutex.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil

	rw.shiftBackups()

	if rw.maxBackups > 0 {
		if err := os.Rename(rw.filePath, rw.backupPath(1)); err != nil && !os.IsNotExist(err) {
			if openErr := rw.openFile(); openErr != nil {
				return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
			}
			return fmt.Errorf("failed to rename log file: %w", err)
		}
	} else if err := os.Truncate(rw.filePath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	return rw.openFile()
}

// shiftBackups renames .N-1 to .N down to .1 to .2, dropping the oldest.
func (rw *RotatingWriter) shiftBackups() {
	if rw.maxBackups <= 0 {
		return
	}
	_ = os.Remove(rw.backupPath(rw.maxBackups))
	for i := rw.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(rw.backupPath(i), rw.backupPath(i+1))
	}
}

func (rw *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rw.filePath, n)
}

// Close syncs and closes the file. It is safe to call more than once.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	if err := rw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil
	return nil
}

// CurrentSize returns the size of the current log file in bytes.
func (rw *RotatingWriter) CurrentSize() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.currentSize
}

// FilePath returns the path of the active log file.
func (rw *RotatingWriter) FilePath() string {
	return rw.filePath
}
