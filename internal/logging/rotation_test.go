package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingWriter_RotatesPastLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write() #%d error = %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected first backup to exist: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("expected second backup to exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third backup, stat err = %v", err)
	}
	if got := rw.CurrentSize(); got != int64(len(chunk)) {
		t.Errorf("CurrentSize() = %d, want %d", got, len(chunk))
	}
}

func TestRotatingWriter_NoBackupsTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 0})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	for i := 0; i < 2; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("expected no backup with MaxBackups=0, stat err = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("log size = %d, want %d", info.Size(), len(chunk))
	}
}

func TestRotatingWriter_CloseIsIdempotent(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "nested", LogFileName), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write() after Close() should fail")
	}
}
