package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of registry writes into one refresh.
const DefaultDebounce = 100 * time.Millisecond

// DirWatcher signals on Events whenever an instance record in a directory
// is created, rewritten or removed.
type DirWatcher struct {
	watcher  *fsnotify.Watcher
	events   chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	debounce time.Duration
	once     sync.Once
}

// WatchDir starts watching dir, creating it if needed.
func WatchDir(dir string, debounce time.Duration) (*DirWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &DirWatcher{
		watcher:  watcher,
		events:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		debounce: debounce,
	}
	go w.watchLoop()
	return w, nil
}

// Events delivers one value per debounced batch of changes. It is closed by
// Close.
func (w *DirWatcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher. Safe to call multiple times.
func (w *DirWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.done
		close(w.events)
	})
	return err
}

func (w *DirWatcher) watchLoop() {
	defer close(w.done)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isRecordFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			select {
			case w.events <- struct{}{}:
			default:
				// A refresh is already pending.
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func isRecordFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
