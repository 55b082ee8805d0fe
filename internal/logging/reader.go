package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of browserd.log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Component string
	// Port is zero for entries not tied to an instance.
	Port  int
	Attrs map[string]any
}

// LogFilter selects log entries. Zero fields match everything; set fields
// are combined with AND.
type LogFilter struct {
	// Level is the minimum level, e.g. "warn".
	Level           string
	Since           time.Time
	Port            int
	Component       string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs parses the log file in stateDir together with its rotated
// backups and returns the entries oldest first. Lines that are not valid
// JSON are skipped. A missing log file yields no entries.
func ReadLogs(stateDir string) ([]LogEntry, error) {
	base := filepath.Join(stateDir, LogFileName)
	backups, err := filepath.Glob(base + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to list log backups: %w", err)
	}

	var entries []LogEntry
	for _, path := range append(backups, base) {
		fileEntries, err := readLogFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	const maxScanTokenSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

// parseLogEntry parses a single JSON log line into a LogEntry.
func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "time":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					entry.Timestamp = t
				}
			}
		case "level":
			entry.Level, _ = v.(string)
		case "msg":
			entry.Message, _ = v.(string)
		case "component":
			entry.Component, _ = v.(string)
		case "port":
			if f, ok := v.(float64); ok {
				entry.Port = int(f)
			}
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var filtered []LogEntry
	for _, entry := range entries {
		if filter.matches(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func (f LogFilter) matches(entry LogEntry) bool {
	if f.Level != "" {
		minLevel, minOk := levelOrder[strings.ToUpper(f.Level)]
		got, gotOk := levelOrder[entry.Level]
		if minOk && gotOk && got < minLevel {
			return false
		}
	}
	if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
		return false
	}
	if f.Port != 0 && entry.Port != f.Port {
		return false
	}
	if f.Component != "" && entry.Component != f.Component {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(entry.Message, f.MessageContains) {
		return false
	}
	return true
}
