package registry

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"
)

// Record describes one running instance. It is stored as <port>.json in the
// registry directory.
type Record struct {
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	CDPPort    int       `json:"cdpPort"`
	Mode       string    `json:"mode"`
	Label      string    `json:"label"`
	Headless   bool      `json:"headless"`
	StartedAt  time.Time `json:"startedAt"`
	ProfileDir string    `json:"profileDir"`
	ChromePID  int       `json:"chromePid,omitempty"`
}

// Uptime formats the time since the instance started.
func (r Record) Uptime() string {
	return FormatUptime(r.StartedAt)
}

// FormatUptime formats the time elapsed since startedAt.
func FormatUptime(startedAt time.Time) string {
	return UptimeAt(startedAt, time.Now())
}

// UptimeAt formats now-startedAt as "42s", "17m", "3h 5m" or "2d 4h".
// A start time in the future reads as "0s".
func UptimeAt(startedAt, now time.Time) string {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		return "0s"
	}

	secs := int64(elapsed / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs/60)%60)
	default:
		return fmt.Sprintf("%dd %dh", secs/86400, (secs/3600)%24)
	}
}

// Filter returns the records whose label matches the glob pattern.
func Filter(records []Record, pattern string) ([]Record, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid label pattern %q: %w", pattern, err)
	}

	var out []Record
	for _, rec := range records {
		if g.Match(rec.Label) {
			out = append(out, rec)
		}
	}
	return out, nil
}
