// Package tui renders instance status for terminals: a one-shot table for
// `browserd status` and a live bubbletea view for `browserd status --watch`.
package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/browserd/internal/proc"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
	"github.com/Iron-Ham/browserd/internal/util"
)

// Columns are the status table headers, in order.
var Columns = []string{"PORT", "CDP", "PID", "CHILD", "STATUS", "LABEL", "MODE", "UPTIME", "PROFILE"}

// minProfileWidth keeps the profile column readable on narrow terminals.
const minProfileWidth = 16

// maxLabelWidth caps the label column so one long label cannot squeeze the
// profile path.
const maxLabelWidth = 24

// Row is one instance as displayed.
type Row struct {
	Record    registry.Record
	Live      bool
	ChildLive bool
	Uptime    string
}

// BuildRows probes liveness for each record and computes uptimes at now.
func BuildRows(records []registry.Record, procs proc.Prober, now time.Time) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			Record:    rec,
			Live:      procs.Exists(rec.PID),
			ChildLive: rec.ChromePID > 0 && procs.Exists(rec.ChromePID),
			Uptime:    registry.UptimeAt(rec.StartedAt, now),
		})
	}
	return rows
}

// Cells returns the row's plain-text cells. Labels are capped at
// maxLabelWidth; the profile path is truncated to profileWidth columns when
// profileWidth is positive.
func (r Row) Cells(profileWidth int) []string {
	child := "-"
	if r.Record.ChromePID > 0 {
		child = strconv.Itoa(r.Record.ChromePID)
		if !r.ChildLive {
			child += "?"
		}
	}
	status := "stale"
	if r.Live {
		status = "live"
	}
	profile := r.Record.ProfileDir
	if profileWidth > 0 {
		profile = util.TruncateLeft(profile, profileWidth)
	}
	return []string{
		strconv.Itoa(r.Record.Port),
		strconv.Itoa(r.Record.CDPPort),
		strconv.Itoa(r.Record.PID),
		child,
		status,
		dash(util.TruncateANSI(r.Record.Label, maxLabelWidth)),
		dash(r.Record.Mode),
		r.Uptime,
		profile,
	}
}

// ProfileWidth returns how many columns the profile path may use in a table
// of the given total width.
func ProfileWidth(rows []Row, totalWidth int) int {
	if totalWidth <= 0 {
		return 0
	}
	used := 0
	for i, col := range Columns[:len(Columns)-1] {
		w := lipgloss.Width(col)
		for _, row := range rows {
			if cw := lipgloss.Width(row.Cells(0)[i]); cw > w {
				w = cw
			}
		}
		// cell padding plus border
		used += w + 3
	}
	// trailing padding and borders
	remaining := totalWidth - used - 4
	if remaining < minProfileWidth {
		return minProfileWidth
	}
	return remaining
}

// RenderTable renders rows as a bordered lipgloss table fitting width
// columns. A width of zero disables truncation.
func RenderTable(rows []Row, width int) string {
	profileWidth := ProfileWidth(rows, width)

	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		data = append(data, row.Cells(profileWidth))
	}

	statusCol := 4
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
		Headers(Columns...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				color := styles.StatusStale
				if rows[row].Live {
					color = styles.StatusLive
				}
				return styles.TableCell.Foreground(color)
			}
			return styles.TableCell
		})
	return t.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
