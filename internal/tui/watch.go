package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/browserd/internal/proc"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

// RefreshInterval is how often the live view re-reads the registry even
// without filesystem events, so uptimes advance and dead owners show up.
const RefreshInterval = time.Second

// RecordSource supplies the records to display.
type RecordSource interface {
	List() []registry.Record
}

type recordsMsg []registry.Record

type changedMsg struct{}

type tickMsg time.Time

// WatchModel is the bubbletea model behind `status --watch`.
type WatchModel struct {
	source   RecordSource
	procs    proc.Prober
	events   <-chan struct{}
	interval time.Duration
	now      func() time.Time

	table  table.Model
	rows   []Row
	width  int
	height int
	loaded bool
}

// NewWatchModel returns a model listing source. events may be nil, in which
// case the view refreshes on its timer only.
func NewWatchModel(source RecordSource, procs proc.Prober, events <-chan struct{}) WatchModel {
	t := table.New(
		table.WithColumns(columnsFor(0)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.BorderColor).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.PrimaryColor)
	s.Selected = s.Selected.
		Foreground(styles.TextColor).
		Background(styles.PrimaryColor).
		Bold(false)
	t.SetStyles(s)

	return WatchModel{
		source:   source,
		procs:    procs,
		events:   events,
		interval: RefreshInterval,
		now:      time.Now,
		table:    t,
	}
}

// Init loads the first snapshot and starts listening for changes.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.load(), waitForChange(m.events), tick(m.interval))
}

// Update handles key presses, resizes, and registry refreshes.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columnsFor(m.width))
		m.table.SetHeight(max(msg.Height-6, 3))
		m.table.SetRows(m.tableRows())
		return m, nil

	case recordsMsg:
		m.rows = BuildRows(msg, m.procs, m.now())
		m.loaded = true
		m.table.SetRows(m.tableRows())
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.load(), waitForChange(m.events))

	case tickMsg:
		return m, tea.Batch(m.load(), tick(m.interval))
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the live table.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("browserd instances"))
	b.WriteString("\n")

	switch {
	case !m.loaded:
		b.WriteString(styles.Muted.Render("Loading..."))
	case len(m.rows) == 0:
		b.WriteString(styles.Muted.Render("No running instances."))
	default:
		b.WriteString(m.table.View())
	}

	live := 0
	for _, r := range m.rows {
		if r.Live {
			live++
		}
	}
	help := fmt.Sprintf("%d instances, %d live  %s quit  %s refresh",
		len(m.rows), live, styles.HelpKey.Render("q"), styles.HelpKey.Render("r"))
	b.WriteString("\n")
	b.WriteString(styles.HelpBar.Render(help))
	return b.String()
}

// Rows returns the currently displayed rows.
func (m WatchModel) Rows() []Row {
	return m.rows
}

func (m WatchModel) tableRows() []table.Row {
	cols := columnsFor(m.width)
	profileWidth := cols[len(cols)-1].Width
	out := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, table.Row(r.Cells(profileWidth)))
	}
	return out
}

func (m WatchModel) load() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		return recordsMsg(source.List())
	}
}

func waitForChange(events <-chan struct{}) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// columnsFor sizes the table columns, giving the profile column whatever
// width remains.
func columnsFor(width int) []table.Column {
	widths := []int{6, 6, 8, 8, 6, 12, 10, 8}
	used := 0
	cols := make([]table.Column, 0, len(Columns))
	for i, title := range Columns[:len(Columns)-1] {
		cols = append(cols, table.Column{Title: title, Width: widths[i]})
		used += widths[i] + 2
	}
	profile := 40
	if width > 0 {
		profile = max(width-used-2, minProfileWidth)
	}
	return append(cols, table.Column{Title: Columns[len(Columns)-1], Width: profile})
}

// RunWatch runs the live view until the user quits. dir is watched for
// changes; source supplies the records.
func RunWatch(source RecordSource, procs proc.Prober, dir string) error {
	watcher, err := WatchDir(dir, DefaultDebounce)
	if err != nil {
		return err
	}
	defer watcher.Close()

	p := tea.NewProgram(NewWatchModel(source, procs, watcher.Events()), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
