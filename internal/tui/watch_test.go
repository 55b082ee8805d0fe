package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/testutil"
)

type staticSource []registry.Record

func (s staticSource) List() []registry.Record { return s }

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords(procs *testutil.FakeProcs) []registry.Record {
	return []registry.Record{
		{
			PID:        procs.Spawn(),
			Port:       9867,
			CDPPort:    9868,
			Label:      "ci",
			Mode:       "dashboard",
			StartedAt:  fixedNow.Add(-90 * time.Minute),
			ProfileDir: "/home/op/.browserd/profiles/default",
			ChromePID:  procs.Spawn(),
		},
		{
			PID:        procs.DeadPID(),
			Port:       9869,
			CDPPort:    9870,
			StartedAt:  fixedNow.Add(-30 * time.Second),
			ProfileDir: "/tmp/p2",
		},
	}
}

func TestBuildRows(t *testing.T) {
	procs := testutil.NewFakeProcs()
	rows := BuildRows(sampleRecords(procs), procs, fixedNow)

	if len(rows) != 2 {
		t.Fatalf("BuildRows() returned %d rows, want 2", len(rows))
	}
	if !rows[0].Live || !rows[0].ChildLive || rows[0].Uptime != "1h 30m" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].Live || rows[1].ChildLive || rows[1].Uptime != "30s" {
		t.Errorf("rows[1] = %+v", rows[1])
	}

	cells := rows[1].Cells(0)
	if cells[3] != "-" || cells[4] != "stale" || cells[5] != "-" {
		t.Errorf("rows[1].Cells() = %v", cells)
	}
}

func TestRow_CellsFlagsDeadChild(t *testing.T) {
	procs := testutil.NewFakeProcs()
	rec := registry.Record{PID: procs.Spawn(), Port: 9867, ChromePID: procs.DeadPID(), StartedAt: fixedNow}
	cells := BuildRows([]registry.Record{rec}, procs, fixedNow)[0].Cells(0)
	if !strings.HasSuffix(cells[3], "?") {
		t.Errorf("child cell = %q, want trailing ?", cells[3])
	}
}

func TestRow_CellsTruncatesLongLabel(t *testing.T) {
	procs := testutil.NewFakeProcs()
	tests := []struct {
		label string
		want  string
	}{
		{"", "-"},
		{"ci", "ci"},
		{strings.Repeat("a", maxLabelWidth), strings.Repeat("a", maxLabelWidth)},
		{"nightly-regression-suite-shard-07", "nightly-regression-su..."},
	}
	for _, tt := range tests {
		rec := registry.Record{PID: procs.Spawn(), Port: 9867, Label: tt.label, StartedAt: fixedNow}
		cells := BuildRows([]registry.Record{rec}, procs, fixedNow)[0].Cells(0)
		if cells[5] != tt.want {
			t.Errorf("label cell for %q = %q, want %q", tt.label, cells[5], tt.want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	procs := testutil.NewFakeProcs()
	rows := BuildRows(sampleRecords(procs), procs, fixedNow)

	out := RenderTable(rows, 0)
	for _, want := range []string{"PORT", "PROFILE", "9867", "9869", "1h 30m", "/home/op/.browserd/profiles/default"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderTable() missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTable_TruncatesProfile(t *testing.T) {
	procs := testutil.NewFakeProcs()
	rec := sampleRecords(procs)[0]
	rec.ProfileDir = "/very/long/" + strings.Repeat("nested/", 20) + "profile"
	rows := BuildRows([]registry.Record{rec}, procs, fixedNow)

	out := RenderTable(rows, 100)
	if strings.Contains(out, rec.ProfileDir) {
		t.Error("long profile path was not truncated")
	}
	if !strings.Contains(out, "nested/profile") {
		t.Errorf("truncated path lost its tail:\n%s", out)
	}
}

func TestWatchModel_Update(t *testing.T) {
	procs := testutil.NewFakeProcs()
	records := sampleRecords(procs)
	m := NewWatchModel(staticSource(records), procs, nil)
	m.now = func() time.Time { return fixedNow }

	if !strings.Contains(m.View(), "Loading") {
		t.Error("initial view should show loading state")
	}

	updated, _ := m.Update(recordsMsg(records))
	m = updated.(WatchModel)
	if len(m.Rows()) != 2 {
		t.Fatalf("Rows() = %d, want 2", len(m.Rows()))
	}
	view := m.View()
	if !strings.Contains(view, "9867") || !strings.Contains(view, "2 instances, 1 live") {
		t.Errorf("View() missing content:\n%s", view)
	}

	updated, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m = updated.(WatchModel)
	if m.width != 120 || m.height != 30 {
		t.Errorf("size = %dx%d, want 120x30", m.width, m.height)
	}

	updated, _ = m.Update(recordsMsg(nil))
	m = updated.(WatchModel)
	if !strings.Contains(m.View(), "No running instances") {
		t.Errorf("empty view:\n%s", m.View())
	}
}

func TestWatchModel_Quit(t *testing.T) {
	m := NewWatchModel(staticSource(nil), testutil.NewFakeProcs(), nil)
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("key %q returned no command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %q did not quit", key.String())
		}
	}
}

func TestWatchModel_ChangeReloads(t *testing.T) {
	procs := testutil.NewFakeProcs()
	events := make(chan struct{}, 1)
	m := NewWatchModel(staticSource(sampleRecords(procs)), procs, events)

	_, cmd := m.Update(changedMsg{})
	if cmd == nil {
		t.Fatal("changedMsg returned no command")
	}

	load := m.load()
	msg, ok := load().(recordsMsg)
	if !ok || len(msg) != 2 {
		t.Errorf("load() = %#v, want two records", msg)
	}

	events <- struct{}{}
	if _, ok := waitForChange(events)().(changedMsg); !ok {
		t.Error("waitForChange did not report the event")
	}
	close(events)
	if got := waitForChange(events)(); got != nil {
		t.Errorf("waitForChange on closed channel = %#v, want nil", got)
	}
	if waitForChange(nil) != nil {
		t.Error("waitForChange(nil) should return no command")
	}
}

func TestColumnsFor(t *testing.T) {
	cols := columnsFor(200)
	if len(cols) != len(Columns) {
		t.Fatalf("columnsFor() = %d columns, want %d", len(cols), len(Columns))
	}
	if cols[len(cols)-1].Width <= 40 {
		t.Errorf("profile column width = %d, want it to use spare width", cols[len(cols)-1].Width)
	}
	if narrow := columnsFor(50); narrow[len(narrow)-1].Width != minProfileWidth {
		t.Errorf("narrow profile width = %d, want %d", narrow[len(narrow)-1].Width, minProfileWidth)
	}
}

func TestDirWatcher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instances")
	w, err := WatchDir(dir, 10*time.Millisecond)
	if err != nil {
		t.Skipf("file watching unavailable: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, ".registry.lock"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "9867.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("no event after writing a record")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	for range w.Events() {
	}
	_ = w.Close()
}

func TestIsRecordFile(t *testing.T) {
	tests := map[string]bool{
		"/r/9867.json":      true,
		"/r/.tmp-123":       false,
		"/r/.registry.lock": false,
		"/r/notes.txt":      false,
	}
	for path, want := range tests {
		if got := isRecordFile(path); got != want {
			t.Errorf("isRecordFile(%q) = %v, want %v", path, got, want)
		}
	}
}
