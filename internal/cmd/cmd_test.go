package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/lifecycle"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/port"
	"github.com/Iron-Ham/browserd/internal/profile"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/testutil"
	"github.com/Iron-Ham/browserd/internal/tui"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupStateDir points browserd at a temporary state directory and config
// home, and resets command flags afterwards. It returns the state dir.
func setupStateDir(t *testing.T) string {
	t.Helper()

	stateDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("BROWSERD_PATHS_STATE_DIR", stateDir)
	t.Setenv("BROWSERD_LOGGING_ENABLED", "false")
	t.Cleanup(resetFlags)
	return stateDir
}

func resetFlags() {
	runPort, runCDPPort, runProfile, runLabel, runMode, runHeadless = 0, 0, "", "", "", false
	statusJSON, statusWatch = false, false
	stopAll, stopLabel, stopJSON = false, "", false
	portsPort, portsCDPPort, portsJSON = 0, 0, false
	logsTail, logsLevel, logsSince, logsPort, logsComponent, logsGrep = 50, "", "", 0, "", ""
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "browserd" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "browserd")
	}

	expectedCmds := []string{"run", "status", "stop", "cleanup", "ports", "profile", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestSubstitute(t *testing.T) {
	pair := port.Pair{Primary: 9867, Secondary: 9868}
	got := substitute([]string{"server", "--port={port}", "--cdp", "{cdpPort}", "--user-data-dir={profile}", "plain"}, pair, "/p/default")
	want := []string{"server", "--port=9867", "--cdp", "9868", "--user-data-dir=/p/default", "plain"}

	if len(got) != len(want) {
		t.Fatalf("substitute() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("substitute()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChildEnv(t *testing.T) {
	env := childEnv(port.Pair{Primary: 9000, Secondary: 9001}, "/p")
	joined := strings.Join(env, " ")
	for _, want := range []string{"BROWSERD_PORT=9000", "BROWSERD_CDP_PORT=9001", "BROWSERD_PROFILE=/p"} {
		if !strings.Contains(joined, want) {
			t.Errorf("childEnv() missing %q: %v", want, env)
		}
	}
}

func TestResolveProfileDir(t *testing.T) {
	profiles := t.TempDir()

	got, err := resolveProfileDir("", profiles)
	if err != nil {
		t.Fatalf("resolveProfileDir() error = %v", err)
	}
	if got != filepath.Join(profiles, "default") {
		t.Errorf("resolveProfileDir(\"\") = %q, want %q", got, filepath.Join(profiles, "default"))
	}

	got, err = resolveProfileDir("relative/work", profiles)
	if err != nil {
		t.Fatalf("resolveProfileDir() error = %v", err)
	}
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, filepath.Join("relative", "work")) {
		t.Errorf("resolveProfileDir(relative) = %q, want absolute path ending in relative/work", got)
	}
}

func TestExitStatus(t *testing.T) {
	if err := exitStatus(nil); err != nil {
		t.Errorf("exitStatus(nil) = %v, want nil", err)
	}

	plain := exitStatus(os.ErrClosed)
	var exitErr *ExitError
	if plain == nil || errors.As(plain, &exitErr) {
		t.Errorf("exitStatus(non-exit error) = %v, want wrapped error", plain)
	}

	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	waitErr := exec.Command(sh, "-c", "exit 3").Run()
	if !errors.As(exitStatus(waitErr), &exitErr) || exitErr.Code != 3 {
		t.Errorf("exitStatus(exit 3) = %v, want ExitError{3}", exitStatus(waitErr))
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		want     []string
		wantHint bool
	}{
		{"exit status is silent", &ExitError{Code: 3}, 3, nil, false},
		{
			"operator message",
			errors.NewConfigurationError("port 9867 is already in use", errors.ErrPortInUse).WithFlag("--port"),
			1, []string{"Error:", "port 9867 is already in use", "flag=--port"}, false,
		},
		{
			"validation",
			errors.NewValidationError("specify ports to stop, --all, or --label"),
			1, []string{"specify ports to stop"}, false,
		},
		{
			"registry failure points at the log",
			errors.NewRegistryError("failed to read record", os.ErrPermission).WithPort(9867),
			1, []string{"Error:", "failed to read record"}, true,
		},
		{"plain error points at the log", os.ErrClosed, 1, []string{"Error:", os.ErrClosed.Error()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if code := ReportError(&buf, tt.err); code != tt.wantCode {
				t.Errorf("ReportError() = %d, want %d", code, tt.wantCode)
			}
			out := buf.String()
			if tt.want == nil && out != "" {
				t.Errorf("output = %q, want none", out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output %q missing %q", out, want)
				}
			}
			if got := strings.Contains(out, "browserd logs"); got != tt.wantHint {
				t.Errorf("log hint shown = %v, want %v (output %q)", got, tt.wantHint, out)
			}
		})
	}
}

func TestValidateStopMode(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		all     bool
		label   string
		wantErr bool
	}{
		{name: "ports", args: []string{"9867"}},
		{name: "all", all: true},
		{name: "label", label: "ci-*"},
		{name: "nothing", wantErr: true},
		{name: "ports and all", args: []string{"9867"}, all: true, wantErr: true},
		{name: "all and label", all: true, label: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStopMode(tt.args, tt.all, tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateStopMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("validateStopMode() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestParsePorts(t *testing.T) {
	tests := []struct {
		args    []string
		want    []int
		wantErr bool
	}{
		{args: []string{"9867", "9869"}, want: []int{9867, 9869}},
		{args: nil, want: []int{}},
		{args: []string{"abc"}, wantErr: true},
		{args: []string{"0"}, wantErr: true},
		{args: []string{"65536"}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parsePorts(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePorts(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, errors.ErrInvalidPort) {
				t.Errorf("parsePorts(%v) error = %v, want ErrInvalidPort", tt.args, err)
			}
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parsePorts(%v) = %v, want %v", tt.args, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parsePorts(%v) = %v, want %v", tt.args, got, tt.want)
			}
		}
	}
}

func TestWriteStatusPlain(t *testing.T) {
	procs := testutil.NewFakeProcs()
	now := time.Now()
	rows := tui.BuildRows([]registry.Record{
		{PID: procs.Spawn(), Port: 9867, CDPPort: 9868, Label: "ci", StartedAt: now.Add(-2 * time.Minute), ProfileDir: "/p/a"},
	}, procs, now)

	var buf bytes.Buffer
	if err := writeStatusPlain(&buf, rows); err != nil {
		t.Fatalf("writeStatusPlain() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("writeStatusPlain() wrote %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "PORT") {
		t.Errorf("header = %q", lines[0])
	}
	for _, want := range []string{"9867", "9868", "live", "ci", "2m", "/p/a"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
}

func TestWriteStatusJSON(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []registry.Record{{PID: 42, Port: 9867, CDPPort: 9868, StartedAt: now.Add(-90 * time.Second)}}

	var buf bytes.Buffer
	if err := writeStatusJSON(&buf, records, now); err != nil {
		t.Fatalf("writeStatusJSON() error = %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 1 || got[0]["port"] != float64(9867) || got[0]["cdpPort"] != float64(9868) || got[0]["uptime"] != "1m" {
		t.Errorf("writeStatusJSON() = %v", got)
	}

	buf.Reset()
	if err := writeStatusJSON(&buf, nil, now); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty output = %q, want []", buf.String())
	}
}

func TestPrintStopResults(t *testing.T) {
	var buf bytes.Buffer
	printStopResults(&buf, []lifecycle.Result{
		{Port: 9867, Success: true, Message: "stopped instance on port 9867 (pid 10)"},
		{Port: 9869, Success: true, Stale: true, Message: "removed stale record for port 9869 (pid 11 not running)"},
		{Port: 9871, Message: "instance on port 9871 did not stop"},
	})
	out := buf.String()
	for _, want := range []string{"stopped instance on port 9867", "removed stale record", "did not stop"} {
		if !strings.Contains(out, want) {
			t.Errorf("printStopResults() missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printStopResults(&buf, nil)
	if !strings.Contains(buf.String(), "No instances to stop") {
		t.Errorf("empty results output = %q", buf.String())
	}
}

func TestPrintProfileStatus(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		st   profile.Status
		want []string
	}{
		{
			name: "unlocked",
			st:   profile.Status{Dir: "/p/a"},
			want: []string{"Profile: /p/a", "none"},
		},
		{
			name: "corrupt",
			st:   profile.Status{Dir: "/p/a", Locked: true, Corrupt: true},
			want: []string{"unreadable", ".browserd.lock"},
		},
		{
			name: "live holder",
			st: profile.Status{Dir: "/p/a", Locked: true, Live: true,
				Holder: &profile.Record{PID: 4242, Port: 9867, StartedAt: now.Add(-3 * time.Minute)}},
			want: []string{"held by pid 4242", "live", "Port:    9867", "3m ago"},
		},
		{
			name: "dead holder",
			st: profile.Status{Dir: "/p/a", Locked: true,
				Holder: &profile.Record{PID: 4242, Port: 9867, StartedAt: now}},
			want: []string{"stale", "next run will replace"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printProfileStatus(&buf, tt.st, now)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("printProfileStatus() missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestStatusCommand_JSON(t *testing.T) {
	stateDir := setupStateDir(t)

	out, err := executeCommand(rootCmd, "status", "--json")
	if err != nil {
		t.Fatalf("status --json error = %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("status --json with no instances = %q, want []", out)
	}

	// A record owned by this (live) process survives the stale sweep.
	reg := registry.New(filepath.Join(stateDir, "instances"), nil, nil)
	if err := reg.Register(registry.Record{PID: os.Getpid(), Port: 61000, CDPPort: 61001, StartedAt: time.Now()}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out, err = executeCommand(rootCmd, "status", "--json")
	if err != nil {
		t.Fatalf("status --json error = %v", err)
	}
	if !strings.Contains(out, `"port": 61000`) {
		t.Errorf("status --json output missing registered instance:\n%s", out)
	}
}

func TestStopCommand_NotRegistered(t *testing.T) {
	setupStateDir(t)

	out, err := executeCommand(rootCmd, "stop", "61234")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("stop unregistered port error = %v, want ExitError{1}", err)
	}
	if !strings.Contains(out, "not registered") {
		t.Errorf("stop output = %q", out)
	}
}

func TestStopCommand_RequiresMode(t *testing.T) {
	setupStateDir(t)

	if _, err := executeCommand(rootCmd, "stop"); err == nil {
		t.Error("stop with no ports, --all or --label should fail")
	}
}

func TestStopCommand_AllEmpty(t *testing.T) {
	setupStateDir(t)

	out, err := executeCommand(rootCmd, "stop", "--all")
	if err != nil {
		t.Fatalf("stop --all error = %v", err)
	}
	if !strings.Contains(out, "No instances to stop") {
		t.Errorf("stop --all output = %q", out)
	}
}

func TestProfileStatusCommand(t *testing.T) {
	setupStateDir(t)
	dir := t.TempDir()

	out, err := executeCommand(rootCmd, "profile", "status", dir)
	if err != nil {
		t.Fatalf("profile status error = %v", err)
	}
	if !strings.Contains(out, "none") {
		t.Errorf("profile status output = %q, want unlocked", out)
	}
}

func TestConfigShowCommand(t *testing.T) {
	stateDir := setupStateDir(t)

	out, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"default_port: 9867", "state_dir: " + stateDir, "grace_period_ms: 5000"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestFormatLogEntry(t *testing.T) {
	entry := logging.LogEntry{
		Timestamp: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Level:     logging.LevelWarn,
		Message:   "stale record pruned",
		Component: "registry",
		Port:      9867,
		Attrs:     map[string]any{"pid": float64(4242), "dir": "/r"},
	}

	got := formatLogEntry(entry)
	for _, want := range []string{"[WARN]", "stale record pruned", "component=registry", "port=9867", "pid=4242"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatLogEntry() missing %q: %s", want, got)
		}
	}
	if strings.Index(got, "dir=") > strings.Index(got, "pid=") {
		t.Errorf("attrs not sorted: %s", got)
	}
}

func TestLogsCommand(t *testing.T) {
	stateDir := setupStateDir(t)

	out, err := executeCommand(rootCmd, "logs")
	if err != nil {
		t.Fatalf("logs error = %v", err)
	}
	if !strings.Contains(out, "No log entries") {
		t.Errorf("logs with no file = %q", out)
	}

	lines := `{"time":"2026-06-01T10:00:00Z","level":"INFO","msg":"instance started","port":9867}` + "\n" +
		`{"time":"2026-06-01T10:01:00Z","level":"ERROR","msg":"instance did not stop","port":9869}` + "\n"
	if err := os.WriteFile(filepath.Join(stateDir, logging.LogFileName), []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = executeCommand(rootCmd, "logs", "--port", "9869")
	if err != nil {
		t.Fatalf("logs --port error = %v", err)
	}
	if !strings.Contains(out, "did not stop") || strings.Contains(out, "instance started") {
		t.Errorf("logs --port 9869 output:\n%s", out)
	}
}
