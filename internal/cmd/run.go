package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/instance"
	"github.com/Iron-Ham/browserd/internal/port"
	"github.com/Iron-Ham/browserd/internal/profile"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Start an instance and run its server process",
	Long: `Run allocates a port pair, locks the profile directory, registers the
instance, and then runs the given command as the instance's server process.

The placeholders {port}, {cdpPort} and {profile} in the command are replaced
with the allocated ports and the profile directory. The same values are also
exported as BROWSERD_PORT, BROWSERD_CDP_PORT and BROWSERD_PROFILE.

Interrupts are forwarded to the command. When it exits the instance is
unregistered and the profile lock released.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runPort     int
	runCDPPort  int
	runProfile  string
	runLabel    string
	runMode     string
	runHeadless bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runPort, "port", "p", 0, "requested port (default from ports.default_port)")
	runCmd.Flags().IntVar(&runCDPPort, "cdp-port", 0, "explicit CDP port; disables auto-selection")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "profile directory (default <profiles_dir>/default)")
	runCmd.Flags().StringVarP(&runLabel, "label", "l", "", "label shown in status and matched by stop --label")
	runCmd.Flags().StringVar(&runMode, "mode", "", "free-form mode recorded with the instance")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "record the instance as headless")
	// Everything after the first positional argument belongs to the command.
	runCmd.Flags().SetInterspersed(false)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	requested := runPort
	if requested == 0 {
		requested = a.cfg.Ports.DefaultPort
	}
	profileDir, err := resolveProfileDir(runProfile, a.cfg.Paths.ResolveProfilesDir())
	if err != nil {
		return err
	}

	alloc := port.NewAllocator(a.cfg.Ports.Host, a.cfg.Ports.MaxAttempts)
	inst, err := instance.Start(instance.Deps{
		Ports:    alloc,
		Locks:    profile.NewManager(a.procs, a.logger),
		Registry: a.registry,
		Logger:   a.logger,
	}, instance.Options{
		Port:       requested,
		CDPPort:    runCDPPort,
		ProfileDir: profileDir,
		Label:      runLabel,
		Mode:       runMode,
		Headless:   runHeadless,
	})
	if err != nil {
		return err
	}
	defer inst.Close()

	pair := inst.Ports()
	if pair.AutoSelected {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.WarningMsg.Render(
			fmt.Sprintf("Port %d is in use; using %d (CDP %d)", requested, pair.Primary, pair.Secondary)))
	}

	argv := substitute(args, pair, profileDir)
	child := exec.Command(argv[0], argv[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = append(os.Environ(), childEnv(pair, profileDir)...)

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	logger := a.logger.WithPort(pair.Primary)
	logger.Info("child started", "pid", child.Process.Pid, "command", argv[0])
	if err := inst.SetChildPID(child.Process.Pid); err != nil {
		logger.Warn("failed to record child pid", "pid", child.Process.Pid, "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() {
		done <- child.Wait()
	}()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("forwarding signal to child", "signal", sig.String())
			_ = child.Process.Signal(sig)
		case err := <-done:
			logger.Info("child exited", "error", err)
			return exitStatus(err)
		}
	}
}

// resolveProfileDir returns an absolute profile directory, defaulting to
// <profilesDir>/default.
func resolveProfileDir(flag, profilesDir string) (string, error) {
	dir := flag
	if dir == "" {
		dir = filepath.Join(profilesDir, "default")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve profile directory: %w", err)
	}
	return abs, nil
}

// substitute replaces the {port}, {cdpPort} and {profile} placeholders in
// args.
func substitute(args []string, pair port.Pair, profileDir string) []string {
	r := strings.NewReplacer(
		"{port}", strconv.Itoa(pair.Primary),
		"{cdpPort}", strconv.Itoa(pair.Secondary),
		"{profile}", profileDir,
	)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = r.Replace(arg)
	}
	return out
}

func childEnv(pair port.Pair, profileDir string) []string {
	return []string{
		"BROWSERD_PORT=" + strconv.Itoa(pair.Primary),
		"BROWSERD_CDP_PORT=" + strconv.Itoa(pair.Secondary),
		"BROWSERD_PROFILE=" + profileDir,
	}
}

// exitStatus maps the child's wait error onto the error run returns, so the
// child's exit code becomes browserd's.
func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal.
			code = 1
		}
		return &ExitError{Code: code}
	}
	return fmt.Errorf("failed waiting for child: %w", err)
}
