package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/browserd/internal/config"
	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/lifecycle"
	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/proc"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var rootCmd = &cobra.Command{
	Use:   "browserd",
	Short: "Run and manage local browser automation instances",
	Long: `browserd starts browser automation servers on free local ports, keeps
one instance per profile directory, and tracks every running instance in a
shared registry so they can be listed, stopped, and cleaned up later.`,
	// main prints errors through ReportError so an ExitError can stay silent.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// ExitError carries a process exit code out of a command. It is returned
// when a command already reported its failure and only the code remains.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ReportError prints err for the operator and returns the exit code for it.
// An ExitError only carries its code. Errors not written for operators get a
// pointer to the log, where the failing component recorded the details.
func ReportError(w io.Writer, err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	label := styles.ErrorMsg
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		label = styles.WarningMsg
	}
	fmt.Fprintln(w, label.Render("Error:"), err)
	if !errors.IsUserFacing(err) {
		fmt.Fprintln(w, styles.Muted.Render("Run 'browserd logs --level warn' for details."))
	}
	return 1
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/browserd/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BROWSERD")
	// e.g., BROWSERD_PATHS_STATE_DIR for paths.state_dir
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// app bundles the collaborators every command needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	procs    *proc.OS
	registry *registry.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := createLogger(cfg)
	procs := proc.System()
	return &app{
		cfg:      cfg,
		logger:   logger,
		procs:    procs,
		registry: registry.New(cfg.Paths.ResolveRegistryDir(), procs, logger),
	}, nil
}

// controller returns a lifecycle controller configured from cfg.
func (a *app) controller() *lifecycle.Controller {
	opts := lifecycle.DefaultOptions()
	opts.GracePeriod = a.cfg.Stop.GracePeriod()
	opts.KillTimeout = a.cfg.Stop.KillTimeout()
	opts.PollInterval = a.cfg.Stop.PollInterval()
	opts.OrphanMarker = a.cfg.OrphanMarker()
	return lifecycle.NewController(a.registry, a.procs, a.procs, opts, a.logger)
}

func (a *app) close() {
	_ = a.logger.Close()
}

// createLogger creates a logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
func createLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	rotation := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}
	logger, err := logging.NewLogger(cfg.Paths.ResolveStateDir(), cfg.Logging.Level, rotation)
	if err != nil {
		// Log creation failure shouldn't prevent the command from running
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}
