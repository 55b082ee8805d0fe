package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/logging"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View browserd logs",
	Long: `View and filter the browserd log, including rotated backups.

Examples:
  # Show the last 50 entries
  browserd logs

  # Everything about one instance
  browserd logs --port 9867 -n 0

  # Warnings and errors from the last hour
  browserd logs --level warn --since 1h`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     string
	logsPort      int
	logsComponent string
	logsGrep      string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().IntVarP(&logsPort, "port", "p", 0, "Only entries for the instance on this port")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only entries from this component (registry, lifecycle, ...)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
}

func runLogs(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	filter := logging.LogFilter{
		Level:           logsLevel,
		Port:            logsPort,
		Component:       logsComponent,
		MessageContains: logsGrep,
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}

	entries, err := logging.ReadLogs(a.cfg.Paths.ResolveStateDir())
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No log entries."))
		return nil
	}
	for _, entry := range entries {
		fmt.Fprintln(out, formatLogEntry(entry))
	}
	return nil
}

func levelStyle(level string) lipgloss.Style {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return styles.Muted
	case logging.LevelInfo:
		return styles.Primary
	case logging.LevelWarn:
		return styles.Warning
	case logging.LevelError:
		return styles.Error
	default:
		return lipgloss.NewStyle()
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry logging.LogEntry) string {
	var sb strings.Builder

	sb.WriteString(styles.Muted.Render("[" + entry.Timestamp.Local().Format("15:04:05.000") + "]"))
	sb.WriteString(" ")
	sb.WriteString(levelStyle(entry.Level).Render("[" + strings.ToUpper(entry.Level) + "]"))
	sb.WriteString(" ")
	sb.WriteString(entry.Message)

	if entry.Component != "" {
		sb.WriteString(" " + styles.Secondary.Render("component=") + entry.Component)
	}
	if entry.Port != 0 {
		sb.WriteString(fmt.Sprintf(" %s%d", styles.Secondary.Render("port="), entry.Port))
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s%v", styles.Secondary.Render(k+"="), entry.Attrs[k]))
	}

	return sb.String()
}
