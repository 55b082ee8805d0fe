package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List running instances",
	Long: `Status prunes records whose owner process has died and lists the
remaining instances. Output is a table on a terminal and plain columns
otherwise. Use --json for machine-readable output or --watch for a live view.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var (
	statusJSON  bool
	statusWatch bool
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print instances as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "show a live view that refreshes as instances change")
}

// statusEntry is one instance in --json output.
type statusEntry struct {
	registry.Record
	Uptime string `json:"uptime"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusJSON && statusWatch {
		return fmt.Errorf("--json and --watch cannot be combined")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if statusWatch {
		return tui.RunWatch(a.registry, a.procs, a.registry.Dir())
	}

	if stale := a.registry.CleanStale(); len(stale) > 0 {
		a.logger.Info("pruned stale records", "count", len(stale))
	}
	records := a.registry.List()
	out := cmd.OutOrStdout()

	if statusJSON {
		return writeStatusJSON(out, records, time.Now())
	}

	rows := tui.BuildRows(records, a.procs, time.Now())
	if len(rows) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No running instances."))
		return nil
	}
	if width, ok := terminalWidth(out); ok {
		fmt.Fprintln(out, tui.RenderTable(rows, width))
		return nil
	}
	return writeStatusPlain(out, rows)
}

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, true
	}
	return width, true
}

func writeStatusJSON(w io.Writer, records []registry.Record, now time.Time) error {
	entries := make([]statusEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, statusEntry{Record: rec, Uptime: registry.UptimeAt(rec.StartedAt, now)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeStatusPlain(w io.Writer, rows []tui.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(tui.Columns, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row.Cells(0), "\t"))
	}
	return tw.Flush()
}
