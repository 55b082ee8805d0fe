package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/profile"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect profile directories",
}

var profileStatusCmd = &cobra.Command{
	Use:   "status <dir>",
	Short: "Show who holds a profile directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileStatus,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileStatusCmd)
}

func runProfileStatus(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve profile directory: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := profile.NewManager(a.procs, a.logger).Inspect(dir)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", dir, err)
	}
	printProfileStatus(cmd.OutOrStdout(), st, time.Now())
	return nil
}

func printProfileStatus(w io.Writer, st profile.Status, now time.Time) {
	fmt.Fprintf(w, "Profile: %s\n", st.Dir)
	switch {
	case !st.Locked:
		fmt.Fprintln(w, "Lock:    "+styles.Muted.Render("none"))
	case st.Corrupt:
		fmt.Fprintln(w, "Lock:    "+styles.WarningMsg.Render("unreadable")+" ("+profile.LockPath(st.Dir)+")")
	default:
		fmt.Fprintf(w, "Lock:    held by pid %d (%s)\n", st.Holder.PID, styles.Liveness(st.Live))
		fmt.Fprintf(w, "Port:    %d\n", st.Holder.Port)
		fmt.Fprintf(w, "Since:   %s (%s ago)\n",
			st.Holder.StartedAt.Local().Format("2006-01-02 15:04:05"), registry.UptimeAt(st.Holder.StartedAt, now))
		if !st.Live {
			fmt.Fprintln(w, styles.Muted.Render("The holder is gone; the next run will replace this lock."))
		}
	}
}
