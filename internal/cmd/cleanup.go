package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Kill orphaned browser processes",
	Long: `Cleanup prunes records whose owner process has died, kills their browser
children, and then kills any process whose command line carries the orphan
marker (orphan.marker, by default the profiles directory) that no running
instance owns.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	killed := a.controller().CleanOrphanedChrome()
	out := cmd.OutOrStdout()
	if killed == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No orphaned browser processes found."))
		return nil
	}
	fmt.Fprintln(out, styles.SuccessMsg.Render(fmt.Sprintf("Killed %d orphaned browser %s.", killed, plural(killed, "process", "processes"))))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
