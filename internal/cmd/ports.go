package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/port"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Show the port pair run would use",
	Long: `Ports probes the same way run does and prints the pair it would be
given, without claiming anything. The result can change by the time run is
invoked.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

var (
	portsPort    int
	portsCDPPort int
	portsJSON    bool
)

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().IntVarP(&portsPort, "port", "p", 0, "requested port (default from ports.default_port)")
	portsCmd.Flags().IntVar(&portsCDPPort, "cdp-port", 0, "explicit CDP port; disables auto-selection")
	portsCmd.Flags().BoolVar(&portsJSON, "json", false, "print the pair as JSON")
}

func runPorts(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	requested := portsPort
	if requested == 0 {
		requested = a.cfg.Ports.DefaultPort
	}
	pair, err := port.NewAllocator(a.cfg.Ports.Host, a.cfg.Ports.MaxAttempts).Allocate(requested, portsCDPPort)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if portsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"port":         pair.Primary,
			"cdpPort":      pair.Secondary,
			"autoSelected": pair.AutoSelected,
		})
	}

	fmt.Fprintf(out, "port: %d\ncdpPort: %d\n", pair.Primary, pair.Secondary)
	if pair.AutoSelected {
		fmt.Fprintf(out, "(port %d is in use; auto-selected)\n", requested)
	}
	return nil
}
