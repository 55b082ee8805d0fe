package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/browserd/internal/errors"
	"github.com/Iron-Ham/browserd/internal/lifecycle"
	"github.com/Iron-Ham/browserd/internal/registry"
	"github.com/Iron-Ham/browserd/internal/tui/styles"
)

var stopCmd = &cobra.Command{
	Use:   "stop [port...]",
	Short: "Stop running instances",
	Long: `Stop terminates instances and removes their records. Name the ports to
stop, use --all for every instance, or --label with a glob pattern such as
"ci-*" to stop the instances whose label matches.

Each owner process gets SIGTERM and a grace period before SIGKILL. The
browser child is killed as well. The command exits non-zero if any instance
could not be stopped.`,
	RunE: runStop,
}

var (
	stopAll   bool
	stopLabel string
	stopJSON  bool
)

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().BoolVarP(&stopAll, "all", "a", false, "stop every registered instance")
	stopCmd.Flags().StringVarP(&stopLabel, "label", "l", "", "stop instances whose label matches this glob")
	stopCmd.Flags().BoolVar(&stopJSON, "json", false, "print results as JSON")
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := validateStopMode(args, stopAll, stopLabel); err != nil {
		return err
	}
	ports, err := parsePorts(args)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctrl := a.controller()

	var results []lifecycle.Result
	switch {
	case stopAll:
		results = ctrl.StopAll()
	case stopLabel != "":
		matches, err := registry.Filter(a.registry.List(), stopLabel)
		if err != nil {
			return errors.NewValidationError("invalid --label pattern").WithField("label").WithValue(stopLabel).WithCause(err)
		}
		for _, rec := range matches {
			results = append(results, ctrl.Stop(rec.Port))
		}
	default:
		for _, p := range ports {
			results = append(results, ctrl.Stop(p))
		}
	}

	out := cmd.OutOrStdout()
	if stopJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []lifecycle.Result{}
		}
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printStopResults(out, results)
	}

	for _, res := range results {
		if !res.Success {
			return &ExitError{Code: 1}
		}
	}
	return nil
}

// validateStopMode checks that exactly one of ports, --all and --label was
// given.
func validateStopMode(args []string, all bool, label string) error {
	modes := 0
	if len(args) > 0 {
		modes++
	}
	if all {
		modes++
	}
	if label != "" {
		modes++
	}
	switch modes {
	case 0:
		return errors.NewValidationError("specify ports to stop, --all, or --label")
	case 1:
		return nil
	default:
		return errors.NewValidationError("ports, --all and --label are mutually exclusive")
	}
}

func parsePorts(args []string) ([]int, error) {
	ports := make([]int, 0, len(args))
	for _, arg := range args {
		p, err := strconv.Atoi(arg)
		if err != nil || p < 1 || p > 65535 {
			return nil, errors.NewValidationError("invalid port").WithField("port").WithValue(arg).WithCause(errors.ErrInvalidPort)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func printStopResults(w io.Writer, results []lifecycle.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No instances to stop."))
		return
	}
	for _, res := range results {
		switch {
		case !res.Success:
			fmt.Fprintln(w, styles.ErrorMsg.Render("✗ ")+res.Message)
		case res.Stale:
			fmt.Fprintln(w, styles.WarningMsg.Render("~ ")+res.Message)
		default:
			fmt.Fprintln(w, styles.SuccessMsg.Render("✓ ")+res.Message)
		}
	}
}
