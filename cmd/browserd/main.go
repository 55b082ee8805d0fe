package main

import (
	"os"

	"github.com/Iron-Ham/browserd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ReportError(os.Stderr, err))
	}
}
