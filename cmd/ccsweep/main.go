// Command ccsweep runs benchmark sweeps across services, TCP congestion-control
// algorithms and load profiles.
package main

import (
	"os"

	"github.com/wesleyorama2/ccsweep/internal/cli"
)

// Main runs the CLI and returns the process exit status.
func Main() int {
	if err := cli.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(Main())
}
