// Command stratum is the entry point for the stratum CLI.
package main

import (
	"fmt"
	"os"

	"github.com/stratumdb/stratum/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		// Subcommands silence cobra's own reporting, so this is the
		// single place a failure gets printed.
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
