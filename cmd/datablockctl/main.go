// Command datablockctl is an out-of-band recovery tool: diagnose,
// recover, cleanup, and validate operations against a channel's
// segment, run from a shell rather than from inside a producer or
// consumer process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitSuccess      = 0
	exitNoAction     = 2
	exitUnsafe       = 3
	exitInvalid      = 4
	exitInternal     = 5
)

var rootCmd = &cobra.Command{
	Use:   "datablockctl",
	Short: "Diagnose and recover DataBlock shared-memory channels",
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitInternal)
	}
}
