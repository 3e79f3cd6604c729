// provostctl is the operator CLI for the proposal workflow service:
// linting transition rule files and inspecting or verifying proposal
// workflow logs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "provostctl",
	Short:         "Operator tooling for the proposal workflow service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
