// Package cmd is the cobra command tree for the amy-core binary,
// grounded on praectl/cmd's rootCmd/Execute/init() shape (other_examples).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "amy-core",
	Short: "Medical IoT telemetry ingestion core (AVA4, Kati Watch, Qube-Vital)",
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
