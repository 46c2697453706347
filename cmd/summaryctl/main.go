// Package main provides summaryctl, a command line client for patient
// summaries and the access trail.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "summaryctl",
		Short:         "Patient summary viewer command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(topicsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
