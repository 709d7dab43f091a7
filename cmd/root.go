// Package cmd implements the snapdiff command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapdiff",
		Short: "Visual-regression assertions for browser pages",
		Long: `snapdiff captures screenshots of configured page scenarios, compares
them against stored baselines, and fails when the pixel difference
exceeds the allowed tolerance. Volatile text and elements can be
normalized away before each capture.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default snapdiff.yaml)")

	cmd.AddCommand(checkCmd())
	cmd.AddCommand(historyCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
