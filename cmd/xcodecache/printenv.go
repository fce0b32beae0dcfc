package main

import (
	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/orchestrator"
)

var printenvCmd = &cobra.Command{
	Use:   "printenv <target-name> <xcodeproj-path>",
	Short: "Capture the build environment for a MISS target (invoked from an injected build phase)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return orchestrator.Printenv(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(printenvCmd)
}
