package main

import (
	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/orchestrator"
)

var extractCmd = &cobra.Command{
	Use:   "extract <cache-entry-dir> <build-product-dir> <build-intermediate-dir>",
	Short: "Unpack a HIT target's cached product into place (invoked from an injected build phase)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcroot, err := orchestrator.ResolveSrcroot()
		if err != nil {
			return err
		}
		run, err := orchestrator.NewRun(srcroot)
		if err != nil {
			return err
		}
		return orchestrator.Extract(run, args[0], args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
