package main

import (
	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/orchestrator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Restore every project's project.pbxproj and remove leftover sidecars without touching the cache store",
	RunE: func(cmd *cobra.Command, args []string) error {
		srcroot, err := orchestrator.ResolveSrcroot()
		if err != nil {
			return err
		}
		run, err := orchestrator.NewRun(srcroot)
		if err != nil {
			return err
		}
		return orchestrator.Clean(run)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
