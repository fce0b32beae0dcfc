package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/orchestrator"
)

var preCmd = &cobra.Command{
	Use:                "pre -- [xcodebuild args...]",
	Short:              "Resolve every cacheable target to HIT or MISS and rewrite its project's build phases",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		srcroot, err := orchestrator.ResolveSrcroot()
		if err != nil {
			return err
		}
		run, err := orchestrator.NewRun(srcroot)
		if err != nil {
			return err
		}
		report, err := orchestrator.Pre(run, args)
		if err != nil {
			return err
		}
		fmt.Printf("hits=%d misses=%d skipped=%d\n", report.Hits, report.Misses, report.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(preCmd)
}
