package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/orchestrator"
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Archive and insert every target built this run, then restore project files and evict old entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		srcroot, err := orchestrator.ResolveSrcroot()
		if err != nil {
			return err
		}
		run, err := orchestrator.NewRun(srcroot)
		if err != nil {
			return err
		}
		report, err := orchestrator.Post(run)
		if err != nil {
			return err
		}
		fmt.Printf("inserted=%d refused=%d evicted=%d\n", report.Inserted, report.Refused, report.Evicted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(postCmd)
}
