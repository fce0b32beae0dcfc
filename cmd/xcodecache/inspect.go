package main

import (
	"github.com/spf13/cobra"

	"github.com/k-kohey/xcodecache/internal/cachestore"
	"github.com/k-kohey/xcodecache/internal/config"
	"github.com/k-kohey/xcodecache/internal/inspect"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse the cache store interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		store := cachestore.New(cfg.CacheRoot, cfg.CacheCount)
		return inspect.Run(store)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
