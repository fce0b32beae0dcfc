package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "xcodecache",
	Short: "A content-addressed build-product cache for Xcode/CocoaPods workspaces",
	Long: "xcodecache sits between xcodebuild and a CocoaPods workspace's targets: pre binds " +
		"every cacheable target to a HIT or MISS against a local cache store and rewrites build " +
		"phases accordingly, printenv and extract run from the phases it injects, and post " +
		"archives whatever was actually built for next time.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
