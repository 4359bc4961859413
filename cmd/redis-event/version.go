package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	redisevent "github.com/raniellyferreira/redis-event-stream"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := redisevent.VersionInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "redis-event %s (rdb <= v%s)\n", info["version"], info["rdb_version"])
			if commit, ok := info["commit"]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
			}
			if built, ok := info["buildTime"]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", built)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
