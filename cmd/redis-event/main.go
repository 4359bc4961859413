// Command redis-event attaches to a Redis master as a replica and prints
// or forwards the snapshot and the replicated command stream.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "redis-event",
		Short: "Stream a Redis master's data changes as events",
		Long: `redis-event speaks the Redis replication protocol to a master.

It receives the RDB snapshot of a full resync, then follows the
replicated command stream and acknowledges offsets like a replica:

  • print events as text, JSON lines or a RESP command stream
  • forward them to another Redis
  • filter by command, database, key glob or a Lua predicate
  • expose Prometheus metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		listenCmd(),
		dumpCmd(),
		diffCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
