// Command incbctl is the operator-facing CLI over the incremental backup
// engine: inspecting engine/interceptor stats, running a backup over a WAL
// or time range, and replaying synthetic events against the engine for
// testing. Grounded on cmd/pebble/main.go's root-command wiring (cobra.Command
// tree with one file per subcommand, package-level flag variables shared by
// Flags().*Var calls in main).
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incbctl [command] (flags)",
	Short: "incremental backup engine control tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", "", "path to a YAML config file (defaults built in if omitted)")

	rootCmd.AddCommand(
		statsCmd,
		backupCmd,
		replayEventsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
