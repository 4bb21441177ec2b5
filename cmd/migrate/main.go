// Command migrate runs the product catalog migration engine: reading
// legacy products in chunks, reconciling providers, products, history,
// and multimedia against the target database, coordinated across
// worker processes through Redis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the product catalog from the legacy store to the target store",
	Long: `migrate drives a chunk-scheduled, resumable migration of the product
catalog from the legacy store (or a pre-exported JSON snapshot) into
the target store.

Examples:
  migrate run                 # run the migration to completion
  migrate progress            # print current chunk progress and exit
  migrate reset --yes         # delete all chunk state and start over
  migrate init                # validate configuration and connectivity, then partition chunks`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCodeFor(err)
	}
	return 0
}
