// resultsctl is the offline-capable score entry tool. Edits land in the
// local store immediately and reach the server when a connection allows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "resultsctl",
		Short:         "Enter and sync game results from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCmd(),
		newStatusCmd(),
		newAddRoundCmd(),
		newSetScoreCmd(),
		newRemoveSetCmd(),
		newSyncCmd(),
		newResolveCmd(),
		newFinishCmd(),
		newEditCmd(),
		newResetCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
