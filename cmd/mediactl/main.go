// Command mediactl holds the operator tasks that run outside the API process.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "mediactl",
		Short:        "Maintenance tasks for the parish media service",
		SilenceUsage: true,
	}
	root.AddCommand(newReconcileCmd(), newTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
