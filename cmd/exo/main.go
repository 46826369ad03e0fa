// Command exo compiles declaration files into a model artifact, derives
// schema migrations, and serves the generated API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "exo",
		Short:         "Declarative GraphQL backends on Postgres",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildCmd(), migrateCmd(), serveCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "exo:", err)
		os.Exit(1)
	}
}
