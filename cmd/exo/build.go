package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/exo/compiler/load"
)

func buildCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "build [model-dir]",
		Short: "Compile declaration files into a model artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			sys, err := load.Dir(dir)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := sys.Serialize(f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d entities, %d queries, %d mutations)\n",
				out, len(sys.Entities), len(sys.Queries), len(sys.Mutations))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "exo_ir.bin", "artifact output path")
	return cmd
}
