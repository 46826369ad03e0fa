package main

import (
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/exo/compiler/load"
	dbschema "github.com/syssam/exo/dialect/sql/schema"
)

func migrateCmd() *cobra.Command {
	var (
		oldDir           string
		databaseURL      string
		allowDestructive bool
		scopeNewSpec     bool
		interactionsPath string
	)
	cmd := &cobra.Command{
		Use:   "migrate [model-dir]",
		Short: "Diff the model against an older model or a live database",
		Long: `Diff the model against an older model directory (--old) or a live
database (--database) and print the migration SQL. Destructive statements
are commented out unless --allow-destructive is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			newSys, err := load.Dir(dir)
			if err != nil {
				return err
			}

			var oldSpec *dbschema.Database
			switch {
			case oldDir != "":
				oldSys, err := load.Dir(oldDir)
				if err != nil {
					return err
				}
				oldSpec = oldSys.Database
			case databaseURL != "":
				db, err := sql.Open("postgres", databaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				oldSpec, err = dbschema.InspectDatabase(cmd.Context(), db)
				if err != nil {
					return err
				}
			default:
				oldSpec = &dbschema.Database{}
			}

			opts := dbschema.DiffOptions{}
			if scopeNewSpec {
				opts.Scope = dbschema.ScopeFromNewSpec
			}
			if interactionsPath != "" {
				data, err := os.ReadFile(interactionsPath)
				if err != nil {
					return err
				}
				var interaction dbschema.PredefinedMigrationInteraction
				if err := yaml.Unmarshal(data, &interaction); err != nil {
					return err
				}
				opts.Interaction = &interaction
			}

			migration, err := dbschema.Diff(oldSpec, newSys.Database, opts)
			if err != nil {
				return err
			}
			return migration.Write(cmd.OutOrStdout(), allowDestructive)
		},
	}
	cmd.Flags().StringVar(&oldDir, "old", "", "older model directory to diff from")
	cmd.Flags().StringVar(&databaseURL, "database", "", "live database URL to diff from")
	cmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "emit destructive statements uncommented")
	cmd.Flags().BoolVar(&scopeNewSpec, "scope-new-spec", false, "restrict the diff to schemas the new model declares")
	cmd.Flags().StringVar(&interactionsPath, "interactions", "", "yaml file with predefined table actions")
	return cmd
}
