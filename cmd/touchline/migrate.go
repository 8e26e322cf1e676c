package main

import (
	"fmt"
	"strconv"

	crerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database(cmd)
			if err != nil {
				return err
			}
			return db.Migrate()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down STEPS",
		Short: "Roll back the last STEPS migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil {
				return crerr.Wrapf(err, "parse steps %q", args[0])
			}
			db, err := a.database(cmd)
			if err != nil {
				return err
			}
			return db.MigrateDown(steps)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(cmd, map[string]any{"version": version, "dirty": dirty})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return err
		},
	})
	return cmd
}
