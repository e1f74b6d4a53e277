package main

import (
	"github.com/spf13/cobra"

	pgstore "sasana/internal/registry/store/postgres"
	sqlitestore "sasana/internal/registry/store/sqlite"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the registry schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			switch e.cfg.Database.Driver {
			case "postgres":
				err = pgstore.EnsureSchema(ctx, e.db, e.families)
			case "sqlite":
				err = sqlitestore.EnsureSchema(ctx, e.db, e.families)
			}
			if err != nil {
				return err
			}
			e.log.Info("schema ensured",
				"driver", e.cfg.Database.Driver, "families", e.families.Names())
			return nil
		},
	}
}
