package main

import (
	"database/sql"

	"github.com/fatih/color"
	"github.com/lychee-technology/dynaform/internal"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the collection metadata tables",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create or upgrade the metadata tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, func(db *sql.DB) error {
				if err := internal.MigrateMetadata(db); err != nil {
					return err
				}
				version, err := internal.MetadataVersion(db)
				if err != nil {
					return err
				}
				color.Green("✓ metadata tables at version %d", version)
				return nil
			})
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending metadata migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, internal.MigrationStatus)
		},
	})

	return migrate
}

func withMigrationDB(cmd *cobra.Command, fn func(db *sql.DB) error) error {
	dsn, err := internal.MigrationDSN(cmd.Context(), loadedConfig.Database)
	if err != nil {
		return err
	}
	db, err := internal.OpenSQLDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
