package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"expense/internal/config"
	"expense/internal/storage"
)

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.DataBackend != config.BackendSQLite {
				return fmt.Errorf("migrate needs DATA_BACKEND=sqlite, got %q", e.cfg.DataBackend)
			}
			if err := storage.RunMigrations(e.cfg.SQLiteDBPath); err != nil {
				return err
			}
			v, dirty, err := storage.MigrationVersion(e.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			e.logger.Info("Migrations applied", "db_path", e.cfg.SQLiteDBPath, "version", v, "dirty", dirty)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}
