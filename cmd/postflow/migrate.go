package main

import (
	"log/slog"

	"github.com/maheshrc27/postflow/migrations"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			db, err := openDB(cmd.Context(), cfg.PostgresURI)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Up(cmd.Context(), db); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}

	return command
}
