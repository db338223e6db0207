package main

import (
	"github.com/spf13/cobra"

	"dropstack/internal/database"
	"dropstack/internal/database/migration"
	"dropstack/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Location())

			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			_, err = migration.Run(cmd.Context(), db, log)
			return err
		},
	}
}
