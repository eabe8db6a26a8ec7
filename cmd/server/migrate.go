package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/db"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver != db.DriverPostgres && cfg.DatabaseDriver != db.DriverSQLite {
				return errors.New("migrate requires DATABASE_DRIVER postgres or sqlite")
			}
			return db.Migrate(logger.L, cfg.DatabaseDriver, cfg.DatabaseDSN, args[0])
		},
	}
}
