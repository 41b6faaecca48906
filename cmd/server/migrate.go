package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rl1809/benefit-ledger/internal/adapter/storage"
	"github.com/rl1809/benefit-ledger/internal/platform/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply MySQL schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if cfg.Storage != config.StorageMySQL {
			return errors.New("migrate requires mysql storage")
		}

		db, err := openMySQL(cmd.Context(), cfg.MySQL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(db); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}
