package cmd

import (
	"errors"

	"labguard/internal/logs"
	"labguard/server"

	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("database.driver is not set")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and indexes, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == "" {
			return errNoDatabase
		}
		_, gdb, err := server.OpenStore(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		logs.Logger.WithField("driver", cfg.Database.Driver).Info("migrations applied")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
