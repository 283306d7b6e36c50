package main

import (
	"github.com/spf13/cobra"

	"github.com/memohai/forum/internal/db"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return db.Migrate(newLogger(cfg), cfg.Postgres.DSN(), migrateDown)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the latest migration")
}
