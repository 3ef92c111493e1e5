package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-bot/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if !pg.Configured() {
			return fmt.Errorf("POSTGRES_DSN is not set")
		}
		return persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
	},
}
