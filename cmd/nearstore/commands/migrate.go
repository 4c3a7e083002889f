package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/config"
	"github.com/marmos91/nearstore/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the request database.

This command creates or updates the tables holding request groups, file
references and failed requests on the configured database (SQLite or
PostgreSQL). It is required after upgrading nearstore when the schema changed.

Examples:
  # Run migrations with default config
  nearstore migrate

  # Run migrations with custom config
  nearstore migrate --config /etc/nearstore/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	// Opening the store runs the migration.
	s, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Healthcheck(context.Background()); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed successfully (database type: %s)\n", cfg.Database.Type)
	return nil
}
