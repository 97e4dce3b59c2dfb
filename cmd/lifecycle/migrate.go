package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/container"
	"github.com/garyjia/barangay-lifecycle/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cc := cfg.ToContainerConfig()
			if cc.Storage != container.StorageSQLite {
				return fmt.Errorf("migrate requires the sqlite storage driver, got %q", cc.Storage)
			}

			db, err := container.OpenDatabase(cmd.Context(), &cc.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.NewMigrator(db, logger).Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			logger.Info("Migrations complete", zap.Int("applied", applied), zap.String("path", cc.Database.Path))
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}
