package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/useraccounts/user-accounts/internal/infrastructure/config"
	mongostore "github.com/useraccounts/user-accounts/internal/infrastructure/db/mongo"
	pgstore "github.com/useraccounts/user-accounts/internal/infrastructure/db/postgres"
	"github.com/useraccounts/user-accounts/pkg/logger"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the user store schema",
		Long: `Apply pending PostgreSQL migrations, or create the MongoDB indexes,
depending on STORE_DRIVER.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: serviceName, Env: cfg.Env})
			return runMigrate(cmd, cfg, log, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest PostgreSQL migration")
	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *config.Config, log zerolog.Logger, down bool) error {
	ctx := cmd.Context()

	switch cfg.StoreDriver {
	case config.StorePostgres:
		if down {
			pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pgstore.MigrateDown(ctx, pool); err != nil {
				return err
			}
			cmd.Println("Rolled back latest migration")
			return nil
		}
		if err := migratePostgres(ctx, cfg, log); err != nil {
			return err
		}

	case config.StoreMongo:
		if down {
			return oops.Code("CONFIG_INVALID").Errorf("--down is only supported for the postgres store")
		}
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").Wrap(err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := mongostore.NewUserRepository(db).EnsureIndexes(ctx); err != nil {
			return oops.Code("DB_INDEX_FAILED").Wrap(err)
		}

	case config.StoreMemory:
		cmd.Println("In-memory store has no schema")
		return nil
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func migratePostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
	if err != nil {
		return err
	}
	defer pool.Close()

	version, err := pgstore.MigrateUp(ctx, pool)
	if err != nil {
		return err
	}
	log.Info().Int64("version", version).Msg("database schema up to date")
	return nil
}
