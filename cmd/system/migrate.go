package system

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/store/postgres"
	"github.com/Alijeyrad/carelink/pkg/authorize"
	"github.com/Alijeyrad/carelink/pkg/database"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if cfg.Messaging.Store == config.StorePostgres {
				if err := migrateMessaging(ctx, cfg); err != nil {
					return err
				}
			} else {
				fmt.Println("Messaging store is in memory; skipping Messaging DB.")
			}

			if !cfg.Authorization.Persist {
				fmt.Println("Casbin policies are in memory; skipping Casbin DB.")
				fmt.Println("Migrations executed successfully.")
				return nil
			}

			// casbin db
			fmt.Println("Running Migrations For Casbin DB.")

			casbinDBDSN := database.NewDSN(cfg.CasbinDatabase)
			enforcer, cleanup, err := authorize.NewEnforcer(ctx, cfg.Authorization.CasbinModelPath, casbinDBDSN)
			if err != nil {
				return fmt.Errorf("failed to create enforcer: %w", err)
			}
			defer cleanup(context.Background())

			auth, err := authorize.NewAuthorization(enforcer)
			if err != nil {
				return fmt.Errorf("failed to create authorization: %w", err)
			}

			// Seed Casbin policies
			slog.Info("Seeding Casbin policies...")
			if err := authorize.SeedDefaultPolicies(ctx, auth); err != nil {
				return fmt.Errorf("failed to seed policies: %w", err)
			}

			fmt.Println("Migrations executed successfully.")
			return nil
		},
	}

	return cmd
}

func migrateMessaging(ctx context.Context, cfg *config.Config) error {
	fmt.Println("Running Migrations For Messaging DB.")
	db, err := database.New(database.FromCentralConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db.GetConnection(), db.Config().MigrateOptions()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
