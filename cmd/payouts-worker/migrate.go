package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/zoff-tech/go-payouts/pkg/config"
	"github.com/zoff-tech/go-payouts/pkg/scheduler"
	"github.com/zoff-tech/go-payouts/pkg/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the payout and process tracker tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromFile(configDir)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}
}

func runMigrate(ctx context.Context, cfg *config.Settings) error {
	if cfg.Database.Type == "postgres" {
		if err := migrateWith(ctx, cfg.Database.DSN, store.Migrate); err != nil {
			return fmt.Errorf("migrating payout store: %w", err)
		}
		log.Printf("Payout schema applied")
	}
	if cfg.TaskStore.Type == "postgres" {
		if err := migrateWith(ctx, cfg.TaskStore.DSN, scheduler.Migrate); err != nil {
			return fmt.Errorf("migrating task store: %w", err)
		}
		log.Printf("Process tracker schema applied")
	}
	if cfg.TaskStore.Type == "mongo" {
		// The mongo task store creates its indexes when opened.
		if _, err := scheduler.NewTaskRepository(ctx, cfg.TaskStore); err != nil {
			return fmt.Errorf("indexing task store: %w", err)
		}
		log.Printf("Process tracker indexes applied")
	}
	return nil
}

func migrateWith(ctx context.Context, dsn string, migrate func(context.Context, *sql.DB) error) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate(ctx, db)
}
