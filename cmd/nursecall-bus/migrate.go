package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sua-org/nursecall-bus/internal/store"
)

var dropDatabase bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the database (if missing) and all tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, st *store.GormStore) error {
			if err := st.AutoMigrate(ctx); err != nil {
				return err
			}
			fmt.Println("Tables created (if not already present)")
			return nil
		}, true)
	},
}

var migrateDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop all tables (or the whole database with --database)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dropDatabase {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			srv, err := store.OpenServer(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			if err := srv.DropDatabase(cmd.Context(), cfg.Database.Name); err != nil {
				return fmt.Errorf("drop database: %w", err)
			}
			fmt.Printf("Database %s dropped\n", cfg.Database.Name)
			return nil
		}
		return withMigrator(cmd.Context(), func(ctx context.Context, st *store.GormStore) error {
			if err := st.DropAll(ctx); err != nil {
				return err
			}
			fmt.Println("All tables dropped")
			return nil
		}, false)
	},
}

var migrateRecreateCmd = &cobra.Command{
	Use:   "recreate",
	Short: "Drop and create all tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, st *store.GormStore) error {
			if err := st.DropAll(ctx); err != nil {
				return err
			}
			if err := st.AutoMigrate(ctx); err != nil {
				return err
			}
			fmt.Println("Database recreated")
			return nil
		}, false)
	},
}

var migrateSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default color scheme per event type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, st *store.GormStore) error {
			if err := st.SeedColors(ctx); err != nil {
				return fmt.Errorf("seed colors: %w", err)
			}
			fmt.Println("Default colors seeded")
			return nil
		}, false)
	},
}

// withMigrator abre o banco configurado; com ensureDB cria o banco antes.
func withMigrator(ctx context.Context, fn func(context.Context, *store.GormStore) error, ensureDB bool) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if ensureDB {
		srv, err := store.OpenServer(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		err = srv.CreateDatabase(ctx, cfg.Database.Name)
		srv.Close()
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
	}

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func init() {
	migrateDropCmd.Flags().BoolVar(&dropDatabase, "database", false, "drop the whole database instead of the tables")
	migrateCmd.AddCommand(migrateCreateCmd, migrateDropCmd, migrateRecreateCmd, migrateSeedCmd)
	rootCmd.AddCommand(migrateCmd)
}
