// Package main is the entrypoint for the capability gateway.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/morezero/capability-gateway/internal/config"
	"github.com/morezero/capability-gateway/internal/server"
	"github.com/morezero/capability-gateway/pkg/db"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:  "gateway",
		Usage: "a pay-per-request capability gateway for autonomous agents",
		Commands: []*cli.Command{
			commandServe,
			commandMigrate,
			commandClear,
			commandEnsureDB,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var commandServe = &cli.Command{
	Name:   "serve",
	Usage:  "start the gateway's HTTP API",
	Action: func(ctx *cli.Context) error { return server.Run() },
}

var commandMigrate = &cli.Command{
	Name:      "migrate",
	Usage:     "manage the usage ledger schema",
	ArgsUsage: "<up|down|status>",
	Subcommands: []*cli.Command{
		{Name: "up", Usage: "apply pending migrations", Action: runMigrateUp},
		{Name: "down", Usage: "roll back the most recent migration", Action: runMigrateDown},
		{Name: "status", Usage: "show applied and pending migrations", Action: runMigrateStatus},
	},
}

var commandClear = &cli.Command{
	Name:  "clear",
	Usage: "truncate the usage ledger; schema is preserved",
	Action: func(ctx *cli.Context) error {
		_, pool, err := dbConn()
		if err != nil {
			return err
		}
		defer pool.Close()
		return db.ClearLedger(context.Background(), pool)
	},
}

var commandEnsureDB = &cli.Command{
	Name:      "ensure-db",
	Usage:     "create the target database if it does not already exist",
	ArgsUsage: "[name]",
	Action: func(ctx *cli.Context) error {
		name := ctx.Args().First()
		if name == "" {
			name = "morezero_test"
		}
		return ensureDB(name)
	},
}

func runMigrateUp(ctx *cli.Context) error {
	cfg, pool, err := dbConn()
	if err != nil {
		return err
	}
	defer pool.Close()

	files, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return db.RunMigrations(context.Background(), pool, files)
}

func runMigrateDown(ctx *cli.Context) error {
	cfg, pool, err := dbConn()
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.MigrationDown(context.Background(), pool, cfg.MigrationPath)
}

func runMigrateStatus(ctx *cli.Context) error {
	cfg, pool, err := dbConn()
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.MigrationStatus(context.Background(), pool, cfg.MigrationPath)
}

// dbConn loads DB-only config and opens a pool, matching the teacher's
// per-command connect/defer-close pattern rather than holding one pool open
// across the whole CLI process.
func dbConn() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func ensureDB(name string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("database %q is ready\n", name)
	return nil
}
