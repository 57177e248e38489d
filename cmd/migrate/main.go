// Package main applies rollout schema migrations, for deploy pipelines that
// migrate before starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/contributor-info/rollout/internal/db"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbURL   = flag.String("db", os.Getenv("DATABASE_URL"), "Database URL (defaults to DATABASE_URL)")
		showVer = flag.Bool("version", false, "Print the current schema version and exit")
		list    = flag.Bool("list", false, "List embedded migrations and exit")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *list {
		migrations, err := db.GetMigrations()
		if err != nil {
			logger.Error().Err(err).Msg("failed to list migrations")
			return 1
		}
		for _, m := range migrations {
			fmt.Printf("%04d  %s\n", m.Version, m.Name)
		}
		return 0
	}

	if *dbURL == "" {
		logger.Error().Msg("database URL required: use -db or set DATABASE_URL")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// The migrator needs only a couple of connections.
	cfg := db.DefaultConfig(*dbURL)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return 1
	}
	defer database.Close()

	if *showVer {
		version, err := database.CurrentVersion(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to get schema version")
			return 1
		}
		fmt.Printf("schema version: %d\n", version)
		return 0
	}

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		return 1
	}

	version, err := database.CurrentVersion(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read schema version after migrating")
		return 0
	}
	logger.Info().Int("version", version).Msg("migrations complete")
	return 0
}
