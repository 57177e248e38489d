// Package main provides the API key provisioning CLI tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/contributor-info/rollout/internal/auth"
	"github.com/contributor-info/rollout/internal/db"
	"github.com/contributor-info/rollout/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	var (
		dbURL   = flag.String("db", "", "Database URL (or set DATABASE_URL env var)")
		name    = flag.String("name", "", "Name identifying the key holder (required)")
		disable = flag.String("disable", "", "Disable the key with this ID instead of creating one")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	url := *dbURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		logger.Fatal().Msg("database URL required: use -db flag or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 2
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if *disable != "" {
		id, err := uuid.Parse(*disable)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid key ID")
		}
		if err := database.DisableAPIKey(ctx, id); err != nil {
			logger.Fatal().Err(err).Msg("failed to disable API key")
		}
		fmt.Printf("API key %s disabled\n", id)
		return
	}

	if *name == "" {
		logger.Fatal().Msg("-name is required when creating a key")
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to generate API key")
	}

	record := models.NewAPIKey(*name, auth.HashAPIKey(key))
	if err := database.CreateAPIKey(ctx, record); err != nil {
		logger.Fatal().Err(err).Msg("failed to store API key")
	}

	// The plaintext key is shown once and never stored.
	fmt.Printf("API key created for %q (id %s):\n\n  %s\n\nStore it now; it cannot be recovered.\n", *name, record.ID, key)
}
