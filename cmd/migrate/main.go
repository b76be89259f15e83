package main

import (
	"context"
	"flag"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	loadEnvFiles()

	dir := migrationsDir()

	if *command == "create" {
		if *name == "" {
			log.Fatal().Msg("name is required for 'create' command")
		}
		if err := goose.Create(nil, dir, *name, "sql"); err != nil {
			log.Fatal().Err(err).Msg("failed to create migration")
		}
		log.Info().Str("name", *name).Str("dir", dir).Msg("migration created")
		return
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("failed to set goose dialect")
	}

	switch *command {
	case "up":
		if err := goose.UpContext(ctx, db, dir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Str("dir", dir).Msg("migrations applied")
	case "down":
		if err := goose.DownContext(ctx, db, dir); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back migration")
		}
		log.Info().Str("dir", dir).Msg("migration rolled back")
	case "status":
		if err := goose.StatusContext(ctx, db, dir); err != nil {
			log.Fatal().Err(err).Msg("failed to check migration status")
		}
	default:
		log.Fatal().Str("command", *command).Msg("unknown command, use: up, down, status, create")
	}
}
