package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"vip-entitlement/internal/config"
	"vip-entitlement/internal/infra/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	source := flag.String("source", "file://migrations", "migration source url")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if cfg.Database.Driver != "postgres" {
		logger.Fatal().Str("driver", cfg.Database.Driver).Msg("migrations only apply to postgres; sqlite applies its schema on open")
	}

	m, err := migrate.New(*source, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create migrate instance")
	}
	defer m.Close()

	args := flag.Args()
	if len(args) < 1 {
		logger.Fatal().Msg("usage: migrate [flags] <up|down|version|force N>")
	}

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		logger.Info().Msg("migrations applied")

	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("failed to roll back migration")
		}
		logger.Info().Msg("migration rolled back")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to read version")
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")

	case "force":
		if len(args) < 2 {
			logger.Fatal().Msg("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		if err := m.Force(version); err != nil {
			logger.Fatal().Err(err).Msg("failed to force version")
		}
		logger.Info().Int("version", version).Msg("forced version")

	default:
		logger.Fatal().Str("command", args[0]).Msg("unknown command")
	}
}
