package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		statusFlag = flag.Bool("status", false, "Show migration status")
		upFlag     = flag.Bool("up", false, "Run pending migrations")
		downFlag   = flag.Bool("down", false, "Roll back the last migration")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Setup("info", false, "migrate")
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Setup(cfg.Log.Level, cfg.IsProduction(), "migrate")

	db, err := database.NewConnection(context.Background(), database.FromConfig(cfg.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	switch {
	case *statusFlag:
		if err := db.GetMigrationStatus(); err != nil {
			log.Fatal().Err(err).Msg("Failed to get migration status")
		}
	case *upFlag:
		if err := db.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("All migrations completed successfully")
	case *downFlag:
		if err := db.RollbackMigration(); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		log.Info().Msg("Rolled back one migration")
	default:
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/migrate -status   # Show migration status")
		fmt.Println("  go run ./cmd/migrate -up       # Run pending migrations")
		fmt.Println("  go run ./cmd/migrate -down     # Roll back the last migration")
		os.Exit(1)
	}
}
