package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/coursehub/payout-api/internal/config"
	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/logger"
)

func main() {
	up := flag.Bool("up", false, "Apply all pending migrations")
	down := flag.Int("down", 0, "Roll back this many migrations")
	version := flag.Bool("version", false, "Print the current schema version")
	flag.Parse()

	log, err := logger.New("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()

	switch {
	case *up:
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal("migrate up failed", "error", err)
		}
		log.Info("migrations applied")
	case *down > 0:
		if err := database.MigrateDown(cfg.DatabaseURL, *down); err != nil {
			log.Fatal("migrate down failed", "error", err)
		}
		log.Info("migrations rolled back", "steps", *down)
	case *version:
		v, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("read migration version failed", "error", err)
		}
		log.Info("schema version", "version", v, "dirty", dirty)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
