package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", database.ActionUp, "Migration action: up, down, steps, version, force")
	n := flag.Int("n", 0, "Step count for steps, target version for force")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dsn := cfg.DatabaseURL
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	logger := config.NewLogger(cfg.Environment)

	dbName, err := database.DatabaseName(dsn)
	if err != nil {
		return err
	}

	db, err := database.NewPool(database.DefaultPoolConfig(dsn))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db, dbName)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	logger.Info("running migration", slog.String("action", *action), slog.String("database", dbName))
	version, err := migrator.Run(*action, *n)
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", *action, err)
	}
	logger.Info("migration finished", slog.String("version", version))

	return nil
}
