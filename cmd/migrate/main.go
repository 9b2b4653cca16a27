package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/crestpointmarketing/eventra-app-sub000/migrations"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// Usage: migrate [up | down <steps> | force <version> | version]
func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	if err := run(os.Args[1:], strings.TrimSpace(os.Getenv("DATABASE_URL")), logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, databaseURL string, logger *logging.Logger) error {
	cmd, arg, err := parseArgs(args)
	if err != nil {
		return err
	}
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch cmd {
	case "force":
		if err := m.Force(arg); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced migration version", "version", arg)
	case "down":
		if err := m.Steps(-arg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("migrations rolled back", "steps", arg)
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("current migration version", "version", version, "dirty", dirty)
	default:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info("migrations complete")
	}
	return nil
}

// parseArgs validates the subcommand before any connection is opened.
func parseArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "up", 0, nil
	}
	switch args[0] {
	case "up", "version":
		return args[0], 0, nil
	case "force", "down":
		if len(args) < 2 {
			return "", 0, fmt.Errorf("%s requires a number", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return "", 0, fmt.Errorf("invalid number %q: %w", args[1], err)
		}
		if args[0] == "down" && n <= 0 {
			return "", 0, fmt.Errorf("down steps must be positive")
		}
		return args[0], n, nil
	default:
		return "", 0, fmt.Errorf("unknown command %q", args[0])
	}
}
