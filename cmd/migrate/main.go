// Command migrate maintains the activity journal database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/infrastructure/migration"
	"github.com/erp/backoffice/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func main() {
	var (
		logLevel  string
		olderThan time.Duration
	)
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the records removed by prune")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(config.LogConfig{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("driver", cfg.Database.Driver),
	)

	switch command {
	case "up", "down", "step", "version", "force":
		runSchemaCommand(log, &cfg.Database, command, args[1:])
	case "prune", "stats":
		runJournalCommand(log, cfg, command, logLevel, olderThan)
	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func runSchemaCommand(log *zap.Logger, cfg *config.DatabaseConfig, command string, args []string) {
	m, err := migration.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error("Error closing migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}

	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Rollback failed", zap.Error(err))
		}

	case "step":
		if len(args) == 0 {
			log.Fatal("Step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal("Invalid step count", zap.String("value", args[0]))
		}
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		fmt.Printf("Version: %d\nDirty: %t\n", version, dirty)

	case "force":
		if len(args) == 0 {
			log.Fatal("Version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[0]))
		}
		if err := m.Force(version); err != nil {
			log.Fatal("Force failed", zap.Error(err))
		}
	}
}

func runJournalCommand(log *zap.Logger, cfg *config.Config, command, logLevel string, olderThan time.Duration) {
	db, err := persistence.NewDatabase(&cfg.Database,
		logger.NewGormLogger(log, logger.GormLevel(logLevel), 200*time.Millisecond))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	repo := persistence.NewGormActivityRepository(db.DB)
	switch command {
	case "prune":
		if olderThan <= 0 {
			log.Fatal("-older-than must be positive")
		}
		cutoff := time.Now().Add(-olderThan)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := repo.DeleteBefore(ctx, cutoff)
		if err != nil {
			log.Fatal("Prune failed", zap.Error(err))
		}
		log.Info("Journal pruned",
			zap.Time("cutoff", cutoff),
			zap.Int64("removed", removed),
		)

	case "stats":
		counts, err := repo.CountByOutcome(context.Background(), "")
		if err != nil {
			log.Fatal("Failed to count journal records", zap.Error(err))
		}
		for outcome, n := range counts {
			fmt.Printf("  %-12s %d\n", outcome, n)
		}
	}
}

func printUsage() {
	fmt.Println(`Usage: migrate [flags] <command>

Commands:
  up           Apply all pending schema migrations
  down         Roll back all schema migrations
  step <n>     Apply n migrations (negative rolls back)
  version      Print the current schema version
  force <v>    Set the schema version without running migrations
  prune        Remove journal records older than -older-than
  stats        Print the number of records per outcome

Flags:
  -log-level    Log level (debug, info, warn, error)
  -older-than   Age of pruned records (default 720h)`)
}
