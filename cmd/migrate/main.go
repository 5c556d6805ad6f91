package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/migration"
	"github.com/betterbeing/session-auth/internal/server"
)

func main() {
	command := flag.String("command", "up", "migration command (up/down/down-to/status/version/reset)")
	target := flag.Int64("to", -1, "target version for down-to")
	flag.Parse()

	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = server.EnvDevelopment
		os.Setenv("APP_ENV", env)
	}

	logger, err := server.NewLogger(env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	migrator, err := migration.NewMigrator(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to create migrator", zap.Error(err))
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, migrator, *command, *target, logger); err != nil {
		logger.Fatal("migration command failed", zap.String("command", *command), zap.Error(err))
	}
}

func run(ctx context.Context, migrator *migration.Migrator, command string, target int64, logger *zap.Logger) error {
	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "down-to":
		if target < 0 {
			logger.Fatal("down-to requires -to")
		}
		return migrator.DownTo(ctx, target)
	case "status":
		return migrator.Status(ctx)
	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		logger.Info("schema version",
			zap.Int64("current", version),
			zap.Int64("latest", migrator.Latest()))
		return nil
	case "reset":
		return migrator.Reset(ctx)
	default:
		logger.Fatal("unknown command", zap.String("command", command))
		return nil
	}
}
