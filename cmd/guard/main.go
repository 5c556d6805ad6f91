package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/guard"
	"github.com/betterbeing/session-auth/internal/server"
)

func main() {
	home, _ := os.UserHomeDir()

	serverURL := flag.String("server", "http://localhost:8080", "auth server base URL")
	storePath := flag.String("store", filepath.Join(home, ".session-auth", "session.json"), "session file")
	path := flag.String("path", "/account", "protected path to check")
	requireVerified := flag.Bool("require-verified", false, "require a verified email")
	email := flag.String("email", "", "log in with this email before checking")
	password := flag.String("password", "", "password for -email")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	debounce := flag.Duration("debounce", 2*time.Second, "reuse a successful check for this long")
	flag.Parse()

	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = server.EnvDevelopment
	}
	logger, err := server.NewLogger(env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	client := guard.NewClient(*serverURL, *timeout)
	store := guard.NewFileStore(*storePath)

	if *email != "" {
		sess, err := client.Login(ctx, *email, *password)
		if err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
		if err := store.Save(ctx, sess); err != nil {
			logger.Fatal("failed to save session", zap.Error(err))
		}
		logger.Info("logged in", zap.String("email", sess.User.Email))
	}

	g := guard.New(store, client, *debounce, logger.Named("guard")).WithTimeout(*timeout)
	d := g.Check(ctx, *path, *requireVerified)

	switch d.Kind {
	case guard.Render:
		fmt.Printf("render %s as %s\n", *path, d.User.Email)
	default:
		fmt.Printf("%s -> %s\n", d.Kind, d.Location())
		os.Exit(1)
	}
}
