package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/betterbeing/session-auth/internal/config"
	"github.com/betterbeing/session-auth/internal/database"
)

// Migrator applies the users and user_sessions schema.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
	log      *zap.Logger
}

func NewMigrator(cfg *config.DatabaseConfig, log *zap.Logger) (*Migrator, error) {
	dir, err := getMigrationsDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations directory: %w", err)
	}
	return newMigrator(cfg, os.DirFS(dir), log)
}

func newMigrator(cfg *config.DatabaseConfig, fsys fs.FS, log *zap.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", database.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return &Migrator{
		db:       db,
		provider: provider,
		log:      log,
	}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.logResults(results...)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	if result != nil {
		m.logResults(result)
	}
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

func (m *Migrator) DownTo(ctx context.Context, version int64) error {
	results, err := m.provider.DownTo(ctx, version)
	m.logResults(results...)
	if err != nil {
		return fmt.Errorf("failed to migrate down to version %d: %w", version, err)
	}
	return nil
}

// Reset rolls every migration back and applies them again.
func (m *Migrator) Reset(ctx context.Context) error {
	if err := m.DownTo(ctx, 0); err != nil {
		return err
	}
	return m.Up(ctx)
}

// Version returns the version recorded in the database.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// Latest returns the newest migration version on disk.
func (m *Migrator) Latest() int64 {
	return latestVersion(m.provider.ListSources())
}

func latestVersion(sources []*goose.Source) int64 {
	var latest int64
	for _, s := range sources {
		if s.Version > latest {
			latest = s.Version
		}
	}
	return latest
}

// Status logs each migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	for _, s := range statuses {
		fields := []zap.Field{
			zap.Int64("version", s.Source.Version),
			zap.String("path", s.Source.Path),
			zap.String("state", string(s.State)),
		}
		if !s.AppliedAt.IsZero() {
			fields = append(fields, zap.Time("applied_at", s.AppliedAt))
		}
		m.log.Info("migration", fields...)
	}
	return nil
}

func (m *Migrator) Close() error {
	return m.db.Close()
}

func (m *Migrator) logResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		m.log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("direction", r.Direction),
			zap.Duration("took", r.Duration),
			zap.Bool("empty", r.Empty))
	}
}
