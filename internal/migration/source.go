package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

const (
	modulePath    = "github.com/betterbeing/session-auth"
	migrationsEnv = "MIGRATIONS_DIR"
)

var errModuleRootNotFound = errors.New("module root not found")

// getMigrationsDir resolves the SQL directory. MIGRATIONS_DIR is used by
// deployed binaries; a source checkout falls back to <module root>/migrations.
func getMigrationsDir() (string, error) {
	if dir := os.Getenv(migrationsEnv); dir != "" {
		return filepath.Abs(dir)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := findModuleRoot(wd)
	if err != nil {
		return "", fmt.Errorf("set %s or run inside the source tree: %w", migrationsEnv, err)
	}
	return filepath.Join(root, "migrations"), nil
}

// findModuleRoot walks up from dir to the go.mod declaring modulePath.
func findModuleRoot(dir string) (string, error) {
	for {
		if content, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
			if modfile.ModulePath(content) == modulePath {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errModuleRootNotFound
		}
		dir = parent
	}
}
