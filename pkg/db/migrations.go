// Package db provides migration loading for the usage ledger's schema.
package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

// migrationFilename enforces the ledger's own naming scheme, e.g.
// 0001_usage_records.sql — a 4-digit ordering prefix followed by a
// lower_snake_case description. A file that doesn't match is almost always
// an editor backup or an unrelated file dropped into the migrations
// directory by mistake, not a real migration, so it's skipped with a
// warning rather than silently applied or silently ordered wrong.
var migrationFilename = regexp.MustCompile(`^\d{4}_[a-z0-9_]+\.sql$`)

// LoadMigrationFiles reads every conforming .sql file from dir, sorted by
// the numeric prefix in its name, and returns their contents in that order.
func LoadMigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !migrationFilename.MatchString(e.Name()) {
			if filepath.Ext(e.Name()) == ".sql" {
				slog.Warn(fmt.Sprintf("%s - skipping %s: does not match NNNN_description.sql", migrationsLogPrefix, e.Name()))
			}
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, string(data))
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}
