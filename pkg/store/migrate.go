package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
)

var migrationName = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies migrations for one backend.
type Migrator interface {
	// EnsureVersionTable creates schema_migrations if needed.
	EnsureVersionTable(ctx context.Context) error
	// AppliedVersions lists versions already recorded.
	AppliedVersions(ctx context.Context) (map[int]bool, error)
	// Apply runs m and records its version in a single transaction.
	Apply(ctx context.Context, m Migration) error
}

// LoadMigrations reads NNN_name.sql files from dir, ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("migration %s: name must look like 001_description.sql", e.Name())
		}
		version, _ := strconv.Atoi(m[1])
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{Version: version, Name: m[2], SQL: string(body)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies every migration whose version is not yet recorded and
// returns how many ran.
func Migrate(ctx context.Context, m Migrator, migrations []Migration, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := m.EnsureVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading applied migrations: %w", err)
	}

	count := 0
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		logger.Info("applying migration", "version", mig.Version, "name", mig.Name)
		if err := m.Apply(ctx, mig); err != nil {
			return count, fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("migrations completed", "applied", count)
	}
	return count, nil
}

// LatestVersion returns the highest version in migrations.
func LatestVersion(migrations []Migration) int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
