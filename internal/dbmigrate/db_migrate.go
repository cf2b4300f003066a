// Package dbmigrate runs the versioned SQL migrations that session stores
// need. Migrations are read from an embedded filesystem, and applied through
// an Executor that each store implements for its database driver, usually
// inside a transaction.
package dbmigrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/util/sliceutil"
)

// Migration is a single versioned migration.
type Migration struct {
	Down    string
	Name    string
	Up      string
	Version int
}

// Executor runs migration SQL against a database and tracks which versions
// have been applied. The version table is created by the first migration, so
// ExistingVersions must tolerate it not existing yet.
type Executor interface {
	DeleteVersions(ctx context.Context, versions []int) error
	Exec(ctx context.Context, sql string) error
	ExistingVersions(ctx context.Context) ([]int, error)
	InsertVersions(ctx context.Context, versions []int) error
}

var migrationFileRE = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Load reads migrations from dir in fsys. Files must be named like
// `001_create_session_value.up.sql` with a matching down file, and versions
// must start at 1 and be contiguous.
func Load(fsys fs.FS, dir string) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("error reading migrations: %w", err)
	}

	migrationsByVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := migrationFileRE.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("unexpected migration file name: %s", entry.Name())
		}

		version, _ := strconv.Atoi(match[1])

		contents, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("error reading migration file %s: %w", entry.Name(), err)
		}

		migration, ok := migrationsByVersion[version]
		if !ok {
			migration = &Migration{Name: match[2], Version: version}
			migrationsByVersion[version] = migration
		}
		if migration.Name != match[2] {
			return nil, fmt.Errorf("migration %03d has mismatched names: %s and %s", version, migration.Name, match[2])
		}

		if match[3] == "up" {
			migration.Up = string(contents)
		} else {
			migration.Down = string(contents)
		}
	}

	migrations := make([]*Migration, 0, len(migrationsByVersion))
	for _, migration := range migrationsByVersion {
		migrations = append(migrations, migration)
	}
	slices.SortFunc(migrations, func(a, b *Migration) int { return a.Version - b.Version })

	if err := validate(migrations); err != nil {
		return nil, err
	}

	return migrations, nil
}

// Validates a set of migrations to reduce the probability of configuration
// problems as new migrations are introduced, like a missing down file or a
// skipped version number.
func validate(migrations []*Migration) error {
	lastVersion := 0
	for _, migration := range migrations {
		if migration.Down == "" {
			return fmt.Errorf("migration %03d should specify a down file", migration.Version)
		}
		if migration.Up == "" {
			return fmt.Errorf("migration %03d should specify an up file", migration.Version)
		}
		if migration.Version != lastVersion+1 {
			return fmt.Errorf("versions shouldn't skip a sequence number; current: %03d, last: %03d", migration.Version, lastVersion)
		}
		lastVersion = migration.Version
	}
	return nil
}

// Migrator applies migrations up or down.
type Migrator struct {
	baseservice.BaseService

	migrations []*Migration
}

func NewMigrator(archetype *baseservice.Archetype, migrations []*Migration) *Migrator {
	return baseservice.Init(archetype, &Migrator{
		migrations: migrations,
	})
}

// MigrateOpts are options for a migrate operation.
type MigrateOpts struct {
	// MaxSteps is the maximum number of migrations to apply either up or down.
	// Leave zero for an unlimited number.
	MaxSteps int
}

// MigrateResult is the result of a migrate operation.
type MigrateResult struct {
	// Versions are migration versions that were added (for up migrations) or
	// removed (for down migrations) for this run.
	Versions []int
}

// Down runs down migrations in reverse version order.
func (m *Migrator) Down(ctx context.Context, exec Executor, opts *MigrateOpts) (*MigrateResult, error) {
	existingVersions, err := exec.ExistingVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting existing migration versions: %w", err)
	}

	targetMigrations := sliceutil.Filter(m.migrations, func(migration *Migration) bool {
		return slices.Contains(existingVersions, migration.Version)
	})
	slices.Reverse(targetMigrations)

	res, err := m.applyMigrations(ctx, exec, opts, targetMigrations, true)
	if err != nil {
		return nil, err
	}

	// Version 1 creates the version table, so if it was removed there's
	// nothing left to delete from.
	if len(res.Versions) < 1 || slices.Contains(res.Versions, 1) {
		return res, nil
	}

	if err := exec.DeleteVersions(ctx, res.Versions); err != nil {
		return nil, fmt.Errorf("error deleting migration versions %+v: %w", res.Versions, err)
	}

	return res, nil
}

// Up runs up migrations in version order.
func (m *Migrator) Up(ctx context.Context, exec Executor, opts *MigrateOpts) (*MigrateResult, error) {
	existingVersions, err := exec.ExistingVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting existing migration versions: %w", err)
	}

	targetMigrations := sliceutil.Filter(m.migrations, func(migration *Migration) bool {
		return !slices.Contains(existingVersions, migration.Version)
	})

	res, err := m.applyMigrations(ctx, exec, opts, targetMigrations, false)
	if err != nil {
		return nil, err
	}

	if len(res.Versions) < 1 {
		return res, nil
	}

	if err := exec.InsertVersions(ctx, res.Versions); err != nil {
		return nil, fmt.Errorf("error inserting migration versions %+v: %w", res.Versions, err)
	}

	return res, nil
}

// Common code shared between the up and down migration directions that walks
// through each target migration and applies it, logging appropriately.
func (m *Migrator) applyMigrations(ctx context.Context, exec Executor, opts *MigrateOpts, targetMigrations []*Migration, down bool) (*MigrateResult, error) {
	if opts == nil {
		opts = &MigrateOpts{}
	}

	if opts.MaxSteps > 0 {
		targetMigrations = targetMigrations[0:min(opts.MaxSteps, len(targetMigrations))]
	}

	res := &MigrateResult{Versions: make([]int, 0, len(targetMigrations))}

	if len(targetMigrations) < 1 {
		m.Logger.InfoContext(ctx, m.Name+": No migrations to apply")
		return res, nil
	}

	direction := "up"
	if down {
		direction = "down"
	}

	for _, migration := range targetMigrations {
		sql := migration.Up
		if down {
			sql = migration.Down
		}

		m.Logger.InfoContext(ctx, fmt.Sprintf(m.Name+": Applying migration %03d [%s]", migration.Version, strings.ToUpper(direction)),
			slog.String("direction", direction),
			slog.String("name", migration.Name),
			slog.Int("version", migration.Version),
		)

		if err := exec.Exec(ctx, sql); err != nil {
			return nil, fmt.Errorf("error applying version %03d [%s]: %w", migration.Version, strings.ToUpper(direction), err)
		}

		res.Versions = append(res.Versions, migration.Version)
	}

	return res, nil
}
