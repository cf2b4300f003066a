// Package sessionsqlite provides a scriptsession.Store backed by SQLite
// through database/sql. It's tested against modernc.org/sqlite, a pure Go
// driver which must be imported by the program opening the database:
//
//	import _ "modernc.org/sqlite"
//
//	dbPool, err := sql.Open("sqlite", "sessions.sqlite3")
//	...
//	store, err := sessionsqlite.New(dbPool, nil)
package sessionsqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/dbmigrate"
	"github.com/riverqueue/riverscript/scriptsession"
)

//go:embed migration/*.sql
var migrationFS embed.FS

// Config is configuration for a Store.
type Config struct {
	// Logger is the structured logger to use for logging purposes. If none is
	// specified, slog.Default is used.
	Logger *slog.Logger
}

// Store is a scriptsession.Store backed by SQLite.
type Store struct {
	baseservice.BaseService

	dbPool   *sql.DB
	migrator *dbmigrate.Migrator
}

// New returns a new store using the given database pool. The database must
// be migrated with Migrate before the store is used.
func New(dbPool *sql.DB, config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}

	return newStore(baseservice.NewArchetype(config.Logger), dbPool)
}

func newStore(archetype *baseservice.Archetype, dbPool *sql.DB) (*Store, error) {
	if dbPool == nil {
		return nil, errors.New("database pool is required")
	}

	migrations, err := dbmigrate.Load(migrationFS, "migration")
	if err != nil {
		return nil, err
	}

	return baseservice.Init(archetype, &Store{
		dbPool:   dbPool,
		migrator: dbmigrate.NewMigrator(archetype, migrations),
	}), nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.dbPool.ExecContext(ctx,
		`DELETE FROM riverscript_session_value WHERE session_id = ?`,
		sessionID,
	); err != nil {
		return interpretError(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string, section scriptsession.Section, key string) ([]byte, error) {
	var value []byte
	if err := s.dbPool.QueryRowContext(ctx,
		`SELECT value FROM riverscript_session_value WHERE session_id = ? AND section = ? AND key = ?`,
		sessionID, string(section), key,
	).Scan(&value); err != nil {
		return nil, interpretError(err)
	}
	return value, nil
}

func (s *Store) List(ctx context.Context, sessionID string, section scriptsession.Section) (map[string][]byte, error) {
	rows, err := s.dbPool.QueryContext(ctx,
		`SELECT key, value FROM riverscript_session_value WHERE session_id = ? AND section = ?`,
		sessionID, string(section),
	)
	if err != nil {
		return nil, interpretError(err)
	}
	defer rows.Close()

	values := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

func (s *Store) Put(ctx context.Context, sessionID string, section scriptsession.Section, key string, value []byte) error {
	if _, err := s.dbPool.ExecContext(ctx, `
		INSERT INTO riverscript_session_value (session_id, section, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, section, key) DO UPDATE
		SET value = excluded.value,
			updated_at = excluded.updated_at`,
		sessionID, string(section), key, string(value), s.Time.NowUTC(),
	); err != nil {
		return interpretError(err)
	}
	return nil
}

// Migrate runs migrations in the given direction inside a transaction. A
// maxSteps of zero applies every outstanding migration. Returns the versions
// applied.
func (s *Store) Migrate(ctx context.Context, direction scriptsession.MigrateDirection, maxSteps int) ([]int, error) {
	tx, err := s.dbPool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		exec = &sqlExecutor{tx: tx}
		opts = &dbmigrate.MigrateOpts{MaxSteps: maxSteps}
		res  *dbmigrate.MigrateResult
	)
	switch direction {
	case scriptsession.MigrateDirectionDown:
		res, err = s.migrator.Down(ctx, exec, opts)
	case scriptsession.MigrateDirectionUp:
		res, err = s.migrator.Up(ctx, exec, opts)
	default:
		return nil, fmt.Errorf("unknown migrate direction %q", direction)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return res.Versions, nil
}

func interpretError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return scriptsession.ErrNotFound
	}
	if strings.Contains(err.Error(), "no such table: riverscript_session_value") {
		return fmt.Errorf("%w: %w", scriptsession.ErrNotMigrated, err)
	}
	return err
}

// sqlExecutor runs migrations within a transaction.
type sqlExecutor struct {
	tx *sql.Tx
}

func (e *sqlExecutor) DeleteVersions(ctx context.Context, versions []int) error {
	for _, version := range versions {
		if _, err := e.tx.ExecContext(ctx, `DELETE FROM riverscript_migration WHERE version = ?`, version); err != nil {
			return err
		}
	}
	return nil
}

func (e *sqlExecutor) Exec(ctx context.Context, query string) error {
	_, err := e.tx.ExecContext(ctx, query)
	return err
}

func (e *sqlExecutor) ExistingVersions(ctx context.Context) ([]int, error) {
	var numTables int
	if err := e.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'riverscript_migration'`,
	).Scan(&numTables); err != nil {
		return nil, err
	}
	if numTables < 1 {
		return nil, nil
	}

	rows, err := e.tx.QueryContext(ctx, `SELECT version FROM riverscript_migration ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (e *sqlExecutor) InsertVersions(ctx context.Context, versions []int) error {
	for _, version := range versions {
		if _, err := e.tx.ExecContext(ctx, `INSERT INTO riverscript_migration (version) VALUES (?)`, version); err != nil {
			return err
		}
	}
	return nil
}
