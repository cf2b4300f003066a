// Package sessionpgx provides a scriptsession.Store backed by Postgres through
// a pgx connection pool.
package sessionpgx

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store is a scriptsession.Store backed by Postgres. Tables are created in
// the first schema of the connection's search path.
type Store struct {
	baseservice.BaseService

	dbPool   *pgxpool.Pool
	migrator *dbmigrate.Migrator
}

// New returns a new store using the given pool. The database must be
// migrated with Migrate before the store is used.
func New(dbPool *pgxpool.Pool, config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}

	return newStore(baseservice.NewArchetype(config.Logger), dbPool)
}

func newStore(archetype *baseservice.Archetype, dbPool *pgxpool.Pool) (*Store, error) {
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
	if _, err := s.dbPool.Exec(ctx,
		`DELETE FROM riverscript_session_value WHERE session_id = $1`,
		sessionID,
	); err != nil {
		return interpretError(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string, section scriptsession.Section, key string) ([]byte, error) {
	var value []byte
	if err := s.dbPool.QueryRow(ctx,
		`SELECT value FROM riverscript_session_value WHERE session_id = $1 AND section = $2 AND key = $3`,
		sessionID, string(section), key,
	).Scan(&value); err != nil {
		return nil, interpretError(err)
	}
	return value, nil
}

func (s *Store) List(ctx context.Context, sessionID string, section scriptsession.Section) (map[string][]byte, error) {
	rows, err := s.dbPool.Query(ctx,
		`SELECT key, value FROM riverscript_session_value WHERE session_id = $1 AND section = $2`,
		sessionID, string(section),
	)
	if err != nil {
		return nil, interpretError(err)
	}

	type keyValue struct {
		Key   string
		Value []byte
	}

	keyValues, err := pgx.CollectRows(rows, pgx.RowToStructByPos[keyValue])
	if err != nil {
		return nil, interpretError(err)
	}

	values := make(map[string][]byte, len(keyValues))
	for _, keyValue := range keyValues {
		values[keyValue.Key] = keyValue.Value
	}
	return values, nil
}

func (s *Store) Put(ctx context.Context, sessionID string, section scriptsession.Section, key string, value []byte) error {
	if _, err := s.dbPool.Exec(ctx, `
		INSERT INTO riverscript_session_value (session_id, section, key, value, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (session_id, section, key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
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
	tx, err := s.dbPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		exec = &pgxExecutor{tx: tx}
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

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return res.Versions, nil
}

func interpretError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return scriptsession.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return fmt.Errorf("%w: %w", scriptsession.ErrNotMigrated, err)
	}

	return err
}

// pgxExecutor runs migrations within a transaction.
type pgxExecutor struct {
	tx pgx.Tx
}

func (e *pgxExecutor) DeleteVersions(ctx context.Context, versions []int) error {
	_, err := e.tx.Exec(ctx, `DELETE FROM riverscript_migration WHERE version = any($1::bigint[])`, versions)
	return err
}

func (e *pgxExecutor) Exec(ctx context.Context, query string) error {
	_, err := e.tx.Exec(ctx, query)
	return err
}

func (e *pgxExecutor) ExistingVersions(ctx context.Context) ([]int, error) {
	var exists bool
	if err := e.tx.QueryRow(ctx,
		`SELECT to_regclass('riverscript_migration') IS NOT NULL`,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rows, err := e.tx.Query(ctx, `SELECT version FROM riverscript_migration ORDER BY version`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (e *pgxExecutor) InsertVersions(ctx context.Context, versions []int) error {
	_, err := e.tx.Exec(ctx,
		`INSERT INTO riverscript_migration (version) SELECT unnest($1::bigint[])`,
		versions,
	)
	return err
}
