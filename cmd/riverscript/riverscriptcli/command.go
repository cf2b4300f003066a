package riverscriptcli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"

	"github.com/riverqueue/riverscript/scriptsession"
	"github.com/riverqueue/riverscript/scriptsession/sessionpgx"
	"github.com/riverqueue/riverscript/scriptsession/sessionsqlite"
)

// Command is an interface to a riverscript CLI subcommand. Commands generally
// only implement a Run function, and get the rest of the implementation by
// embedding CommandBase.
type Command[TOpts CommandOpts] interface {
	Run(ctx context.Context, opts TOpts) (bool, error)
	GetCommandBase() *CommandBase
	SetCommandBase(b *CommandBase)
}

// CommandBase provides common facilities for a riverscript CLI command. It's
// generally embedded on the struct of a command.
type CommandBase struct {
	Logger *slog.Logger
	Out    io.Writer

	// Store is the session store procured from the command's database URL.
	// It's nil for commands run without one.
	Store SessionStore
}

func (b *CommandBase) GetCommandBase() *CommandBase     { return b }
func (b *CommandBase) SetCommandBase(base *CommandBase) { *b = *base }

// CommandOpts are options for a command options. It makes sure that options
// provide a way of validating themselves.
type CommandOpts interface {
	Validate() error
}

// SessionStore is a session store whose schema is managed by migrations,
// which is true of every database backed store.
type SessionStore interface {
	scriptsession.Migrator
	scriptsession.Store
}

// RunCommandBundle is a bundle of utilities for RunCommand.
type RunCommandBundle struct {
	DatabaseURL *string
	Logger      *slog.Logger
	OutStd      io.Writer
}

// RunCommand bootstraps and runs a riverscript CLI subcommand. It exits the
// program with a non-zero status if the command reports that it wasn't
// successful.
func RunCommand[TOpts CommandOpts](ctx context.Context, bundle *RunCommandBundle, command Command[TOpts], opts TOpts) error {
	ok, err := runCommand(ctx, bundle, command, opts)
	if err != nil {
		return err
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}

func runCommand[TOpts CommandOpts](ctx context.Context, bundle *RunCommandBundle, command Command[TOpts], opts TOpts) (bool, error) {
	if err := opts.Validate(); err != nil {
		return false, err
	}

	var store SessionStore
	if bundle.DatabaseURL != nil && *bundle.DatabaseURL != "" {
		databaseURL := *bundle.DatabaseURL

		protocol, urlWithoutProtocol, ok := strings.Cut(databaseURL, "://")
		if !ok {
			return false, fmt.Errorf("expected database URL (`%s`) to be formatted like `postgres://...` or `sqlite://...`", databaseURL)
		}

		switch protocol {
		case "postgres", "postgresql":
			dbPool, err := openPgxV5DBPool(ctx, databaseURL)
			if err != nil {
				return false, err
			}
			defer dbPool.Close()

			store, err = sessionpgx.New(dbPool, &sessionpgx.Config{Logger: bundle.Logger})
			if err != nil {
				return false, err
			}

		case "sqlite":
			dbPool, err := openSQLitePool(protocol, urlWithoutProtocol)
			if err != nil {
				return false, err
			}
			defer dbPool.Close()

			store, err = sessionsqlite.New(dbPool, &sessionsqlite.Config{Logger: bundle.Logger})
			if err != nil {
				return false, err
			}

		default:
			return false, fmt.Errorf("unsupported database URL (`%s`); try one with a `postgres://`, `postgresql://`, or `sqlite://` scheme/prefix", databaseURL)
		}
	}

	command.SetCommandBase(&CommandBase{
		Logger: bundle.Logger,
		Out:    bundle.OutStd,
		Store:  store,
	})

	return command.Run(ctx, opts)
}

func openPgxV5DBPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	const (
		defaultIdleInTransactionSessionTimeout = 11 * time.Second // should be greater than statement timeout because statements count towards idle-in-transaction
		defaultStatementTimeout                = 10 * time.Second
	)

	pgxConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing database URL: %w", err)
	}

	setParamIfUnset(pgxConfig.ConnConfig.RuntimeParams, "application_name", "riverscript CLI")
	setParamIfUnset(pgxConfig.ConnConfig.RuntimeParams, "idle_in_transaction_session_timeout", strconv.Itoa(int(defaultIdleInTransactionSessionTimeout.Milliseconds())))
	setParamIfUnset(pgxConfig.ConnConfig.RuntimeParams, "statement_timeout", strconv.Itoa(int(defaultStatementTimeout.Milliseconds())))

	dbPool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, fmt.Errorf("error connecting to Postgres database: %w", err)
	}

	return dbPool, nil
}

func openSQLitePool(protocol, urlWithoutProtocol string) (*sql.DB, error) {
	dbPool, err := sql.Open(protocol, urlWithoutProtocol)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite database: %w", err)
	}

	// Every connection to an in-memory database is a separate database, and
	// SQLite only allows a single writer anyway.
	dbPool.SetMaxOpenConns(1)

	return dbPool, nil
}

// Sets a parameter in a parameter map (aimed at a Postgres connection
// configuration map), but only if that parameter wasn't already set.
func setParamIfUnset(runtimeParams map[string]string, name, val string) {
	if currentVal := runtimeParams[name]; currentVal != "" {
		return
	}

	runtimeParams[name] = val
}
