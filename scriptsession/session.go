// Package scriptsession provides storage for the inputs and outputs of job
// sessions. A Session is the default sink handed to input validation and the
// output sink that parse-only job specs are published to.
//
// Values are persisted as JSON through a Store. This package contains an
// in-memory store, and subpackages contain SQLite and Postgres stores.
package scriptsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/util/valutil"
	"github.com/riverqueue/riverscript/scripttype"
)

var (
	// ErrNotFound is returned when a key doesn't exist in a session.
	ErrNotFound = errors.New("not found")

	// ErrNotMigrated is returned by database backed stores when their tables
	// don't exist yet.
	ErrNotMigrated = errors.New("session store is not migrated")
)

// MigrateDirection is the direction of a migration.
type MigrateDirection string

const (
	MigrateDirectionDown MigrateDirection = "down"
	MigrateDirectionUp   MigrateDirection = "up"
)

// Migrator is implemented by stores whose schema is managed by migrations.
type Migrator interface {
	// Migrate runs migrations in the given direction. A maxSteps of zero
	// applies every outstanding migration. Returns the versions applied.
	Migrate(ctx context.Context, direction MigrateDirection, maxSteps int) ([]int, error)
}

// Section is a partition of a session's stored values.
type Section string

const (
	SectionInput  Section = "input"
	SectionOutput Section = "output"
)

// Store persists session values as raw JSON. Implementations must be safe for
// concurrent use.
type Store interface {
	// Delete removes every value stored for a session. Deleting a session
	// that doesn't exist isn't an error.
	Delete(ctx context.Context, sessionID string) error

	// Get returns a single value, or ErrNotFound.
	Get(ctx context.Context, sessionID string, section Section, key string) ([]byte, error)

	// List returns every value in a section of a session keyed by name. An
	// unknown session returns an empty map.
	List(ctx context.Context, sessionID string, section Section) (map[string][]byte, error)

	// Put inserts or replaces a single value.
	Put(ctx context.Context, sessionID string, section Section, key string, value []byte) error
}

// Config is configuration for a Session.
type Config struct {
	// ID is the session's identifier. If none is specified, a random UUID is
	// generated.
	ID string

	// Logger is the structured logger to use for logging purposes. If none is
	// specified, slog.Default is used.
	Logger *slog.Logger
}

// Session is a view of a single session's inputs and outputs in a Store.
type Session struct {
	baseservice.BaseService

	id    string
	store Store
}

// NewSession returns a session backed by store.
func NewSession(store Store, config *Config) *Session {
	if config == nil {
		config = &Config{}
	}

	return newSession(baseservice.NewArchetype(config.Logger), store, config)
}

func newSession(archetype *baseservice.Archetype, store Store, config *Config) *Session {
	return baseservice.Init(archetype, &Session{
		id:    valutil.ValOrDefaultFunc(config.ID, uuid.NewString),
		store: store,
	})
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// SetInput stores an input value. It's used as the default sink during input
// validation.
func (s *Session) SetInput(ctx context.Context, key string, value *scripttype.Value) error {
	data, err := value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("error encoding input %q: %w", key, err)
	}

	if err := s.store.Put(ctx, s.id, SectionInput, key, data); err != nil {
		return fmt.Errorf("error storing input %q: %w", key, err)
	}

	s.Logger.DebugContext(ctx, s.Name+": Set input", slog.String("session_id", s.id), slog.String("key", key))
	return nil
}

// Input returns a single input value, or an error wrapping ErrNotFound.
func (s *Session) Input(ctx context.Context, key string) (*scripttype.Value, error) {
	data, err := s.store.Get(ctx, s.id, SectionInput, key)
	if err != nil {
		return nil, fmt.Errorf("error getting input %q: %w", key, err)
	}

	value, err := scripttype.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding input %q: %w", key, err)
	}
	return value, nil
}

// Inputs returns every input value of the session keyed by name.
func (s *Session) Inputs(ctx context.Context) (map[string]*scripttype.Value, error) {
	raw, err := s.store.List(ctx, s.id, SectionInput)
	if err != nil {
		return nil, fmt.Errorf("error listing inputs: %w", err)
	}

	inputs := make(map[string]*scripttype.Value, len(raw))
	for key, data := range raw {
		value, err := scripttype.ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("error decoding input %q: %w", key, err)
		}
		inputs[key] = value
	}
	return inputs, nil
}

// SetOutput stores an output. value must be valid JSON.
func (s *Session) SetOutput(ctx context.Context, key string, value []byte) error {
	if !gjson.ValidBytes(value) {
		return fmt.Errorf("output %q is not valid JSON", key)
	}

	if err := s.store.Put(ctx, s.id, SectionOutput, key, value); err != nil {
		return fmt.Errorf("error storing output %q: %w", key, err)
	}

	s.Logger.DebugContext(ctx, s.Name+": Set output", slog.String("session_id", s.id), slog.String("key", key))
	return nil
}

// Output returns a single output, or an error wrapping ErrNotFound.
func (s *Session) Output(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.Get(ctx, s.id, SectionOutput, key)
	if err != nil {
		return nil, fmt.Errorf("error getting output %q: %w", key, err)
	}
	return data, nil
}

// OutputKeys returns the names of the session's outputs in sorted order.
func (s *Session) OutputKeys(ctx context.Context) ([]string, error) {
	raw, err := s.store.List(ctx, s.id, SectionOutput)
	if err != nil {
		return nil, fmt.Errorf("error listing outputs: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close deletes everything stored for the session.
func (s *Session) Close(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}
