package atom

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/fault"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// DefaultBatchSize bounds one History page and other bulk reads.
const DefaultBatchSize = 100

// Notifier receives storage-layer events. Satisfied by *bus.Bus.
type Notifier interface {
	Publish(e bus.Event) bool
}

// Store provides durable atom and reference storage.
// Uses SQLite with WAL mode for concurrent read access; writes to the
// same reference are serialized by the single-writer connection.
type Store struct {
	db        *sql.DB
	notify    Notifier
	batchSize int
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier wires storage-layer event publication.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notify = n
	}
}

// WithBatchSize overrides the bulk-read page size.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Open creates or opens the atom database at path.
// Applies required pragmas and the schema; idempotent.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open atom store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect atom store: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between the orchestrator and the write path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *Store) publish(e bus.Event) {
	if s.notify != nil {
		s.notify.Publish(e)
	}
}

// errRefNotFound is the shared NotFound for reference lookups.
func errRefNotFound(key string) error {
	return fault.Newf(fault.NotFound, "atom reference %q not found", key)
}
