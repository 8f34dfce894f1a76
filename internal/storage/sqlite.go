// Package storage persists the channel status journal in SQLite.
package storage

import (
	"context"
	"database/sql"
	"sync"

	"pkt.systems/pslog"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is a pure-Go implementation that doesn't require CGO.
	_ "modernc.org/sqlite"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// SQLiteStore is the status journal. It creates the database and tables on
// first use and supports concurrent access through internal locking.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	log pslog.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithLogger(path, pslog.Ctx(context.Background()))
}

// NewSQLiteStoreWithLogger is NewSQLiteStore with an explicit logger.
func NewSQLiteStoreWithLogger(path string, logger pslog.Logger) (*SQLiteStore, error) {
	log := logger.With("store", path)
	log.Debug("storage opening database")

	// busy_timeout covers a second CLI process reading the journal while
	// watch is writing to it.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open database", err)
	}

	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping database", err)
	}

	store := &SQLiteStore{db: db, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Debug("storage database ready", "schema_version", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	s.log.Debug("storage closing database")
	return s.db.Close()
}
