package storage

import (
	"fmt"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema creates the required tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	return nil
}

// migrateToV1 creates the channel_events journal.
func (s *SQLiteStore) migrateToV1() error {
	s.log.Info("storage applying migration", "version", 1)

	// Timestamps are stored as RFC3339 strings for readability and portability.
	const eventsTable = `
		CREATE TABLE IF NOT EXISTS channel_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL,
			attempt_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			delay_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_session ON channel_events(session_id, id);
		CREATE INDEX IF NOT EXISTS idx_events_created ON channel_events(created_at);
	`
	if _, err := s.db.Exec(eventsTable); err != nil {
		return fmt.Errorf("create channel_events table: %w", err)
	}
	return s.recordMigration(1)
}

// migrateToV2 adds the per-session summary maintained alongside the journal.
func (s *SQLiteStore) migrateToV2() error {
	s.log.Info("storage applying migration", "version", 2)

	const sessionsTable = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			last_status TEXT NOT NULL,
			events INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen);
	`
	if _, err := s.db.Exec(sessionsTable); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	// Backfill from any journal rows written before the summary existed.
	const backfill = `
		INSERT OR IGNORE INTO sessions (id, endpoint, first_seen, last_seen, last_status, events)
		SELECT e.session_id, e.endpoint, MIN(e.created_at), MAX(e.created_at),
			(SELECT status FROM channel_events WHERE session_id = e.session_id ORDER BY id DESC LIMIT 1),
			COUNT(*)
		FROM channel_events e
		WHERE e.session_id != ''
		GROUP BY e.session_id
	`
	if _, err := s.db.Exec(backfill); err != nil {
		return fmt.Errorf("backfill sessions: %w", err)
	}
	return s.recordMigration(2)
}

func (s *SQLiteStore) recordMigration(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}
