package storage

// sessions.go contains SQLiteStore methods for the per-session summary.

import (
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// maxSessions bounds ListSessions when called with a non-positive limit.
const maxSessions = 20

// SessionSummary describes the journal of one session.
type SessionSummary struct {
	ID         string
	Endpoint   string
	FirstSeen  time.Time
	LastSeen   time.Time
	LastStatus string
	Events     int
}

// GetSession retrieves a session summary by ID.
// Returns nil, nil if the session does not exist.
func (s *SQLiteStore) GetSession(id string) (*SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, endpoint, first_seen, last_seen, last_status, events
		FROM sessions
		WHERE id = ?
	`
	summary, err := scanSession(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "get session", err)
	}
	return summary, nil
}

// ListSessions returns recently active sessions ordered by last_seen (newest first).
// The limit parameter controls how many sessions to return (0 = default limit).
func (s *SQLiteStore) ListSessions(limit int) ([]*SessionSummary, error) {
	if limit <= 0 {
		limit = maxSessions
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, endpoint, first_seen, last_seen, last_status, events
		FROM sessions
		ORDER BY last_seen DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "list sessions", err)
	}
	defer rows.Close()

	var out []*SessionSummary
	for rows.Next() {
		summary, err := scanSession(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan session", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate sessions", err)
	}
	return out, nil
}

func scanSession(row rowScanner) (*SessionSummary, error) {
	var (
		summary   SessionSummary
		firstSeen string
		lastSeen  string
	)
	err := row.Scan(
		&summary.ID,
		&summary.Endpoint,
		&firstSeen,
		&lastSeen,
		&summary.LastStatus,
		&summary.Events,
	)
	if err != nil {
		return nil, err
	}
	if summary.FirstSeen, err = time.Parse(timeLayout, firstSeen); err != nil {
		return nil, err
	}
	if summary.LastSeen, err = time.Parse(timeLayout, lastSeen); err != nil {
		return nil, err
	}
	return &summary, nil
}
