package storage

// events.go contains SQLiteStore methods for the channel status journal.

import (
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// defaultListLimit is used when ListStatus is called with a non-positive limit.
const defaultListLimit = 50

// StatusRecord is one journaled status transition.
type StatusRecord struct {
	ID        int64
	SessionID string
	Endpoint  string
	AttemptID string
	Status    string
	Attempt   int
	Delay     time.Duration
	Error     string
	CreatedAt time.Time
}

// RecordStatus appends rec to the journal and updates the session summary.
// rec.ID is set from the inserted row; a zero CreatedAt is set to now.
func (s *SQLiteStore) RecordStatus(rec *StatusRecord) error {
	if rec == nil {
		return apperrors.New(apperrors.CodeStorageSaveFailed, "status record cannot be nil")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	createdAt := rec.CreatedAt.UTC().Format(timeLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "begin transaction", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO channel_events
			(session_id, endpoint, attempt_id, status, attempt, delay_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := tx.Exec(insert,
		rec.SessionID,
		rec.Endpoint,
		rec.AttemptID,
		rec.Status,
		rec.Attempt,
		rec.Delay.Milliseconds(),
		rec.Error,
		createdAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "insert status", err)
	}

	if rec.SessionID != "" {
		const upsert = `
			INSERT INTO sessions (id, endpoint, first_seen, last_seen, last_status, events)
			VALUES (?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				endpoint = excluded.endpoint,
				last_seen = excluded.last_seen,
				last_status = excluded.last_status,
				events = sessions.events + 1
		`
		if _, err := tx.Exec(upsert, rec.SessionID, rec.Endpoint, createdAt, createdAt, rec.Status); err != nil {
			return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "update session summary", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "commit status", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListStatus returns the most recent transitions for sessionID, oldest first.
// The limit parameter controls how many records to return (0 = default limit).
func (s *SQLiteStore) ListStatus(sessionID string, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, session_id, endpoint, attempt_id, status, attempt, delay_ms, error, created_at
		FROM channel_events
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, sessionID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "list status", err)
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan status", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate status", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastStatus returns the latest transition for sessionID.
// Returns nil, nil if nothing was journaled for the session.
func (s *SQLiteStore) LastStatus(sessionID string) (*StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, session_id, endpoint, attempt_id, status, attempt, delay_ms, error, created_at
		FROM channel_events
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	rec, err := scanStatus(s.db.QueryRow(query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "last status", err)
	}
	return rec, nil
}

// PruneBefore deletes journal rows created before cutoff and returns how
// many were removed. Session summaries are kept.
func (s *SQLiteStore) PruneBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM channel_events WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageSaveFailed, "prune status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageSaveFailed, "prune status", err)
	}
	if n > 0 {
		s.log.Info("storage pruned journal", "deleted", n, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (*StatusRecord, error) {
	var (
		rec       StatusRecord
		delayMs   int64
		createdAt string
	)
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Endpoint,
		&rec.AttemptID,
		&rec.Status,
		&rec.Attempt,
		&delayMs,
		&rec.Error,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Delay = time.Duration(delayMs) * time.Millisecond
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
