// Package store persists kiosk activity to a local sqlite database.
//
// It replaces a flat activity log file: every stage transition is recorded,
// grouped into sessions (one session per excursion away from IDLE), so an
// operator can see how many people engaged and how far they got.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cmerch/go-kiosk/pkg/stage"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	reached_stage TEXT NOT NULL DEFAULT 'detected',
	completed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS transitions (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	from_stage TEXT NOT NULL,
	to_stage TEXT NOT NULL,
	reason TEXT NOT NULL,
	at TIMESTAMP NOT NULL,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);
CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at);
`

// Transition is one recorded stage change.
type Transition struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the activity database at path.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open activity db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init activity schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession records the beginning of an engagement.
func (s *Store) StartSession(id string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, at)
	return err
}

// EndSession closes an engagement. completed marks sessions that reached
// the thank-you stage via the web catalog's completion signal.
func (s *Store) EndSession(id string, at time.Time, reached stage.ID, completed bool) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, reached_stage = ?, completed = ? WHERE id = ?`,
		at, reached.String(), completed, id)
	return err
}

// RecordTransition appends one stage change. sessionID may be empty for
// transitions outside a session (manual resets from IDLE, shutdown).
func (s *Store) RecordTransition(ev stage.Event, sessionID string) error {
	_, err := s.db.Exec(
		`INSERT INTO transitions (id, session_id, from_stage, to_stage, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, sessionID, ev.From.String(), ev.To.String(), ev.Reason, ev.At)
	return err
}

// RecentTransitions returns the newest transitions, newest first.
func (s *Store) RecentTransitions(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, COALESCE(session_id, ''), from_stage, to_stage, reason, at
		 FROM transitions ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.SessionID, &t.From, &t.To, &t.Reason, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SessionCount returns the number of recorded sessions.
func (s *Store) SessionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}
