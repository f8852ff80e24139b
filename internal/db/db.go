package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection holding saved game sessions.
type DB struct {
	conn *sql.DB
}

// Session is the metadata of one saved game.
type Session struct {
	ID      string    `json:"id"`
	Size    int       `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// New opens the SQLite database at path, enables WAL mode, and runs migrations.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id       TEXT PRIMARY KEY,
			state    BLOB NOT NULL,
			saved_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_saved_at ON sessions(saved_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// Save stores the serialized state for sessionID, replacing any earlier save.
func (d *DB) Save(ctx context.Context, sessionID string, data []byte) error {
	if sessionID == "" {
		return fmt.Errorf("save: session id is required")
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, state, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, saved_at = excluded.saved_at`,
		sessionID, data, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Load returns the serialized state for sessionID, or sql.ErrNoRows if the
// session was never saved.
func (d *DB) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := d.conn.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List returns metadata for every saved session, most recent first.
func (d *DB) List(ctx context.Context) ([]Session, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, length(state), saved_at FROM sessions ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var savedAt string
		if err := rows.Scan(&s.ID, &s.Size, &savedAt); err != nil {
			return nil, err
		}
		s.SavedAt, err = time.Parse(time.RFC3339, savedAt)
		if err != nil {
			return nil, fmt.Errorf("parse saved_at %q: %w", savedAt, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Delete removes the save for sessionID.
// Returns sql.ErrNoRows if no such session exists.
func (d *DB) Delete(ctx context.Context, sessionID string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
