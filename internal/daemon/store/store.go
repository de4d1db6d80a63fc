// Package store provides SQLite-backed persistence for sessions and their
// message transcripts. Every mutating call commits before returning, so the
// store is always the durable source of truth for session state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/grovetools/relay/errors"
	"github.com/grovetools/relay/pkg/models"
)

// Store provides SQLite-backed persistence for sessions and messages.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at dbPath, creating the parent directory and
// the schema if they don't exist.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		resume_id TEXT,
		status TEXT NOT NULL,
		cwd TEXT,
		allowed_tools TEXT,
		last_prompt TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS messages_session_id ON messages(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

// ready returns an Uninitialized error when the store has not been opened.
// Callers must not retry: this is a startup ordering bug.
func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.Uninitialized("session store")
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// SessionMeta carries the caller-supplied fields of a new session.
type SessionMeta struct {
	Title        string
	Cwd          string
	AllowedTools string
	Prompt       string
}

// CreateSession creates a new idle session with a generated id.
func (s *Store) CreateSession(meta SessionMeta) (*models.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	now := nowMillis()
	sess := &models.Session{
		ID:           uuid.New().String(),
		Title:        meta.Title,
		Status:       models.StatusIdle,
		Cwd:          meta.Cwd,
		AllowedTools: meta.AllowedTools,
		LastPrompt:   meta.Prompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, title, resume_id, status, cwd, allowed_tools, last_prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.ResumeID, string(sess.Status), sess.Cwd, sess.AllowedTools, sess.LastPrompt, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return sess, nil
}

// GetSession retrieves a session row by id. Returns nil when the id is unknown.
func (s *Store) GetSession(id string) (*models.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(
		`SELECT id, title, resume_id, status, cwd, allowed_tools, last_prompt, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var status string
	err := row.Scan(&sess.ID, &sess.Title, &sess.ResumeID, &status, &sess.Cwd,
		&sess.AllowedTools, &sess.LastPrompt, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

// UpdateSession merges the partial update into the persisted row and bumps
// updated_at. An unknown id is a no-op, not an error.
func (s *Store) UpdateSession(id string, update models.SessionUpdate) error {
	if err := s.ready(); err != nil {
		return err
	}
	if update.Empty() {
		return nil
	}

	var fields []string
	var values []interface{}

	if update.Title != nil {
		fields = append(fields, "title = ?")
		values = append(values, *update.Title)
	}
	if update.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, string(*update.Status))
	}
	if update.ResumeID != nil {
		fields = append(fields, "resume_id = ?")
		values = append(values, *update.ResumeID)
	}
	if update.Cwd != nil {
		fields = append(fields, "cwd = ?")
		values = append(values, *update.Cwd)
	}
	if update.AllowedTools != nil {
		fields = append(fields, "allowed_tools = ?")
		values = append(values, *update.AllowedTools)
	}
	if update.LastPrompt != nil {
		fields = append(fields, "last_prompt = ?")
		values = append(values, *update.LastPrompt)
	}

	fields = append(fields, "updated_at = ?")
	values = append(values, nowMillis(), id)

	query := fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", strings.Join(fields, ", "))
	if _, err := s.db.Exec(query, values...); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// AppendMessage records a transcript item. Insertion is idempotent on the
// message id: re-inserting an id that already exists is a no-op. An empty id
// gets a generated one.
func (s *Store) AppendMessage(sessionID string, id string, data []byte) error {
	if err := s.ready(); err != nil {
		return err
	}

	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (id, session_id, data, created_at)
		 VALUES (?, ?, ?, ?)`,
		id, sessionID, string(data), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListSessions returns all sessions ordered by most-recently-updated first.
func (s *Store) ListSessions() ([]*models.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, title, resume_id, status, cwd, allowed_tools, last_prompt, created_at, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		var sess models.Session
		var status string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.ResumeID, &status, &sess.Cwd,
			&sess.AllowedTools, &sess.LastPrompt, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = models.SessionStatus(status)
		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return sessions, nil
}

// GetHistory returns the session row and its ordered messages, or (nil, nil, nil)
// when the session does not exist.
func (s *Store) GetHistory(sessionID string) (*models.Session, []models.Message, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}

	sess, err := s.GetSession(sessionID)
	if err != nil || sess == nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, data, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY created_at ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var data string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &data, &msg.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Data = []byte(data)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return sess, messages, nil
}

// DeleteSession removes the session row and all its messages in one
// transaction, so readers never see a session stripped of its transcript.
// It reports whether a session row existed.
func (s *Store) DeleteSession(id string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("delete messages: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}

// ListRecentCwds returns the most recently used distinct working directories.
func (s *Store) ListRecentCwds(limit int) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT cwd, MAX(updated_at) AS latest
		 FROM sessions
		 WHERE cwd IS NOT NULL AND TRIM(cwd) != ''
		 GROUP BY cwd
		 ORDER BY latest DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent cwds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cwds []string
	for rows.Next() {
		var cwd string
		var latest int64
		if err := rows.Scan(&cwd, &latest); err != nil {
			return nil, fmt.Errorf("scan cwd: %w", err)
		}
		cwds = append(cwds, cwd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return cwds, nil
}
