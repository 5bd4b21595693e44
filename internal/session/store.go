// Package session persists per-session document inventory, conversation
// turns, and memory state. The core pipeline treats turns and state as
// pass-through parameters; this store lets the CLI act as the caller
// between invocations.
package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/docsage/docsage/internal/convo"
	"github.com/docsage/docsage/internal/db"
)

// Document is one uploaded document's inventory record.
type Document struct {
	ID          string
	Session     string
	Name        string
	SizeBytes   int64
	ParentCount int
	ChildCount  int
	CreatedAt   time.Time
}

// Store provides read/write access to the session tables.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ---- Documents ----

// UpsertDocument inserts or replaces a document record.
func (s *Store) UpsertDocument(d Document) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO documents (id, session, name, size_bytes, parent_count, child_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name         = excluded.name,
		    size_bytes   = excluded.size_bytes,
		    parent_count = excluded.parent_count,
		    child_count  = excluded.child_count`,
		d.ID, d.Session, d.Name, d.SizeBytes, d.ParentCount, d.ChildCount,
	)
	if err != nil {
		return fmt.Errorf("session: upsert document: %w", err)
	}
	return nil
}

// ListDocuments returns the session's documents, oldest first.
func (s *Store) ListDocuments(session string) ([]Document, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, session, name, size_bytes, parent_count, child_count, created_at
		FROM documents WHERE session = ? ORDER BY created_at, id`, session)
	if err != nil {
		return nil, fmt.Errorf("session: list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Session, &d.Name, &d.SizeBytes,
			&d.ParentCount, &d.ChildCount, &createdAt); err != nil {
			return nil, fmt.Errorf("session: scan document: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DocumentIDsByName returns the ids of the session's documents with the
// given source name.
func (s *Store) DocumentIDsByName(session, name string) ([]string, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id FROM documents WHERE session = ? AND name = ?`, session, name)
	if err != nil {
		return nil, fmt.Errorf("session: documents by name: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("session: scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDocument removes a single document record. Passage rows cascade
// via the foreign key.
func (s *Store) DeleteDocument(id string) error {
	if _, err := s.db.Conn().Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session: delete document: %w", err)
	}
	return nil
}

// DeleteDocuments removes every document record in the session. Passage
// rows cascade via the foreign key.
func (s *Store) DeleteDocuments(session string) error {
	if _, err := s.db.Conn().Exec(`DELETE FROM documents WHERE session = ?`, session); err != nil {
		return fmt.Errorf("session: delete documents: %w", err)
	}
	return nil
}

// ---- Conversation turns ----

// AppendTurns appends turns to the session's ordered history.
func (s *Store) AppendTurns(session string, turns ...convo.Turn) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("session: begin append: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		if _, err := tx.Exec(
			`INSERT INTO conversations (session, role, content) VALUES (?, ?, ?)`,
			session, t.Role, t.Content,
		); err != nil {
			return fmt.Errorf("session: append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit append: %w", err)
	}
	return nil
}

// ListTurns returns the session's turns in insertion order.
func (s *Store) ListTurns(session string) ([]convo.Turn, error) {
	rows, err := s.db.Conn().Query(
		`SELECT role, content FROM conversations WHERE session = ? ORDER BY id`, session)
	if err != nil {
		return nil, fmt.Errorf("session: list turns: %w", err)
	}
	defer rows.Close()

	var out []convo.Turn
	for rows.Next() {
		var t convo.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("session: scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClearTurns removes the session's history and memory state together,
// since the watermark is meaningless without the turns it indexes.
func (s *Store) ClearTurns(session string) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("session: begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE session = ?`, session); err != nil {
		return fmt.Errorf("session: clear turns: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM session_state WHERE session = ?`, session); err != nil {
		return fmt.Errorf("session: clear state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit clear: %w", err)
	}
	return nil
}

// ---- Memory state ----

// GetState returns the session's memory state; a session with no stored
// state gets the zero value.
func (s *Store) GetState(session string) (convo.State, error) {
	var st convo.State
	err := s.db.Conn().QueryRow(
		`SELECT summary, summarized_through FROM session_state WHERE session = ?`, session,
	).Scan(&st.Summary, &st.SummarizedThrough)
	if err == sql.ErrNoRows {
		return convo.State{}, nil
	}
	if err != nil {
		return convo.State{}, fmt.Errorf("session: get state: %w", err)
	}
	return st, nil
}

// SaveState stores the session's memory state.
func (s *Store) SaveState(session string, st convo.State) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO session_state (session, summary, summarized_through, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session) DO UPDATE SET
		    summary            = excluded.summary,
		    summarized_through = excluded.summarized_through,
		    updated_at         = CURRENT_TIMESTAMP`,
		session, st.Summary, st.SummarizedThrough,
	)
	if err != nil {
		return fmt.Errorf("session: save state: %w", err)
	}
	return nil
}

// parseTime handles the layouts SQLite emits for DATETIME defaults.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
