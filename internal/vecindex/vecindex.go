// Package vecindex stores passage embeddings in sqlite-vec and serves
// namespace-scoped similarity search over them.
package vecindex

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/docsage/docsage/internal/db"
)

// Passage is the metadata stored alongside an embedded child span. It is
// written once at ingestion and removed only by namespace teardown.
type Passage struct {
	ID         string
	Namespace  string
	DocumentID string
	ParentID   string
	ChildIndex int
	ChunkIndex int
	ChildText  string
	ParentText string
	SourceName string
}

// Item pairs a passage with its embedding for upsert.
type Item struct {
	Passage   Passage
	Embedding []float32
}

// Match is a single similarity search result, score descending.
type Match struct {
	Passage Passage
	Score   float64
}

// Index is the vector index contract the retrieval layer depends on.
type Index interface {
	Upsert(namespace string, items []Item) error
	Query(namespace string, vector []float32, topK int, sourceFilter []string) ([]Match, error)
	DeleteNamespace(namespace string) error
}

// Store implements Index over a sqlite-vec vec0 table plus a relational
// metadata table.
type Store struct {
	conn *sql.DB
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{conn: database.Conn()}
}

// Upsert writes the items' metadata and embeddings in one transaction.
// Item IDs are stable, so re-ingesting a document overwrites in place.
func (s *Store) Upsert(namespace string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("vecindex: begin upsert: %w", err)
	}
	defer tx.Rollback()

	metaStmt, err := tx.Prepare(
		`INSERT INTO passages (id, namespace, document_id, parent_id, child_index,
			chunk_index, child_text, parent_text, source_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			child_text = excluded.child_text,
			parent_text = excluded.parent_text`,
	)
	if err != nil {
		return fmt.Errorf("vecindex: prepare metadata upsert: %w", err)
	}
	defer metaStmt.Close()

	for _, item := range items {
		p := item.Passage
		if p.Namespace == "" {
			p.Namespace = namespace
		}
		if _, err := metaStmt.Exec(p.ID, p.Namespace, p.DocumentID, p.ParentID,
			p.ChildIndex, p.ChunkIndex, p.ChildText, p.ParentText, p.SourceName); err != nil {
			return fmt.Errorf("vecindex: upsert passage %s: %w", p.ID, err)
		}

		if len(item.Embedding) == 0 {
			continue
		}
		// vec0 virtual tables reject ON CONFLICT; delete-then-insert instead.
		if _, err := tx.Exec(`DELETE FROM vec_passages WHERE id = ?`, p.ID); err != nil {
			return fmt.Errorf("vecindex: clear embedding %s: %w", p.ID, err)
		}
		if _, err := tx.Exec(`INSERT INTO vec_passages (id, embedding) VALUES (?, ?)`,
			p.ID, float32SliceToBlob(item.Embedding)); err != nil {
			return fmt.Errorf("vecindex: upsert embedding %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecindex: commit upsert: %w", err)
	}
	return nil
}

// Query runs an ANN scan and filters by namespace (and optionally by an
// any-of set of source names). The vec0 scan cannot see metadata, so it
// over-fetches and the filter is applied against the passages table, with
// an explicit re-sort so descending-score order never depends on the scan.
func (s *Store) Query(namespace string, vector []float32, topK int, sourceFilter []string) ([]Match, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}

	// Over-fetch so namespace filtering still leaves topK candidates.
	fetchK := topK * 4
	if fetchK < 32 {
		fetchK = 32
	}

	rows, err := s.conn.Query(
		`SELECT id, distance FROM vec_passages WHERE embedding MATCH ? AND k = ?
		 ORDER BY distance`,
		float32SliceToBlob(vector), fetchK,
	)
	if err != nil {
		return nil, fmt.Errorf("vecindex: search: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, fetchK)
	distance := make(map[string]float64, fetchK)
	for rows.Next() {
		var id string
		var d float64
		if err := rows.Scan(&id, &d); err != nil {
			return nil, fmt.Errorf("vecindex: scan match: %w", err)
		}
		ids = append(ids, id)
		distance[id] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecindex: search rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	passages, err := s.loadPassages(ids, namespace, sourceFilter)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(passages))
	for _, p := range passages {
		d := distance[p.ID]
		matches = append(matches, Match{
			Passage: p,
			// sqlite-vec returns L2 distance; convert to a similarity score.
			Score: 1.0 / (1.0 + d),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteDocument removes one document's passages and embeddings from the
// namespace. The watcher uses this when a source file changes on disk.
func (s *Store) DeleteDocument(namespace, documentID string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("vecindex: begin delete document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM vec_passages WHERE id IN
			(SELECT id FROM passages WHERE namespace = ? AND document_id = ?)`,
		namespace, documentID,
	); err != nil {
		return fmt.Errorf("vecindex: delete document embeddings: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM passages WHERE namespace = ? AND document_id = ?`,
		namespace, documentID,
	); err != nil {
		return fmt.Errorf("vecindex: delete document passages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecindex: commit delete document: %w", err)
	}
	return nil
}

// DeleteNamespace removes every passage and embedding in the namespace.
// Deleting an absent namespace is a no-op.
func (s *Store) DeleteNamespace(namespace string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("vecindex: begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM vec_passages WHERE id IN (SELECT id FROM passages WHERE namespace = ?)`,
		namespace,
	); err != nil {
		return fmt.Errorf("vecindex: delete embeddings: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM passages WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("vecindex: delete passages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecindex: commit delete: %w", err)
	}
	return nil
}

// loadPassages fetches metadata for the candidate ids, keeping only rows in
// the namespace (and matching the source filter, when one is given).
func (s *Store) loadPassages(ids []string, namespace string, sourceFilter []string) ([]Passage, error) {
	query := `SELECT id, namespace, document_id, parent_id, child_index, chunk_index,
		child_text, parent_text, source_name
	 FROM passages WHERE namespace = ? AND id IN (` + placeholders(len(ids)) + `)`

	args := make([]any, 0, len(ids)+len(sourceFilter)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	if len(sourceFilter) > 0 {
		query += ` AND source_name IN (` + placeholders(len(sourceFilter)) + `)`
		for _, name := range sourceFilter {
			args = append(args, name)
		}
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vecindex: load passages: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Namespace, &p.DocumentID, &p.ParentID,
			&p.ChildIndex, &p.ChunkIndex, &p.ChildText, &p.ParentText, &p.SourceName); err != nil {
			return nil, fmt.Errorf("vecindex: scan passage: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ---- Helpers ----

// float32SliceToBlob serialises a float32 slice to a little-endian byte blob.
// This is the format expected by sqlite-vec's BLOB column input.
func float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
