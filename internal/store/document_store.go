package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/archon-dev/archon/internal/models"
)

// UpsertDocument inserts a document or refreshes it if the path is already
// indexed. It returns the document id.
func (s *Store) UpsertDocument(doc *models.Document) (int64, error) {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}
	var jobID sql.NullInt64
	if doc.JobID != 0 {
		jobID = sql.NullInt64{Int64: doc.JobID, Valid: true}
	}
	query := `
		INSERT INTO documents (job_id, path, kind, size, sha1, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			job_id = excluded.job_id,
			kind = excluded.kind,
			size = excluded.size,
			sha1 = excluded.sha1,
			indexed_at = excluded.indexed_at
		RETURNING id;
	`
	err := s.db.QueryRow(query, jobID, doc.Path, doc.Kind, doc.Size, doc.SHA1, doc.IndexedAt).Scan(&doc.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", doc.Path, err)
	}
	return doc.ID, nil
}

// ListDocuments returns the documents last indexed by a job.
func (s *Store) ListDocuments(jobID int64) ([]*models.Document, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, path, kind, size, sha1, indexed_at
		FROM documents WHERE job_id = ? ORDER BY path ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		var owner sql.NullInt64
		if err := rows.Scan(&doc.ID, &owner, &doc.Path, &doc.Kind, &doc.Size, &doc.SHA1, &doc.IndexedAt); err != nil {
			return nil, err
		}
		doc.JobID = owner.Int64
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of indexed documents.
func (s *Store) CountDocuments() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}
