package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// DocumentRepository handles document and chunk persistence
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateDocument inserts a document row
func (r *DocumentRepository) CreateDocument(ownerID, filename string) (*domain.Document, error) {
	doc := &domain.Document{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Filename:   filename,
		UploadedAt: time.Now(),
	}
	_, err := r.db.Exec(`
		INSERT INTO documents (id, owner_id, filename, uploaded_at)
		VALUES (?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Filename, doc.UploadedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertChunks stores a document's chunk texts with contiguous indices
// starting at 0, all in one transaction, and records the chunk count on
// the document row.
func (r *DocumentRepository) InsertChunks(ownerID, documentID, filename string, texts []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO document_chunks (id, document_id, owner_id, chunk_index, chunk_text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	metadata, _ := json.Marshal(map[string]any{
		"filename":     filename,
		"total_chunks": len(texts),
	})
	now := time.Now()
	for i, text := range texts {
		if _, err := stmt.Exec(uuid.New().String(), documentID, ownerID, i, text, string(metadata), now); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`UPDATE documents SET chunk_count = ? WHERE id = ?`, len(texts), documentID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDocuments returns the owner's documents, newest first
func (r *DocumentRepository) ListDocuments(ownerID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(`
		SELECT id, owner_id, filename, chunk_count, uploaded_at
		FROM documents WHERE owner_id = ?
		ORDER BY uploaded_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.ChunkCount, &doc.UploadedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document after verifying ownership; chunks
// cascade.
func (r *DocumentRepository) DeleteDocument(documentID, ownerID string) error {
	res, err := r.db.Exec(`DELETE FROM documents WHERE id = ? AND owner_id = ?`, documentID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ChunksByOwner loads all of an owner's chunks in sequence order for
// in-process ranking.
func (r *DocumentRepository) ChunksByOwner(ownerID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(`
		SELECT id, document_id, owner_id, chunk_index, chunk_text, metadata
		FROM document_chunks WHERE owner_id = ?
		ORDER BY document_id, chunk_index ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SubstringSearch is the fallback scan: a case-insensitive containment
// match over the owner's chunks in sequence order, up to topK rows.
func (r *DocumentRepository) SubstringSearch(ownerID, query string, topK int) ([]domain.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.Query(`
		SELECT id, document_id, owner_id, chunk_index, chunk_text, metadata
		FROM document_chunks
		WHERE owner_id = ? AND LOWER(chunk_text) LIKE ?
		ORDER BY chunk_index ASC
		LIMIT ?
	`, ownerID, pattern, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var metadataJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.OwnerID,
			&chunk.Index, &chunk.Text, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
