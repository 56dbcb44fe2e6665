package domain

import "time"

// Document represents an uploaded document. Documents are immutable once
// chunked; deletion cascades to their chunks.
type Document struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Chunk is a bounded-length slice of a document's sanitized text
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	OwnerID    string         `json:"owner_id"`
	Index      int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RetrievalResult is one ranked chunk returned by a search. Score is
// non-negative; higher is more relevant.
type RetrievalResult struct {
	ChunkID    string         `json:"chunk_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename,omitempty"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Source returns the citation identifier for the result: the originating
// filename when known, the document id otherwise.
func (r RetrievalResult) Source() string {
	if r.Filename != "" {
		return r.Filename
	}
	return r.DocumentID
}

// SearchRequest is the request to search document chunks
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k,omitempty"`
}
