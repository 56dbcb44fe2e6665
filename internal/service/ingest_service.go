package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adavi-labs/practicegpt/internal/chunker"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/repository"
)

// IngestService turns uploaded text into searchable chunks
type IngestService struct {
	documents *repository.DocumentRepository
	logger    *zap.Logger
	chunkSize int
}

// NewIngestService creates a new ingest service
func NewIngestService(documents *repository.DocumentRepository, logger *zap.Logger, chunkSize int) *IngestService {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	return &IngestService{
		documents: documents,
		logger:    logger,
		chunkSize: chunkSize,
	}
}

// UploadText ingests one document: sanitize, split into chunks, store
// everything in a single transaction. Documents that sanitize to
// nothing are rejected.
func (s *IngestService) UploadText(ownerID, filename, raw string) (*domain.Document, error) {
	chunks := chunker.Chunks(raw, s.chunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document has no indexable content", domain.ErrInvalidRequest)
	}

	doc, err := s.documents.CreateDocument(ownerID, filename)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.documents.InsertChunks(ownerID, doc.ID, filename, chunks); err != nil {
		return nil, fmt.Errorf("insert chunks: %w", err)
	}
	doc.ChunkCount = len(chunks)

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// Documents lists the owner's documents
func (s *IngestService) Documents(ownerID string) ([]*domain.Document, error) {
	return s.documents.ListDocuments(ownerID)
}

// Delete removes a document and its chunks, verifying ownership
func (s *IngestService) Delete(documentID, ownerID string) error {
	return s.documents.DeleteDocument(documentID, ownerID)
}
