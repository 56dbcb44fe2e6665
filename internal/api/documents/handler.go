package documents

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adavi-labs/practicegpt/internal/api/middleware"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/retrieval"
	"github.com/adavi-labs/practicegpt/internal/service"
)

// maxUploadSize bounds text uploads at 10 MB
const maxUploadSize = 10 << 20

// Handler handles document API requests
type Handler struct {
	ingestService *service.IngestService
	index         *retrieval.Index
	defaultTopK   int
}

// NewHandler creates a new documents handler
func NewHandler(ingestService *service.IngestService, index *retrieval.Index, defaultTopK int) *Handler {
	return &Handler{ingestService: ingestService, index: index, defaultTopK: defaultTopK}
}

// RegisterRoutes registers document routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/documents", h.Upload)
	r.GET("/documents", h.List)
	r.DELETE("/documents/:id", h.Delete)
	r.POST("/documents/search", h.Search)
}

// Upload ingests a text document from a multipart form or a raw JSON body
func (h *Handler) Upload(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	filename, content, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.ingestService.UploadText(ownerID, filename, content)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// List returns the owner's documents
func (h *Handler) List(c *gin.Context) {
	docs, err := h.ingestService.Documents(middleware.OwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// Delete removes a document and its chunks
func (h *Handler) Delete(c *gin.Context) {
	err := h.ingestService.Delete(c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Search runs a relevance search over the owner's chunks
func (h *Handler) Search(c *gin.Context) {
	var req domain.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK <= 0 {
		req.TopK = h.defaultTopK
	}

	results, err := h.index.Search(middleware.OwnerID(c), req.Query, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// readUpload accepts either a multipart "file" field or a JSON body
// with filename and content.
func readUpload(c *gin.Context) (string, string, error) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return "", "", err
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
		if err != nil {
			return "", "", err
		}
		return file.Filename, string(data), nil
	}

	var body struct {
		Filename string `json:"filename" binding:"required"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return "", "", err
	}
	return body.Filename, body.Content, nil
}
