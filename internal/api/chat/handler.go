package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adavi-labs/practicegpt/internal/api/middleware"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/repository"
	"github.com/adavi-labs/practicegpt/internal/service"
)

// Handler handles chat and thread API requests
type Handler struct {
	chatService *service.ChatService
	threads     *repository.ThreadRepository
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService, threads *repository.ThreadRepository) *Handler {
	return &Handler{chatService: chatService, threads: threads}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
	r.GET("/threads", h.ListThreads)
	r.POST("/threads", h.CreateThread)
	r.GET("/threads/:id", h.GetThread)
	r.PUT("/threads/:id/activate", h.ActivateThread)
	r.DELETE("/threads/:id", h.DeleteThread)
}

// CreateThread starts a new thread. The new thread becomes the owner's
// active thread.
func (h *Handler) CreateThread(c *gin.Context) {
	var req struct {
		Title  string `json:"title"`
		Tenant string `json:"tenant"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}
	if req.Tenant == "" {
		req.Tenant = domain.DefaultTenant
	}

	thread, err := h.threads.Create(middleware.OwnerID(c), req.Title, req.Tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, thread)
}

// Chat handles a streaming chat message (SSE)
func (h *Handler) Chat(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, thread, err := h.chatService.ChatStream(c.Request.Context(), ownerID, &req)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// hold back the SSE commitment until the first event: a turn that
	// fails before any content was streamed is a plain JSON error
	first, ok := <-stream
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream produced no events"})
		return
	}
	if first.Type == domain.EventError {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     first.Content,
			"code":      first.Code,
			"thread_id": first.ThreadID,
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Thread-ID", thread.ID)

	pending := &first
	c.Stream(func(w io.Writer) bool {
		event := pending
		if event == nil {
			next, ok := <-stream
			if !ok {
				return false
			}
			event = &next
		}
		pending = nil
		data, _ := json.Marshal(*event)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		return true
	})
}

// ListThreads returns the owner's threads, most recent first
func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.threads.List(middleware.OwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

// GetThread returns a thread with its messages grouped into sections
func (h *Handler) GetThread(c *gin.Context) {
	thread, messages, err := h.chatService.Thread(c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thread":   thread,
		"messages": messages,
		"sections": domain.ReduceSections(messages),
	})
}

// ActivateThread makes a thread the owner's active thread
func (h *Handler) ActivateThread(c *gin.Context) {
	err := h.threads.SetActive(c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteThread removes a thread and its messages
func (h *Handler) DeleteThread(c *gin.Context) {
	err := h.threads.Delete(c.Param("id"), middleware.OwnerID(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
