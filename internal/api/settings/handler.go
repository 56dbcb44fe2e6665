package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adavi-labs/practicegpt/internal/api/middleware"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/repository"
)

// Handler handles user settings API requests
type Handler struct {
	settings *repository.SettingsRepository
}

// NewHandler creates a new settings handler
func NewHandler(settings *repository.SettingsRepository) *Handler {
	return &Handler{settings: settings}
}

// RegisterRoutes registers settings routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.Get)
	r.PATCH("/settings", h.Update)
	r.GET("/tenants", h.Tenants)
}

// Get returns the owner's settings
func (h *Handler) Get(c *gin.Context) {
	settings, err := h.settings.Get(middleware.OwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Update applies a partial settings update
func (h *Handler) Update(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	var patch struct {
		EnableRAG    *bool   `json:"enable_rag"`
		SystemPrompt *string `json:"system_prompt"`
		Tenant       *string `json:"tenant"`
	}
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := h.settings.Get(ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if patch.EnableRAG != nil {
		current.EnableRAG = *patch.EnableRAG
	}
	if patch.SystemPrompt != nil {
		current.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Tenant != nil {
		current.Tenant = *patch.Tenant
	}

	if err := h.settings.Update(current); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, current)
}

// Tenants lists the available personas
func (h *Handler) Tenants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tenants": domain.Tenants()})
}
