package api

import (
	"github.com/gin-gonic/gin"

	"github.com/adavi-labs/practicegpt/internal/api/chat"
	"github.com/adavi-labs/practicegpt/internal/api/documents"
	"github.com/adavi-labs/practicegpt/internal/api/middleware"
	"github.com/adavi-labs/practicegpt/internal/api/settings"
	"github.com/adavi-labs/practicegpt/internal/repository"
	"github.com/adavi-labs/practicegpt/internal/retrieval"
	"github.com/adavi-labs/practicegpt/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	Tokens       map[string]string
	AllowOrigins []string
	DefaultTopK  int
}

// SetupRouter sets up the Gin router
func SetupRouter(
	chatService *service.ChatService,
	ingestService *service.IngestService,
	threadRepo *repository.ThreadRepository,
	settingsRepo *repository.SettingsRepository,
	index *retrieval.Index,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.Tokens))

	chat.NewHandler(chatService, threadRepo).RegisterRoutes(apiGroup)
	documents.NewHandler(ingestService, index, cfg.DefaultTopK).RegisterRoutes(apiGroup)
	settings.NewHandler(settingsRepo).RegisterRoutes(apiGroup)

	return r
}
