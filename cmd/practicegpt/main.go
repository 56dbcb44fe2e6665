package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adavi-labs/practicegpt/internal/api"
	"github.com/adavi-labs/practicegpt/internal/config"
	"github.com/adavi-labs/practicegpt/internal/llm"
	"github.com/adavi-labs/practicegpt/internal/repository"
	"github.com/adavi-labs/practicegpt/internal/retrieval"
	"github.com/adavi-labs/practicegpt/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	threadRepo := repository.NewThreadRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// Retrieval: in-process index plus the optional remote service
	index := retrieval.NewIndex(documentRepo)
	remote := retrieval.NewRemoteClient(cfg.Retrieval.ServiceURL, cfg.Retrieval.Timeout, logger)

	// Completion backends
	primary := llm.NewBackend("primary", cfg.LLM.Primary.BaseURL, cfg.LLM.Primary.APIKey, cfg.LLM.Primary.Model)
	secondary := llm.NewBackend("secondary", cfg.LLM.Secondary.BaseURL, cfg.LLM.Secondary.APIKey, cfg.LLM.Secondary.Model)

	// Initialize services
	chatService := service.NewChatService(
		cfg,
		logger,
		threadRepo,
		settingsRepo,
		index,
		remote,
		primary,
		secondary,
	)

	ingestService := service.NewIngestService(documentRepo, logger, cfg.Ingest.ChunkSize)

	// Optional drop-directory ingestion
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := service.NewWatcher(ingestService, logger, cfg.Ingest.WatchDir, cfg.Ingest.WatchOwner)
	if watcher.Enabled() {
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				logger.Warn("Drop directory watcher stopped", zap.Error(err))
			}
		}()
	}

	// Setup router
	router := api.SetupRouter(chatService, ingestService, threadRepo, settingsRepo, index, api.RouterConfig{
		Tokens:       cfg.Auth.Tokens,
		AllowOrigins: []string{"*"},
		DefaultTopK:  cfg.Retrieval.TopK,
	})

	// Create HTTP server. WriteTimeout stays unset so streaming
	// responses are not cut off by a write deadline.
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting PracticeGPT server",
			zap.String("address", cfg.Address()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWatch()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
