package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/playbingo/backend/internal/api"
	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/history"
	"github.com/playbingo/backend/internal/logger"
	"github.com/playbingo/backend/internal/migrations"
	"github.com/playbingo/backend/internal/store"
	"github.com/playbingo/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Infof("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Shared document store. Unreachable store at startup is fatal: without
	// it there is no game to join.
	st, err := store.Connect(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer st.Close()

	// Optional game-result archive
	var recorder *history.Recorder
	if cfg.DatabaseURL != "" {
		if os.Getenv("MIGRATE_ON_START") == "true" {
			logger.Infof("Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				logger.Fatalf("Failed to run migrations: %v", err)
			}
		}
		recorder, err = history.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer recorder.Close()

		unsub, err := recorder.Watch(context.Background(), st, cfg.AppID)
		if err != nil {
			logger.Fatalf("Failed to start game archive watcher: %v", err)
		}
		defer unsub()
		logger.Infof("[history] game-result archive enabled")
	} else {
		logger.Infof("[history] DATABASE_URL not set, game-result archive disabled")
	}

	// Websocket gateway: one session controller per connected participant
	gateway := ws.NewGateway(st, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	api.SetupRoutes(router, st, gateway, recorder, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Infof("Starting PlayBingo server on port %s (app %s)", port, cfg.AppID)
	if err := router.Run(":" + port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
