package api

import (
	"github.com/gin-gonic/gin"

	"github.com/playbingo/backend/internal/api/handlers"
	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/history"
	"github.com/playbingo/backend/internal/middleware"
	"github.com/playbingo/backend/internal/store"
	"github.com/playbingo/backend/internal/ws"
)

// SetupRoutes configures all API routes. recorder may be nil when the
// game-result archive is disabled.
func SetupRoutes(router *gin.Engine, st store.Store, gateway *ws.Gateway, recorder *history.Recorder, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// API v1 group (read-only observer surface; all game actions go over
	// the websocket)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(gateway))
		v1.GET("/session", handlers.GetSession(st, cfg))
		v1.GET("/players", handlers.ListPlayers(st, cfg))
		if recorder != nil {
			v1.GET("/history", handlers.RecentGames(recorder, cfg))
		}
	}

	// Game websocket
	router.GET("/ws", middleware.WebSocketCORSCheck(cfg), gateway.HandleGameWebSocket())
}
