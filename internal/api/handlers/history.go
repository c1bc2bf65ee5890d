package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/history"
)

// RecentGames returns the latest archived game results.
func RecentGames(recorder *history.Recorder, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 20
		}

		results, err := recorder.Recent(c.Request.Context(), cfg.AppID, limit)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(results), "games": results})
	}
}
