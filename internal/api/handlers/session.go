package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/game"
	"github.com/playbingo/backend/internal/store"
)

// GetSession returns the current shared game document for dashboards and
// spectators. Absence means no participant has joined yet.
func GetSession(st store.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var session game.Session
		exists, err := st.GetDocument(c.Request.Context(), store.SessionPath(cfg.AppID), &session)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "no game session yet"})
			return
		}

		resp := gin.H{
			"status":      session.Status,
			"called":      session.CalledNumbers,
			"calledCount": len(session.CalledNumbers),
			"version":     session.Version,
		}
		if session.Winner != "" {
			resp["winner"] = session.Winner
		}
		if n, ok := session.LastNumber(); ok {
			resp["lastNumber"] = n
			resp["lastCall"] = game.Letter(n)
		}
		c.JSON(http.StatusOK, resp)
	}
}
