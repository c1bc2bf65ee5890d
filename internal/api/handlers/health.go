package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playbingo/backend/internal/ws"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck returns server health status
func HealthCheck(gateway *ws.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "playbingo-api",
			"version":     version,
			"uptime":      time.Since(startTime).String(),
			"connections": gateway.ConnectionCount(),
		})
	}
}
