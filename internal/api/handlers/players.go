package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/playbingo/backend/internal/config"
	"github.com/playbingo/backend/internal/game"
	"github.com/playbingo/backend/internal/store"
)

// ListPlayers returns the participant directory without cards: who is in
// the game, when they joined, and whether they have a claim in flight.
// Cards stay private to their owners.
func ListPlayers(st store.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := st.ListCollection(c.Request.Context(), store.PlayersPath(cfg.AppID))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}

		players := make([]gin.H, 0, len(docs))
		for id, raw := range docs {
			var p game.Player
			if err := json.Unmarshal(raw, &p); err != nil {
				continue
			}
			players = append(players, gin.H{
				"id":              id,
				"joinedAt":        p.JoinedAt,
				"lastActive":      p.LastActive,
				"hasClaimedBingo": p.HasClaimedBingo,
			})
		}
		sort.Slice(players, func(i, j int) bool {
			return players[i]["joinedAt"].(int64) < players[j]["joinedAt"].(int64)
		})

		c.JSON(http.StatusOK, gin.H{"count": len(players), "players": players})
	}
}
