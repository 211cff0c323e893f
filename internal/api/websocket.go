package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/ws"
)

// serveWebSocket upgrades the connection. A match_id query parameter joins
// the client to that match's room, enabling chat; without one the client
// only receives personal events (match-found and the like).
func serveWebSocket(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		matchID := c.Query("match_id")

		participantID := ""
		if matchID != "" {
			participants, err := d.Ledger.Participants(c.Request.Context(), matchID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			p := participantFor(participants, userID)
			if p == nil {
				c.JSON(http.StatusForbidden, gin.H{"error": "not your match"})
				return
			}
			participantID = p.ID
		}

		if err := ws.Serve(d.Hub, d.Chat, c.Writer, c.Request, userID, matchID, participantID); err != nil {
			d.Log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
