package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/models"
)

func getMatch(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID := c.Param("id")

		m, err := d.Ledger.Match(c.Request.Context(), matchID)
		if err != nil {
			if errors.Is(err, match.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		participants, err := d.Ledger.Participants(c.Request.Context(), matchID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if !inMatch(participants, middleware.UserID(c)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your match"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"match": m, "participants": participants})
	}
}

func chatHistory(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID := c.Param("id")

		participants, err := d.Ledger.Participants(c.Request.Context(), matchID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !inMatch(participants, middleware.UserID(c)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your match"})
			return
		}

		msgs, err := d.ChatStore.History(c.Request.Context(), matchID, 50)
		if err != nil {
			d.Log.Error("chat history load failed", zap.String("match_id", matchID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

// resolveMatch flips the match to resolved. Internal callers only; the
// decision that a match is over lives upstream.
func resolveMatch(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID := c.Param("id")

		changed, err := d.Ledger.ResolveMatch(c.Request.Context(), matchID)
		if err != nil {
			if errors.Is(err, match.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
				return
			}
			d.Log.Error("match resolve failed", zap.String("match_id", matchID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if changed {
			d.Bus.Publish(c.Request.Context(), "match:"+matchID)
		}
		c.JSON(http.StatusOK, gin.H{"resolved": true, "changed": changed})
	}
}

func inMatch(participants []models.Participant, userID string) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func participantFor(participants []models.Participant, userID string) *models.Participant {
	for i := range participants {
		if participants[i].UserID == userID {
			return &participants[i]
		}
	}
	return nil
}
