package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/rank"
)

// enqueueSearch puts the caller into their league's waiting pool, arms the
// bot-fallback deadline and nudges the matchmaker.
func enqueueSearch(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		var req struct {
			League string `json:"league" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "league required"})
			return
		}

		r, err := d.Ranks.Lookup(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, rank.ErrUnknownUser) {
				c.JSON(http.StatusForbidden, gin.H{"error": "no rank on record"})
				return
			}
			d.Log.Error("rank lookup failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		entry := models.QueueEntry{
			UserID:    userID,
			League:    req.League,
			RankTier:  r.Tier,
			RankLevel: r.Level,
		}
		if _, err := d.Queue.Enqueue(c.Request.Context(), entry); err != nil {
			d.Log.Error("enqueue failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if err := d.Fallback.Arm(c.Request.Context(), userID, req.League); err != nil {
			d.Log.Warn("bot fallback arm failed",
				zap.String("user_id", userID),
				zap.String("league", req.League),
				zap.Error(err))
		}
		d.Matchmaker.Kick(req.League)
		d.Bus.Publish(c.Request.Context(), "queue:"+req.League)

		c.JSON(http.StatusAccepted, gin.H{"queued": true, "league": req.League})
	}
}

// cancelSearch removes the caller from the pool and discards their fallback
// deadline. Idempotent: a fired deadline or earlier pairing makes this a
// no-op.
func cancelSearch(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		league := c.Query("league")
		if league == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "league required"})
			return
		}

		removed, err := d.Queue.RemoveIfPresent(c.Request.Context(), userID, league)
		if err != nil {
			d.Log.Error("queue removal failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if err := d.Fallback.Cancel(c.Request.Context(), userID, league); err != nil {
			d.Log.Warn("deadline cancel failed", zap.String("user_id", userID), zap.Error(err))
		}
		if removed {
			d.Bus.Publish(c.Request.Context(), "queue:"+league)
		}

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

func queueStatus(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		depths, err := d.Queue.Depths(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		for league, n := range depths {
			metrics.QueueDepth.WithLabelValues(league).Set(float64(n))
		}
		c.JSON(http.StatusOK, gin.H{"depths": depths})
	}
}
