package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/matchmaking"
	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/rank"
)

func createFriendlyInvite(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		var req struct {
			League string `json:"league" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "league required"})
			return
		}

		code, err := d.Friendly.CreateInvite(c.Request.Context(), userID, req.League)
		if err != nil {
			if errors.Is(err, rank.ErrUnknownUser) {
				c.JSON(http.StatusForbidden, gin.H{"error": "no rank on record"})
				return
			}
			d.Log.Error("invite creation failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"invite_code": code})
	}
}

func joinFriendlyInvite(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		var req struct {
			Code string `json:"invite_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invite_code required"})
			return
		}

		m, err := d.Friendly.JoinInvite(c.Request.Context(), userID, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, matchmaking.ErrInviteNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "invite not found"})
			case errors.Is(err, matchmaking.ErrSelfJoin):
				c.JSON(http.StatusBadRequest, gin.H{"error": "cannot join your own invite"})
			case errors.Is(err, rank.ErrUnknownUser):
				c.JSON(http.StatusForbidden, gin.H{"error": "no rank on record"})
			default:
				d.Log.Error("invite join failed", zap.String("user_id", userID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"match_id": m.ID})
	}
}
