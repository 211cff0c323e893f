package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/wagers"
)

type placeWagerRequest struct {
	Stake float64 `json:"stake" binding:"required"`
	Type  string  `json:"type" binding:"required"`
	Legs  []struct {
		PropositionID string `json:"proposition_id" binding:"required"`
		SubjectID     string `json:"subject_id" binding:"required"`
		Choice        string `json:"choice" binding:"required"`
	} `json:"legs" binding:"required"`
}

func placeWager(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		matchID := c.Param("id")

		var req placeWagerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stake, type and legs required"})
			return
		}

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

		legs := make([]wagers.LegInput, 0, len(req.Legs))
		for _, l := range req.Legs {
			legs = append(legs, wagers.LegInput{
				PropositionID: l.PropositionID,
				SubjectID:     l.SubjectID,
				Choice:        l.Choice,
			})
		}

		wagerID, err := d.Engine.Place(c.Request.Context(), p.ID, matchID, req.Stake, req.Type, legs)
		if err != nil {
			status, reason := placementError(err)
			if status == http.StatusInternalServerError {
				d.Log.Error("wager placement failed",
					zap.String("participant_id", p.ID),
					zap.Error(err))
			}
			c.JSON(status, gin.H{"error": reason})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"wager_id": wagerID})
	}
}

func placementError(err error) (int, string) {
	switch {
	case errors.Is(err, wagers.ErrInvalidStake):
		return http.StatusBadRequest, "stake must be positive"
	case errors.Is(err, wagers.ErrInvalidType):
		return http.StatusBadRequest, "unknown wager type"
	case errors.Is(err, wagers.ErrInvalidLegCount):
		return http.StatusBadRequest, "leg count out of range for this wager type"
	case errors.Is(err, wagers.ErrDuplicateSubject):
		return http.StatusBadRequest, "two legs reference the same subject"
	case errors.Is(err, wagers.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, wagers.ErrParticipantInactive):
		return http.StatusConflict, "participant is no longer active"
	case errors.Is(err, wagers.ErrNotFound):
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal error"
}

func getWager(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		wagerID := c.Param("id")
		ctx := c.Request.Context()

		w, legs, err := d.Ledger.Wager(ctx, wagerID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "wager not found"})
			return
		}

		p, err := d.Ledger.Participant(ctx, w.ParticipantID)
		if err != nil || p.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your wager"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"wager": w, "legs": legs})
	}
}

// gradeWager settles a wager whose legs have all reached terminal status.
// Normally driven by the result feed; this endpoint backstops it.
func gradeWager(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		wagerID := c.Param("id")

		err := d.Engine.Grade(c.Request.Context(), wagerID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"graded": true})
		case errors.Is(err, wagers.ErrNotAllLegsResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "legs still pending"})
		case errors.Is(err, wagers.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "wager not found"})
		default:
			d.Log.Error("grading failed", zap.String("wager_id", wagerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
	}
}
