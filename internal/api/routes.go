package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/chat"
	"github.com/parlayclash/backend/internal/config"
	"github.com/parlayclash/backend/internal/invalidation"
	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/matchmaking"
	"github.com/parlayclash/backend/internal/middleware"
	"github.com/parlayclash/backend/internal/queue"
	"github.com/parlayclash/backend/internal/rank"
	"github.com/parlayclash/backend/internal/wagers"
	"github.com/parlayclash/backend/internal/ws"
)

// Deps is everything the HTTP surface needs. The api package owns no state
// of its own; handlers translate requests into calls on these collaborators.
type Deps struct {
	Cfg        *config.Config
	Log        *zap.Logger
	Queue      queue.Queue
	Ranks      rank.Directory
	Ledger     *match.Ledger
	Engine     *wagers.Engine
	Matchmaker *matchmaking.Matchmaker
	Fallback   *matchmaking.FallbackScheduler
	Friendly   *matchmaking.FriendlyService
	Chat       *chat.Service
	ChatStore  *chat.PGStore
	Hub        *ws.Hub
	Bus        invalidation.Publisher
}

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, d *Deps) {
	router.Use(middleware.CORS(d.Cfg))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)

		authed := v1.Group("", middleware.Auth(d.Cfg.JWTSecret))
		{
			q := authed.Group("/queue")
			{
				q.POST("", enqueueSearch(d))
				q.DELETE("", cancelSearch(d))
				q.GET("/status", queueStatus(d))
			}

			friendly := authed.Group("/friendly")
			{
				friendly.POST("", createFriendlyInvite(d))
				friendly.POST("/join", joinFriendlyInvite(d))
			}

			matches := authed.Group("/matches")
			{
				matches.GET("/:id", getMatch(d))
				matches.POST("/:id/wagers", placeWager(d))
				matches.GET("/:id/chat", chatHistory(d))
			}

			authed.GET("/wagers/:id", getWager(d))
			authed.GET("/ws", serveWebSocket(d))
		}

		internal := v1.Group("/internal", middleware.Internal(d.Cfg.InternalToken))
		{
			internal.POST("/wagers/:id/grade", gradeWager(d))
			internal.POST("/matches/:id/resolve", resolveMatch(d))
		}
	}
}
