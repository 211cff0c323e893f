package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parlayclash/backend/internal/api"
	"github.com/parlayclash/backend/internal/bots"
	"github.com/parlayclash/backend/internal/chat"
	"github.com/parlayclash/backend/internal/config"
	"github.com/parlayclash/backend/internal/database"
	"github.com/parlayclash/backend/internal/invalidation"
	"github.com/parlayclash/backend/internal/logger"
	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/matchmaking"
	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/migrations"
	"github.com/parlayclash/backend/internal/queue"
	"github.com/parlayclash/backend/internal/rank"
	"github.com/parlayclash/backend/internal/redis"
	"github.com/parlayclash/backend/internal/results"
	"github.com/parlayclash/backend/internal/wagers"
	"github.com/parlayclash/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	if os.Getenv("MIGRATE_ON_START") == "true" {
		if err := migrations.Run(cfg.DatabaseURL, zlog); err != nil {
			zlog.Fatal("migrations failed", zap.Error(err))
		}
	}

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("redis connect failed", zap.Error(err))
	}
	defer rdb.Close()

	// Core services
	bus := invalidation.NewBus(rdb, zlog)
	pool := queue.NewPG(db)
	ranks := rank.NewPG(db)
	ledger := match.NewLedger(db, cfg.StartingBalanceMin, cfg.StartingBalanceMax)

	engine := wagers.NewEngine(ledger, bus, wagers.Limits{
		MaxLegs:              cfg.MaxLegs,
		MinLegsAllOrNothing:  cfg.MinLegsAllOrNothing,
		MinLegsPartialCredit: cfg.MinLegsPartialCredit,
	}, zlog)

	hub := ws.NewHub(zlog.Named("ws"))

	synth := bots.NewSynthesizer(
		bots.NewPGStore(db),
		bots.NewPGPropositions(db),
		ledger,
		engine,
		hub,
		bots.Tunables{
			MinStakedFraction: cfg.BotMinStakedFraction,
			MinBalance:        cfg.BotMinBalance,
			MinPropositions:   cfg.BotMinPropositions,
			RankPointsJitter:  cfg.BotRankPointsJitter,
		},
		zlog,
	)

	deadlines := matchmaking.NewRedisDeadlines(rdb)
	fallback := matchmaking.NewFallbackScheduler(
		pool, deadlines, ranks, synth, ledger, hub, bus,
		time.Duration(cfg.BotFallbackSeconds)*time.Second, zlog,
	)
	matchmaker := matchmaking.New(
		pool, ranks, ledger, hub, fallback, bus, cfg.Leagues,
		time.Duration(cfg.MatchmakerPollSeconds)*time.Second, zlog,
	)
	friendly := matchmaking.NewFriendlyService(pool, ranks, ledger, hub, bus, zlog)

	limiter := chat.NewRateLimiter(
		time.Duration(cfg.ChatWindowMs)*time.Millisecond,
		cfg.ChatMaxMessages,
	)
	chatStore := chat.NewPGStore(db)
	chatSvc := chat.NewService(chatStore, ledger, limiter, cfg.ChatMaxLength, zlog)

	sweeper := queue.NewSweeper(
		pool, cfg.Leagues, cfg.QueueMaxAgeMinutes,
		time.Duration(cfg.QueueSweepSeconds)*time.Second, zlog,
	)

	resultsConsumer := &results.Consumer{
		Log:    zlog.Named("results"),
		Reader: results.NewReader(cfg.KafkaBrokers, cfg.LegResultsTopic, cfg.LegResultsGroup),
		DLQ:    results.NewWriter(cfg.KafkaBrokers, cfg.ResultsDLQTopic),
		Ledger: ledger,
		Engine: engine,
	}

	metricsSrv := metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, &api.Deps{
		Cfg:        cfg,
		Log:        zlog.Named("api"),
		Queue:      pool,
		Ranks:      ranks,
		Ledger:     ledger,
		Engine:     engine,
		Matchmaker: matchmaker,
		Fallback:   fallback,
		Friendly:   friendly,
		Chat:       chatSvc,
		ChatStore:  chatStore,
		Hub:        hub,
		Bus:        bus,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return hub.RunInvalidations(ctx, bus.Subscribe(ctx)) })
	g.Go(func() error { return matchmaker.Run(ctx) })
	g.Go(func() error { return fallback.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return resultsConsumer.Run(ctx) })
	g.Go(func() error {
		zlog.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Fatal("server exited", zap.Error(err))
	}
	zlog.Info("shutdown complete")
}
