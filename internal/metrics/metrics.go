package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MatchesFormed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlayclash_matches_formed_total",
		Help: "Matches opened, by formation path (paired, bot_fallback, friendly).",
	}, []string{"path"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parlayclash_queue_depth",
		Help: "Current waiting-queue depth per league.",
	}, []string{"league"})

	WagersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlayclash_wagers_placed_total",
		Help: "Wagers accepted by the settlement engine, by payout mode.",
	}, []string{"mode"})

	WagersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlayclash_wagers_rejected_total",
		Help: "Wager placements rejected at validation, by reason.",
	}, []string{"reason"})

	WagersGraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlayclash_wagers_graded_total",
		Help: "Wagers graded, by payout mode.",
	}, []string{"mode"})

	BotWagersAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlayclash_bot_wagers_attempted_total",
		Help: "Simulated wager attempts made by synthetic opponents.",
	})

	ChatThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlayclash_chat_throttled_total",
		Help: "Chat messages rejected by the rate limiter.",
	})

	InvalidationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlayclash_invalidations_published_total",
		Help: "Cache-invalidation keys published.",
	})
)

type HealthFunc func(ctx context.Context) error

// StartServer runs a lightweight HTTP server exposing /metrics and /healthz,
// separate from the public API port.
func StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
