package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	ServiceName string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Kafka (game-result feed)
	KafkaBrokers    string
	LegResultsTopic string
	LegResultsGroup string
	ResultsDLQTopic string

	// Server
	Port        string
	MetricsPort string
	FrontendURL string

	// Matchmaking pools
	Leagues []string

	// Matchmaking
	MatchmakerPollSeconds int
	BotFallbackSeconds    int
	QueueMaxAgeMinutes    int
	QueueSweepSeconds     int
	StartingBalanceMin    float64
	StartingBalanceMax    float64

	// Bot behaviour
	BotMinStakedFraction float64
	BotMinBalance        float64
	BotMinPropositions   int
	BotRankPointsJitter  int

	// Wager limits
	MaxLegs              int
	MinLegsAllOrNothing  int
	MinLegsPartialCredit int

	// Chat
	ChatWindowMs    int
	ChatMaxMessages int
	ChatMaxLength   int

	// Security
	JWTSecret     string
	InternalToken string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		ServiceName: getEnv("SERVICE_NAME", "parlayclash"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/parlayclash?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Kafka
		KafkaBrokers:    getEnv("KAFKA_BROKERS", "localhost:9092"),
		LegResultsTopic: getEnv("KAFKA_TOPIC_LEG_RESULTS", "leg-results"),
		LegResultsGroup: getEnv("KAFKA_GROUP_LEG_RESULTS", "settlement-engine"),
		ResultsDLQTopic: getEnv("KAFKA_TOPIC_LEG_RESULTS_DLQ", "leg-results-dlq"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		// Matchmaking pools
		Leagues: strings.Split(getEnv("LEAGUES", "nba,nfl,mlb,nhl"), ","),

		// Matchmaking
		MatchmakerPollSeconds: getEnvInt("MATCHMAKER_POLL_SECONDS", 2),
		BotFallbackSeconds:    getEnvInt("BOT_FALLBACK_SECONDS", 45),
		QueueMaxAgeMinutes:    getEnvInt("QUEUE_MAX_AGE_MINUTES", 10),
		QueueSweepSeconds:     getEnvInt("QUEUE_SWEEP_SECONDS", 60),
		StartingBalanceMin:    getEnvFloat("STARTING_BALANCE_MIN", 800),
		StartingBalanceMax:    getEnvFloat("STARTING_BALANCE_MAX", 1200),

		// Bot behaviour
		BotMinStakedFraction: getEnvFloat("BOT_MIN_STAKED_FRACTION", 0.5),
		BotMinBalance:        getEnvFloat("BOT_MIN_BALANCE", 25),
		BotMinPropositions:   getEnvInt("BOT_MIN_PROPOSITIONS", 3),
		BotRankPointsJitter:  getEnvInt("BOT_RANK_POINTS_JITTER", 40),

		// Wager limits
		MaxLegs:              getEnvInt("WAGER_MAX_LEGS", 6),
		MinLegsAllOrNothing:  getEnvInt("WAGER_MIN_LEGS_PERFECT", 2),
		MinLegsPartialCredit: getEnvInt("WAGER_MIN_LEGS_FLEX", 3),

		// Chat
		ChatWindowMs:    getEnvInt("CHAT_WINDOW_MS", 1000),
		ChatMaxMessages: getEnvInt("CHAT_MAX_MESSAGES", 1),
		ChatMaxLength:   getEnvInt("CHAT_MAX_LENGTH", 500),

		// Security
		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		InternalToken: getEnv("INTERNAL_API_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
