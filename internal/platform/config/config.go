package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean.
type Config struct {
	Addr string

	DatabaseURL string
	RedisURL    string

	// KafkaBrokers enables the audit outbox relay when non-empty.
	KafkaBrokers    []string
	AuditTopic      string
	OutboxInterval  time.Duration
	OutboxBatchSize int

	JWTSigningKey string
	JWTIssuer     string

	EventsBaseURL        string
	RegistrationsBaseURL string
	UpstreamTimeout      time.Duration

	RosterCacheTTL time.Duration
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	return Config{
		Addr:        getEnv("PRESENCE_ADDR", ":8084"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:      getEnv("AUDIT_TOPIC", "presence.audit"),
		OutboxInterval:  getDuration("OUTBOX_INTERVAL", time.Second),
		OutboxBatchSize: getInt("OUTBOX_BATCH_SIZE", 100),

		// Default exists for development only; override in production.
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "identity-service"),

		EventsBaseURL:        getEnv("EVENTS_SERVICE_URL", "http://localhost:8082"),
		RegistrationsBaseURL: getEnv("REGISTRATIONS_SERVICE_URL", "http://localhost:8083"),
		UpstreamTimeout:      getDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		RosterCacheTTL: getDuration("ROSTER_CACHE_TTL", 5*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
