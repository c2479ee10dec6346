package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr          string
	PostgresURL   string
	Redis         RedisConfig
	Kafka         KafkaConfig
	JWTSigningKey string
	SlipDir       string
	SlipBaseURL   string
	MaxSlipBytes  int64
}

// RedisConfig holds connection tuning for the event-day tally counters.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the lifecycle event stream settings. Empty brokers means
// the in-memory publisher is used instead.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults. Secrets must be overridden in production.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("RACEREG_ADDR", ":8080"),
		PostgresURL:   os.Getenv("RACEREG_POSTGRES_URL"),
		JWTSigningKey: envOr("RACEREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SlipDir:       envOr("RACEREG_SLIP_DIR", "data/slips"),
		SlipBaseURL:   envOr("RACEREG_SLIP_BASE_URL", "http://localhost:8080/slips"),
		MaxSlipBytes:  envInt64("RACEREG_MAX_SLIP_BYTES", 5<<20),
		Redis: RedisConfig{
			URL:          os.Getenv("RACEREG_REDIS_URL"),
			PoolSize:     envInt("RACEREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RACEREG_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RACEREG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RACEREG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RACEREG_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic: envOr("RACEREG_KAFKA_TOPIC", "racereg.registration-events"),
		},
	}
	if brokers := os.Getenv("RACEREG_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
