package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// HealthCacheTTL bounds how stale a cached hierarchy health report may be.
	HealthCacheTTL time.Duration
}

// RedisConfig holds connection settings for the optional cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the change-event outbox publisher.
// Empty Brokers disables publishing; mutations never depend on Kafka.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("CUSTODIA_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		HealthCacheTTL: 30 * time.Second,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Topic:        envOr("KAFKA_CHANGE_TOPIC", "custodia.change-log"),
			PollInterval: time.Second,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if ttl, err := time.ParseDuration(os.Getenv("HEALTH_CACHE_TTL")); err == nil && ttl > 0 {
		cfg.HealthCacheTTL = ttl
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
