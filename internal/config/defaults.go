package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// Search delay window ("typical wait").
	DefaultMinSearchDelay = 1800 * time.Millisecond
	DefaultMaxSearchDelay = 7200 * time.Millisecond

	DefaultMaxMessageSize = 4096
	DefaultSendBuffer     = 256
)

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", "*")

	// Postgres
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.dsn", "host=localhost user=user password=password dbname=modchatdb port=5432 sslmode=disable")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Auth
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "modchat-auth")
	v.SetDefault("auth.token_query_param", "token")

	// Match
	v.SetDefault("match.min_delay", DefaultMinSearchDelay)
	v.SetDefault("match.max_delay", DefaultMaxSearchDelay)
	v.SetDefault("match.strict_invariants", false)

	// WebSocket
	v.SetDefault("websocket.max_message_size", DefaultMaxMessageSize)
	v.SetDefault("websocket.send_buffer", DefaultSendBuffer)
	v.SetDefault("websocket.rate_per_second", 10.0)
	v.SetDefault("websocket.rate_burst", 20)

	// Gate
	v.SetDefault("gate.cache_size", 10000)
	v.SetDefault("gate.cache_ttl", 30*time.Second)
	v.SetDefault("gate.timeout", 2*time.Second)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
