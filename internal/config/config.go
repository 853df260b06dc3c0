// Package config loads the server configuration from the environment
// (optionally seeded from a .env file) with defaults for every setting.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. MODCHAT_SERVER_ADDR.
const EnvPrefix = "MODCHAT"

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Match     MatchConfig
	WebSocket WebSocketConfig
	Gate      GateConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type PostgresConfig struct {
	Enabled bool
	DSN     string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled         bool
	JWTSecret       string
	Issuer          string
	TokenQueryParam string
}

// MatchConfig tunes the matcher. The search delay is drawn uniformly from
// [MinDelay, MaxDelay].
type MatchConfig struct {
	MinDelay         time.Duration
	MaxDelay         time.Duration
	StrictInvariants bool
}

type WebSocketConfig struct {
	MaxMessageSize int64
	SendBuffer     int
	RatePerSecond  float64
	RateBurst      int
}

// GateConfig sizes the entitlement cache.
type GateConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level  string
	Format string
}

var (
	ErrInvalidDelay  = errors.New("match.min_delay must not exceed match.max_delay")
	ErrMissingSecret = errors.New("auth.jwt_secret is required when auth is enabled")
	ErrInvalidSize   = errors.New("websocket sizes must be positive")
)

// Load reads .env (if present) and the MODCHAT_* environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.no_dotenv", "error", err)
	}
	return FromViper(newViper())
}

// Default returns the configuration with every setting at its default.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FromViper builds and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			AllowedOrigins: parseOrigins(v.GetString("server.allowed_origins")),
		},
		Postgres: PostgresConfig{
			Enabled: v.GetBool("postgres.enabled"),
			DSN:     v.GetString("postgres.dsn"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			Enabled:         v.GetBool("auth.enabled"),
			JWTSecret:       v.GetString("auth.jwt_secret"),
			Issuer:          v.GetString("auth.issuer"),
			TokenQueryParam: v.GetString("auth.token_query_param"),
		},
		Match: MatchConfig{
			MinDelay:         v.GetDuration("match.min_delay"),
			MaxDelay:         v.GetDuration("match.max_delay"),
			StrictInvariants: v.GetBool("match.strict_invariants"),
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: v.GetInt64("websocket.max_message_size"),
			SendBuffer:     v.GetInt("websocket.send_buffer"),
			RatePerSecond:  v.GetFloat64("websocket.rate_per_second"),
			RateBurst:      v.GetInt("websocket.rate_burst"),
		},
		Gate: GateConfig{
			CacheSize: v.GetInt("gate.cache_size"),
			CacheTTL:  v.GetDuration("gate.cache_ttl"),
			Timeout:   v.GetDuration("gate.timeout"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Match.MinDelay < 0 || c.Match.MinDelay > c.Match.MaxDelay {
		return ErrInvalidDelay
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.WebSocket.MaxMessageSize <= 0 || c.WebSocket.SendBuffer <= 0 || c.Gate.CacheSize <= 0 {
		return ErrInvalidSize
	}
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
