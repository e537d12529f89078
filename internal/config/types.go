package config

import (
	"time"

	"github.com/raaihank/redaction-review/internal/audit"
	"github.com/raaihank/redaction-review/internal/cache"
	"github.com/raaihank/redaction-review/internal/masking"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Reviewer  ReviewerConfig  `yaml:"reviewer" mapstructure:"reviewer"`
	Case      CaseConfig      `yaml:"case" mapstructure:"case"`
	Masking   masking.Config  `yaml:"masking" mapstructure:"masking"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Cache     cache.Config    `yaml:"cache" mapstructure:"cache"`
	Audit     audit.Config    `yaml:"audit" mapstructure:"audit"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ReviewerConfig identifies the reviewer used when a request carries no
// reviewer headers. When empty, the seeded case's current user acts.
type ReviewerConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Badge      string `yaml:"badge" mapstructure:"badge"`
	Department string `yaml:"department" mapstructure:"department"`
}

// CaseConfig describes the case under review
type CaseConfig struct {
	CaseNumber string `yaml:"case_number" mapstructure:"case_number"`
	Status     string `yaml:"status" mapstructure:"status"`
	ScanDate   string `yaml:"scan_date" mapstructure:"scan_date"` // RFC3339
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events          struct {
		BroadcastLifecycle   bool `yaml:"broadcast_lifecycle" mapstructure:"broadcast_lifecycle"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// IngestConfig controls seeding the store at startup
type IngestConfig struct {
	SeedFile  string `yaml:"seed_file" mapstructure:"seed_file"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// RateLimitConfig contains per-client request limits for the API
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// ParsedScanDate returns the case scan date, zero when unset
func (c CaseConfig) ParsedScanDate() (time.Time, error) {
	if c.ScanDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, c.ScanDate)
}
