package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/raaihank/redaction-review/internal/masking"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REVIEWER_SERVER_PORT
const EnvPrefix = "REVIEWER"

// Loader reads configuration and keeps the viper instance for reloads
type Loader struct {
	v  *viper.Viper
	mu sync.RWMutex
	// current is the last configuration that passed validation
	current *Config
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	l, err := NewLoader(configPath)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

// NewLoader reads and validates configuration from file, .env and environment
func NewLoader(configPath string) (*Loader, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/redaction-review/")
	v.AddConfigPath("$HOME/.redaction-review/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Loader{v: v, current: config}, nil
}

// Config returns the current configuration
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// ConfigFile returns the path of the file in use, empty when running on
// defaults and environment only
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch starts watching the configuration file for changes. Valid new
// configurations are passed to callback; invalid ones to onError and
// otherwise ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) error {
	if l.v.ConfigFileUsed() == "" {
		return errors.New("no configuration file to watch")
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(l.v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		l.mu.Lock()
		l.current = newConfig
		l.mu.Unlock()

		callback(newConfig)
	})
	l.v.WatchConfig()

	return nil
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return config
}

func decode(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("reviewer.name", "")
	v.SetDefault("reviewer.badge", "")
	v.SetDefault("reviewer.department", "Domestic Violence Unit")

	v.SetDefault("case.case_number", "")
	v.SetDefault("case.status", "Active Review")
	v.SetDefault("case.scan_date", "")

	v.SetDefault("masking.format", masking.DefaultFormat)
	v.SetDefault("masking.mask_pending", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/reviewer.log")

	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.max_connections", 100)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.ping_interval", 54*time.Second)
	v.SetDefault("websocket.pong_timeout", 60*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.allowed_origins", []string{"*"})
	v.SetDefault("websocket.events.broadcast_lifecycle", true)
	v.SetDefault("websocket.events.broadcast_connections", true)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.max_connections", 10)
	v.SetDefault("cache.min_idle_conns", 2)
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.key_prefix", "reviewer")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.database_url", "postgres://reviewer@localhost:5432/reviewer?sslmode=disable")
	v.SetDefault("audit.max_open_conns", 10)
	v.SetDefault("audit.max_idle_conns", 2)
	v.SetDefault("audit.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("audit.buffer_size", 256)
	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.flush_interval", time.Second)

	v.SetDefault("ingest.seed_file", "")
	v.SetDefault("ingest.batch_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if err := masking.Validate(config.Masking); err != nil {
		return fmt.Errorf("invalid masking config: %w", err)
	}

	if _, err := config.Case.ParsedScanDate(); err != nil {
		return fmt.Errorf("invalid case scan_date %q (must be RFC3339): %w", config.Case.ScanDate, err)
	}

	if config.WebSocket.Enabled && !strings.HasPrefix(config.WebSocket.Path, "/") {
		return fmt.Errorf("invalid websocket path: %q", config.WebSocket.Path)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return errors.New("cache enabled but redis_url is empty")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return errors.New("audit enabled but database_url is empty")
	}

	if config.Ingest.BatchSize < 0 {
		return fmt.Errorf("invalid ingest batch size: %d", config.Ingest.BatchSize)
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("invalid rate limit: %g requests per second", config.RateLimit.RequestsPerSecond)
		}
		if config.RateLimit.Burst < 1 {
			return fmt.Errorf("invalid rate limit burst: %d", config.RateLimit.Burst)
		}
	}

	return nil
}
