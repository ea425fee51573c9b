// Package config loads the server configuration from defaults, the
// environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CHATROOM_"

type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	Redis     *RedisConfig     `json:"redis"`
	Storage   *StorageConfig   `json:"storage"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
	Logging   *LoggingConfig   `json:"logging"`
}

type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
}

type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"-"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

type ChatConfig struct {
	HistoryLimit int           `json:"history_limit"`
	SearchLimit  int           `json:"search_limit"`
	StoreTimeout time.Duration `json:"store_timeout"`
	RateLimit    float64       `json:"rate_limit"` // messages per second; 0 disables
	RateBurst    int           `json:"rate_burst"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/chatroom.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		Redis: &RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "chatroom",
		},
		Storage: &StorageConfig{
			Driver: DriverSQLite,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   5 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 128 * 1024,
		},
		Chat: &ChatConfig{
			HistoryLimit: 50,
			SearchLimit:  50,
			StoreTimeout: 5 * time.Second,
			RateLimit:    5,
			RateBurst:    10,
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c *Config) Validate() error {
	if c.Database == nil || c.Redis == nil || c.Storage == nil || c.HTTP == nil ||
		c.WebSocket == nil || c.Chat == nil || c.Logging == nil {
		return errors.New("every configuration section is required")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return errors.New("database timeout must be positive")
		}
		if c.Database.MaxConnections <= 0 {
			return errors.New("database max connections must be positive")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address cannot be empty")
		}
		if c.Redis.DB < 0 {
			return errors.New("redis db cannot be negative")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want %s or %s)", c.Storage.Driver, DriverSQLite, DriverRedis)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}

	if c.Chat.HistoryLimit <= 0 {
		return errors.New("chat history limit must be positive")
	}
	if c.Chat.SearchLimit <= 0 {
		return errors.New("chat search limit must be positive")
	}
	if c.Chat.StoreTimeout <= 0 {
		return errors.New("chat store timeout must be positive")
	}
	if c.Chat.RateLimit < 0 {
		return errors.New("chat rate limit cannot be negative")
	}
	if c.Chat.RateLimit > 0 && c.Chat.RateBurst <= 0 {
		return errors.New("chat rate burst must be positive when rate limiting is on")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv returns the defaults overridden by CHATROOM_* variables.
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(c *Config) {
	envString("DATABASE_PATH", &c.Database.Path)
	envDuration("DATABASE_TIMEOUT", &c.Database.Timeout)
	envInt("DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)

	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)
	envString("REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)

	envString("STORAGE_DRIVER", &c.Storage.Driver)

	envInt("HTTP_PORT", &c.HTTP.Port)
	envString("HTTP_HOST", &c.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	if v, ok := lookup("WEBSOCKET_MAX_MESSAGE_SIZE"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.WebSocket.MaxMessageSize = n
		}
	}

	envInt("CHAT_HISTORY_LIMIT", &c.Chat.HistoryLimit)
	envInt("CHAT_SEARCH_LIMIT", &c.Chat.SearchLimit)
	envDuration("CHAT_STORE_TIMEOUT", &c.Chat.StoreTimeout)
	if v, ok := lookup("CHAT_RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Chat.RateLimit = f
		}
	}
	envInt("CHAT_RATE_BURST", &c.Chat.RateBurst)

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	return v, v != ""
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile is the YAML layout. Durations are strings such as "30s";
// absent fields leave the underlying value alone.
type ConfigFile struct {
	Database *struct {
		Path           string `yaml:"path"`
		Timeout        string `yaml:"timeout"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`
	Redis *struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        *int   `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	Storage *struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	HTTP *struct {
		Port         int    `yaml:"port"`
		Host         string `yaml:"host"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"http"`
	WebSocket *struct {
		PingInterval   string `yaml:"ping_interval"`
		ReadTimeout    string `yaml:"read_timeout"`
		WriteTimeout   string `yaml:"write_timeout"`
		BufferSize     int    `yaml:"buffer_size"`
		MaxMessageSize int64  `yaml:"max_message_size"`
	} `yaml:"websocket"`
	Chat *struct {
		HistoryLimit int      `yaml:"history_limit"`
		SearchLimit  int      `yaml:"search_limit"`
		StoreTimeout string   `yaml:"store_timeout"`
		RateLimit    *float64 `yaml:"rate_limit"`
		RateBurst    int      `yaml:"rate_burst"`
	} `yaml:"chat"`
	Logging *struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFromFile returns the defaults overridden by the YAML file at path.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f ConfigFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var errs []error
	duration := func(field, raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}
	str := func(raw string, dst *string) {
		if raw != "" {
			*dst = raw
		}
	}
	positive := func(n int, dst *int) {
		if n > 0 {
			*dst = n
		}
	}

	if f.Database != nil {
		str(f.Database.Path, &c.Database.Path)
		duration("database.timeout", f.Database.Timeout, &c.Database.Timeout)
		positive(f.Database.MaxConnections, &c.Database.MaxConnections)
	}
	if f.Redis != nil {
		str(f.Redis.Addr, &c.Redis.Addr)
		str(f.Redis.Password, &c.Redis.Password)
		str(f.Redis.KeyPrefix, &c.Redis.KeyPrefix)
		if f.Redis.DB != nil {
			c.Redis.DB = *f.Redis.DB
		}
	}
	if f.Storage != nil {
		str(f.Storage.Driver, &c.Storage.Driver)
	}
	if f.HTTP != nil {
		positive(f.HTTP.Port, &c.HTTP.Port)
		str(f.HTTP.Host, &c.HTTP.Host)
		duration("http.read_timeout", f.HTTP.ReadTimeout, &c.HTTP.ReadTimeout)
		duration("http.write_timeout", f.HTTP.WriteTimeout, &c.HTTP.WriteTimeout)
	}
	if f.WebSocket != nil {
		duration("websocket.ping_interval", f.WebSocket.PingInterval, &c.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.WebSocket.ReadTimeout, &c.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WebSocket.WriteTimeout, &c.WebSocket.WriteTimeout)
		positive(f.WebSocket.BufferSize, &c.WebSocket.BufferSize)
		if f.WebSocket.MaxMessageSize > 0 {
			c.WebSocket.MaxMessageSize = f.WebSocket.MaxMessageSize
		}
	}
	if f.Chat != nil {
		positive(f.Chat.HistoryLimit, &c.Chat.HistoryLimit)
		positive(f.Chat.SearchLimit, &c.Chat.SearchLimit)
		duration("chat.store_timeout", f.Chat.StoreTimeout, &c.Chat.StoreTimeout)
		if f.Chat.RateLimit != nil {
			c.Chat.RateLimit = *f.Chat.RateLimit
		}
		positive(f.Chat.RateBurst, &c.Chat.RateBurst)
	}
	if f.Logging != nil {
		str(f.Logging.Level, &c.Logging.Level)
		str(f.Logging.Format, &c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in %s: %w", path, errors.Join(errs...))
	}
	return nil
}

// LoadConfigWithPrecedence layers defaults, then the environment, then the
// YAML file at path if one is given, and validates the result.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
