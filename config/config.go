package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Import     ImportConfig     `yaml:"import"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int     `yaml:"port"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds the bearer token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	AdminRole string `yaml:"admin_role"`
}

// ImportConfig bounds tabular uploads.
type ImportConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxRows        int    `yaml:"max_rows"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WebSocketConfig holds control channel connection settings.
type WebSocketConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	PongTimeoutSeconds  int `yaml:"pong_timeout_seconds"`
	MaxMessageSize      int `yaml:"max_message_size"`
	SendBufferSize      int `yaml:"send_buffer_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig holds the InfluxDB settings for fan speed history.
type TelemetryConfig struct {
	Enabled              bool   `yaml:"enabled"`
	URL                  string `yaml:"url"`
	Token                string `yaml:"token"`
	Org                  string `yaml:"org"`
	Bucket               string `yaml:"bucket"`
	BatchSize            int    `yaml:"batch_size"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
}

// LoggingConfig holds the logrus settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the configuration from the given path, applies environment
// overrides and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			log.Warnf("ignoring invalid SERVER_PORT %q", v)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 15
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}

	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "SuperAdmin"
	}

	if c.Import.UploadDir == "" {
		c.Import.UploadDir = os.TempDir()
	}
	if c.Import.MaxUploadBytes <= 0 {
		c.Import.MaxUploadBytes = 10 << 20
	}
	if c.Import.MaxRows <= 0 {
		c.Import.MaxRows = 5000
	}
	if c.Import.TimeoutSeconds <= 0 {
		c.Import.TimeoutSeconds = 60
	}

	if c.WebSocket.PingIntervalSeconds <= 0 {
		c.WebSocket.PingIntervalSeconds = 30
	}
	if c.WebSocket.PongTimeoutSeconds <= 0 {
		c.WebSocket.PongTimeoutSeconds = 10
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		c.WebSocket.MaxMessageSize = 64 << 10
	}
	if c.WebSocket.SendBufferSize <= 0 {
		c.WebSocket.SendBufferSize = 256
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		log.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		c.WorkerPool.Size = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 64
	}

	if c.Telemetry.BatchSize <= 0 {
		c.Telemetry.BatchSize = 100
	}
	if c.Telemetry.FlushIntervalSeconds <= 0 {
		c.Telemetry.FlushIntervalSeconds = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 7
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use postgres or sqlite)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required (or set DATABASE_DSN)")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Telemetry.Enabled && (c.Telemetry.URL == "" || c.Telemetry.Bucket == "") {
		errs = append(errs, "telemetry.url and telemetry.bucket are required when telemetry is enabled")
	}
	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

// CacheTTL returns the GET response cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSeconds) * time.Second
}

// Timeout returns the wall time bound for one import request.
func (i ImportConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}
