// Package config loads service configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `envconfig:"PORTAL_HOST" yaml:"host"`
	Port            int           `envconfig:"PORT" yaml:"port"`
	ReadTimeout     time.Duration `envconfig:"PORTAL_READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout    time.Duration `envconfig:"PORTAL_WRITE_TIMEOUT" yaml:"write_timeout"`
	IdleTimeout     time.Duration `envconfig:"PORTAL_IDLE_TIMEOUT" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `envconfig:"PORTAL_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" yaml:"jwt_secret"`
}

// RealtimeConfig tunes the websocket/SSE broadcast subsystem.
type RealtimeConfig struct {
	PingInterval   time.Duration `envconfig:"REALTIME_PING_INTERVAL" yaml:"ping_interval"`
	SendBuffer     int           `envconfig:"REALTIME_SEND_BUFFER" yaml:"send_buffer"`
	WriteTimeout   time.Duration `envconfig:"REALTIME_WRITE_TIMEOUT" yaml:"write_timeout"`
	MaxMessageSize int64         `envconfig:"REALTIME_MAX_MESSAGE_SIZE" yaml:"max_message_size"`
	UpdateRate     float64       `envconfig:"REALTIME_UPDATE_RATE" yaml:"update_rate"` // 0 = unlimited
	UpdateBurst    int           `envconfig:"REALTIME_UPDATE_BURST" yaml:"update_burst"`
	PushOnWrite    bool          `envconfig:"REALTIME_PUSH_ON_WRITE" yaml:"push_on_write"`
	AllowedOrigins string        `envconfig:"REALTIME_ALLOWED_ORIGINS" yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" yaml:"url"` // empty = in-memory store
}

type RedisConfig struct {
	URL     string `envconfig:"REDIS_URL" yaml:"url"` // empty = single-instance broadcast
	Channel string `envconfig:"REDIS_UPDATES_CHANNEL" yaml:"channel"`
}

// KafkaConfig selects the Kafka relay when Redis is not configured.
type KafkaConfig struct {
	Brokers string `envconfig:"KAFKA_BROKERS" yaml:"brokers"` // comma separated
	Topic   string `envconfig:"KAFKA_TOPIC" yaml:"topic"`
	Version string `envconfig:"KAFKA_VERSION" yaml:"version"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LOG_FORMAT" yaml:"format"`
	Output string `envconfig:"LOG_OUTPUT" yaml:"output"`
	File   string `envconfig:"LOG_FILE" yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"METRICS_PATH" yaml:"path"`
}

// Load reads an optional .env file, then applies defaults, the YAML file at
// configPath (if any) and finally environment variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration using PORTAL_CONFIG as the optional file path.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("PORTAL_CONFIG"))
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Server = ServerConfig{
		Host:            "0.0.0.0",
		Port:            5000,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0, // a server-wide write deadline would cut /sse streams
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}

	cfg.Realtime = RealtimeConfig{
		PingInterval:   30 * time.Second,
		SendBuffer:     256,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
		UpdateRate:     20,
		UpdateBurst:    40,
		PushOnWrite:    true,
		AllowedOrigins: "*",
	}

	cfg.Redis = RedisConfig{
		Channel: "portal:updates",
	}

	cfg.Kafka = KafkaConfig{
		Topic:   "portal.updates",
		Version: "2.8.0",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}

	cfg.Metrics = MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if c.Realtime.PingInterval <= 0 {
		errs = append(errs, "realtime ping_interval must be positive")
	}
	if c.Realtime.SendBuffer < 1 {
		errs = append(errs, "realtime send_buffer must be positive")
	}
	if c.Realtime.WriteTimeout <= 0 {
		errs = append(errs, "realtime write_timeout must be positive")
	}
	if c.Realtime.MaxMessageSize <= 0 {
		errs = append(errs, "realtime max_message_size must be positive")
	}
	if c.Realtime.UpdateRate < 0 {
		errs = append(errs, "realtime update_rate must not be negative")
	}
	if c.Realtime.UpdateRate > 0 && c.Realtime.UpdateBurst < 1 {
		errs = append(errs, "realtime update_burst must be positive when update_rate is set")
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json, text, or console)", c.Log.Format))
	}
	if c.Log.Output == "file" && c.Log.File == "" {
		errs = append(errs, "log file path is required when log output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Origins splits AllowedOrigins into its entries. A single "*" allows any origin.
func (r RealtimeConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(r.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
