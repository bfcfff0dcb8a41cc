package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SCRIMS_"

// Config represents the application configuration
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Store         StoreConfig        `yaml:"store"`
	EventBus      EventBusConfig     `yaml:"event_bus"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Auth          AuthConfig         `yaml:"auth"`
	Notifications NotificationConfig `yaml:"notifications"`
	Redis         RedisConfig        `yaml:"redis"`
	Postgres      PostgresConfig     `yaml:"postgres"`
	Kafka         KafkaConfig        `yaml:"kafka"`
	WebSocket     WebSocketConfig    `yaml:"websocket"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig holds the record store location
type StoreConfig struct {
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
}

// EventBusConfig sizes the domain event bus
type EventBusConfig struct {
	Workers   int `yaml:"workers" env:"EVENT_BUS_WORKERS"`
	QueueSize int `yaml:"queue_size" env:"EVENT_BUS_QUEUE_SIZE"`
}

// SchedulerConfig holds auto-start and reminder worker configuration
type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	Interval       time.Duration `yaml:"interval" env:"SCHEDULER_INTERVAL"`
	ReminderWindow time.Duration `yaml:"reminder_window" env:"SCHEDULER_REMINDER_WINDOW"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

// NotificationConfig selects where outbound notifications go
type NotificationConfig struct {
	// Sink is "log" or "redis"
	Sink        string `yaml:"sink" env:"NOTIFICATIONS_SINK"`
	Concurrency int    `yaml:"concurrency"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueKey     string        `yaml:"queue_key"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" env:"POSTGRES_ENABLED"`
	Host            string        `yaml:"host" env:"POSTGRES_HOST"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user" env:"POSTGRES_USER"`
	Password        string        `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" env:"POSTGRES_DATABASE"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers        []string      `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic          string        `yaml:"topic" env:"KAFKA_TOPIC"`
	FlushFrequency time.Duration `yaml:"flush_frequency"`
	FlushMessages  int           `yaml:"flush_messages"`
}

// WebSocketConfig holds realtime feed configuration
type WebSocketConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

// Load reads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// ApplyEnv overrides fields from SCRIMS_* environment variables
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	// Store defaults
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data"
	}

	// Event bus defaults
	if c.EventBus.Workers == 0 {
		c.EventBus.Workers = 4
	}
	if c.EventBus.QueueSize == 0 {
		c.EventBus.QueueSize = 1024
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 60 * time.Second
	}
	if c.Scheduler.ReminderWindow == 0 {
		c.Scheduler.ReminderWindow = 2 * time.Hour
	}

	// Notification defaults
	if c.Notifications.Sink == "" {
		c.Notifications.Sink = "log"
	}
	if c.Notifications.Concurrency == 0 {
		c.Notifications.Concurrency = 8
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "scrims:notifications"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "scrim-events"
	}
	if c.Kafka.FlushFrequency == 0 {
		c.Kafka.FlushFrequency = 100 * time.Millisecond
	}
	if c.Kafka.FlushMessages == 0 {
		c.Kafka.FlushMessages = 100
	}

	// WebSocket defaults
	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = 256
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Scheduler.Enabled = true
	return cfg
}
