package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Sync      SyncConfig      `yaml:"sync"`
	Platforms PlatformsConfig `yaml:"platforms"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	// DSN, when set, takes precedence over the individual fields
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for bulk refresh requests
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	GroupID        string        `yaml:"group_id"`
	Enabled        bool          `yaml:"enabled"`
	BatchSize      int           `yaml:"batch_size"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// SyncConfig holds the bulk score recomputation worker configuration
type SyncConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Concurrency     int           `yaml:"concurrency"`
	UserTimeout     time.Duration `yaml:"user_timeout"`
	Enabled         bool          `yaml:"enabled"`
	WarmCacheOnBoot bool          `yaml:"warm_cache_on_boot"`
}

// PlatformsConfig holds settings shared by the platform adapters
type PlatformsConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	LeetCodeURL   string        `yaml:"leetcode_url"`
	CodeforcesURL string        `yaml:"codeforces_url"`
	CodeChefURL   string        `yaml:"codechef_url"`
	HackerRankURL string        `yaml:"hackerrank_url"`
}

// Rate limit backends
const (
	RateLimitBackendLocal = "local"
	RateLimitBackendRedis = "redis"
)

// RateLimitConfig configures the bulk refresh guard
type RateLimitConfig struct {
	// Backend is "local" (per process) or "redis" (shared across instances)
	Backend string                   `yaml:"backend"`
	Rules   map[string]RateLimitRule `yaml:"rules"`
}

// RateLimitRule allows Requests calls per Window for one platform
type RateLimitRule struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Load reads configuration from a YAML file
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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.RateLimit.Backend {
	case RateLimitBackendLocal, RateLimitBackendRedis:
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == RateLimitBackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("rate limit backend redis requires redis.enabled")
	}
	for name, rule := range c.RateLimit.Rules {
		if rule.Requests <= 0 || rule.Window <= 0 {
			return fmt.Errorf("rate limit rule %q: requests and window must be positive", name)
		}
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// a refresh walks four platforms sequentially, each bounded by the platform timeout
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
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
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "profilescores"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
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
		c.Kafka.Topic = "profile-refresh"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "profile-refresh-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 20
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RefreshTimeout == 0 {
		c.Kafka.RefreshTimeout = 2 * time.Minute
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 1 * time.Hour
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 8
	}
	if c.Sync.UserTimeout == 0 {
		c.Sync.UserTimeout = 10 * time.Second
	}

	// Platform defaults
	if c.Platforms.Timeout == 0 {
		c.Platforms.Timeout = 10 * time.Second
	}
	if c.Platforms.UserAgent == "" {
		c.Platforms.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Platforms.LeetCodeURL == "" {
		c.Platforms.LeetCodeURL = "https://leetcode.com"
	}
	if c.Platforms.CodeforcesURL == "" {
		c.Platforms.CodeforcesURL = "https://codeforces.com"
	}
	if c.Platforms.CodeChefURL == "" {
		c.Platforms.CodeChefURL = "https://www.codechef.com"
	}
	if c.Platforms.HackerRankURL == "" {
		c.Platforms.HackerRankURL = "https://www.hackerrank.com"
	}

	// Rate limit defaults
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = RateLimitBackendLocal
	}
	if c.RateLimit.Rules == nil {
		c.RateLimit.Rules = map[string]RateLimitRule{
			"leetcode": {Requests: 30, Window: time.Minute},
		}
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Sync.Enabled = true
	cfg.Sync.WarmCacheOnBoot = true
	return cfg
}
