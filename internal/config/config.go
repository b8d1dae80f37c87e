package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Stream    StreamConfig
	Sync      SyncConfig
	Scan      ScanConfig
	Slack     SlackConfig
	Server    ServerConfig
	Retention RetentionConfig

	// SLAPolicyPath points at the per-category SLA window file. Required:
	// there are no built-in window durations.
	SLAPolicyPath string

	// SecretPrefix is the env prefix of the local secret provider.
	SecretPrefix string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// StreamConfig holds change-stream consumer settings.
type StreamConfig struct {
	Name      string
	Group     string
	Consumer  string
	BatchSize int
	Block     time.Duration
}

// SyncConfig holds external sync engine settings.
type SyncConfig struct {
	SecretName    string
	CredentialTTL time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// ScanConfig holds SLA breach scanner settings.
type ScanConfig struct {
	Interval        time.Duration
	BatchSize       int
	NotifyPerSecond float64
	AgentStuckAfter time.Duration
}

// SlackConfig holds the breach-alert Slack sink settings. Optional: the sink
// is skipped when the token is empty.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RetentionConfig holds the agent-state purge cadence.
type RetentionConfig struct {
	PurgeInterval time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("CASEBRIDGE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CASEBRIDGE_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CASEBRIDGE_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	streamBatch, err := getEnvInt("CASEBRIDGE_STREAM_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	streamBlock, err := getEnvDuration("CASEBRIDGE_STREAM_BLOCK", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	credTTL, err := getEnvDuration("CASEBRIDGE_SYNC_CREDENTIAL_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxAttempts, err := getEnvInt("CASEBRIDGE_SYNC_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	baseBackoff, err := getEnvDuration("CASEBRIDGE_SYNC_BASE_BACKOFF", 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxBackoff, err := getEnvDuration("CASEBRIDGE_SYNC_MAX_BACKOFF", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	scanInterval, err := getEnvDuration("CASEBRIDGE_SCAN_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	scanBatch, err := getEnvInt("CASEBRIDGE_SCAN_BATCH_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	notifyRate, err := getEnvFloat("CASEBRIDGE_SCAN_NOTIFY_PER_SECOND", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	agentStuckAfter, err := getEnvDuration("CASEBRIDGE_SCAN_AGENT_STUCK_AFTER", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CASEBRIDGE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CASEBRIDGE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	purgeInterval, err := getEnvDuration("CASEBRIDGE_RETENTION_PURGE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("CASEBRIDGE_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CASEBRIDGE_DB_USER", "casebridge"),
			Password: getEnv("CASEBRIDGE_DB_PASSWORD", ""),
			DBName:   getEnv("CASEBRIDGE_DB_NAME", "casebridge_dev"),
			SSLMode:  getEnv("CASEBRIDGE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CASEBRIDGE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CASEBRIDGE_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Stream: StreamConfig{
			Name:      getEnv("CASEBRIDGE_STREAM_NAME", "changes:contact-center"),
			Group:     getEnv("CASEBRIDGE_STREAM_GROUP", "casebridge"),
			Consumer:  getEnv("CASEBRIDGE_STREAM_CONSUMER", "casebridge-1"),
			BatchSize: streamBatch,
			Block:     streamBlock,
		},
		Sync: SyncConfig{
			SecretName:    getEnv("CASEBRIDGE_SYNC_SECRET_NAME", "case-system/credentials"),
			CredentialTTL: credTTL,
			MaxAttempts:   maxAttempts,
			BaseBackoff:   baseBackoff,
			MaxBackoff:    maxBackoff,
		},
		Scan: ScanConfig{
			Interval:        scanInterval,
			BatchSize:       scanBatch,
			NotifyPerSecond: notifyRate,
			AgentStuckAfter: agentStuckAfter,
		},
		Slack: SlackConfig{
			BotToken: getEnv("CASEBRIDGE_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("CASEBRIDGE_SLACK_CHANNEL", "#contact-center-alerts"),
		},
		Server: ServerConfig{
			Addr:         getEnv("CASEBRIDGE_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		Retention: RetentionConfig{
			PurgeInterval: purgeInterval,
		},
		SLAPolicyPath: getEnv("CASEBRIDGE_SLA_POLICY_PATH", ""),
		SecretPrefix:  getEnv("CASEBRIDGE_SECRET_PREFIX", "CASEBRIDGE_SECRET_"),
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.SLAPolicyPath == "" {
		return errors.New("CASEBRIDGE_SLA_POLICY_PATH is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("CASEBRIDGE_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CASEBRIDGE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Stream.BatchSize < 1 {
		return fmt.Errorf("CASEBRIDGE_STREAM_BATCH_SIZE must be >= 1, got %d", c.Stream.BatchSize)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("CASEBRIDGE_SYNC_MAX_ATTEMPTS must be >= 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.BaseBackoff <= 0 {
		return fmt.Errorf("CASEBRIDGE_SYNC_BASE_BACKOFF must be positive, got %s", c.Sync.BaseBackoff)
	}
	if c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("CASEBRIDGE_SYNC_MAX_BACKOFF must be >= base backoff, got %s", c.Sync.MaxBackoff)
	}
	if c.Scan.Interval <= 0 {
		return fmt.Errorf("CASEBRIDGE_SCAN_INTERVAL must be positive, got %s", c.Scan.Interval)
	}
	if c.Scan.BatchSize < 1 {
		return fmt.Errorf("CASEBRIDGE_SCAN_BATCH_SIZE must be >= 1, got %d", c.Scan.BatchSize)
	}
	if c.Scan.NotifyPerSecond <= 0 {
		return fmt.Errorf("CASEBRIDGE_SCAN_NOTIFY_PER_SECOND must be positive, got %g", c.Scan.NotifyPerSecond)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CASEBRIDGE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CASEBRIDGE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}
