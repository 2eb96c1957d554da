package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers selectable with STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
	Match    MatchConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	StoreDriver string
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// KafkaConfig holds the notification stream configuration. Kafka is off
// when Brokers is empty.
type KafkaConfig struct {
	Brokers     []string
	NotifyTopic string
}

// NotifyConfig sizes the async notification queue.
type NotifyConfig struct {
	QueueSize int
	Workers   int
}

// MatchConfig holds candidate discovery and scoring thresholds.
type MatchConfig struct {
	RadiusKm      float64
	TimeWindow    time.Duration
	PoolMinScore  float64
	GroupMinScore float64
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables. Every malformed
// value is reported, not just the first.
func Load() (*Config, error) {
	e := &env{}
	cfg := &Config{
		Server: ServerConfig{
			Port:            e.str("SERVER_PORT", "8080"),
			ReadTimeout:     e.duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    e.duration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: e.duration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: loadDatabase(e),
		Redis: RedisConfig{
			Addr:       e.str("REDIS_ADDR", "localhost:6379"),
			Password:   e.str("REDIS_PASSWORD", ""),
			DB:         e.int("REDIS_DB", 0),
			SessionTTL: e.duration("REDIS_SESSION_TTL", 24*time.Hour),
		},
		NewRelic: NewRelicConfig{
			AppName:    e.str("NEW_RELIC_APP_NAME", "cabpool"),
			LicenseKey: e.str("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    e.bool("NEW_RELIC_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers:     e.list("KAFKA_BROKERS"),
			NotifyTopic: e.str("KAFKA_NOTIFY_TOPIC", "cabpool.notifications"),
		},
		Notify: NotifyConfig{
			QueueSize: e.int("NOTIFY_QUEUE_SIZE", 1024),
			Workers:   e.int("NOTIFY_WORKERS", 4),
		},
		Match: MatchConfig{
			RadiusKm:      e.float("MATCH_RADIUS_KM", 5),
			TimeWindow:    e.duration("MATCH_TIME_WINDOW", 25*time.Minute),
			PoolMinScore:  e.float("MATCH_POOL_MIN_SCORE", 0),
			GroupMinScore: e.float("MATCH_GROUP_MIN_SCORE", 30),
		},
		Log: LogConfig{
			Level: e.str("LOG_LEVEL", "info"),
		},
	}

	e.check(cfg.validate())
	if err := errors.Join(e.errs...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// LoadDatabase reads only the database section, for tools that need no
// other configuration.
func LoadDatabase() DatabaseConfig {
	return loadDatabase(&env{})
}

func loadDatabase(e *env) DatabaseConfig {
	return DatabaseConfig{
		StoreDriver: e.str("STORE_DRIVER", StoreDriverPostgres),
		Host:        e.str("DB_HOST", "localhost"),
		Port:        e.str("DB_PORT", "5432"),
		User:        e.str("DB_USER", "postgres"),
		Password:    e.str("DB_PASSWORD", "postgres"),
		DBName:      e.str("DB_NAME", "cabpool"),
		SSLMode:     e.str("DB_SSLMODE", "disable"),
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.Database.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.Database.StoreDriver))
	}
	if c.Match.RadiusKm <= 0 {
		errs = append(errs, errors.New("MATCH_RADIUS_KM: must be positive"))
	}
	if c.Match.TimeWindow <= 0 {
		errs = append(errs, errors.New("MATCH_TIME_WINDOW: must be positive"))
	}
	for key, v := range map[string]float64{
		"MATCH_POOL_MIN_SCORE":  c.Match.PoolMinScore,
		"MATCH_GROUP_MIN_SCORE": c.Match.GroupMinScore,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s: must be within [0, 100]", key))
		}
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("NEW_RELIC_LICENSE_KEY: required when NEW_RELIC_ENABLED is set"))
	}
	return errors.Join(errs...)
}

// env reads typed values and records the ones that fail to parse.
type env struct {
	errs []error
}

func (e *env) check(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *env) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *env) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		e.check(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return intVal
}

func (e *env) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.check(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return floatVal
}

func (e *env) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		e.check(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return boolVal
}

func (e *env) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		e.check(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return duration
}

// list splits a comma separated value, dropping empty entries.
func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
