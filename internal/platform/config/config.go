package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pstrings "seanav/pkg/platform/strings"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Seaport ambiguity policies.
const (
	AmbiguityFirstMatch = "first-match"
	AmbiguityFailClosed = "fail-closed"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Server   Server
	Storage  Storage
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracking TrackingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"SEANAV_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Storage selects the entity store.
type Storage struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SeedDemo    bool   `env:"SEED_DEMO" envDefault:"false"`
}

// RedisConfig enables the distributed per-person lock when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	LockTTL      time.Duration `env:"REDIS_LOCK_TTL" envDefault:"5s"`
}

// KafkaConfig enables the notification sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic             string   `env:"KAFKA_TOPIC" envDefault:"tracking.events"`
	Partitions        int32    `env:"KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_REPLICATION_FACTOR" envDefault:"1"`
}

// TrackingConfig tunes the reconciliation and statistics core.
type TrackingConfig struct {
	Timezone             string        `env:"TRACKING_TIMEZONE" envDefault:"America/Santiago"`
	ReconcileMaxAttempts int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"5"`
	ReconcileBackoff     time.Duration `env:"RECONCILE_BACKOFF" envDefault:"20ms"`
	SeaportAmbiguity     string        `env:"SEAPORT_AMBIGUITY_POLICY" envDefault:"first-match"`
	NotifyQueueSize      int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
}

// FromEnv loads an optional .env file and parses the environment so main stays lean.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Kafka.Brokers = pstrings.DedupeAndTrim(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Tracking.SeaportAmbiguity {
	case AmbiguityFirstMatch, AmbiguityFailClosed:
	default:
		return fmt.Errorf("unknown seaport ambiguity policy %q", c.Tracking.SeaportAmbiguity)
	}

	if c.Tracking.ReconcileMaxAttempts < 1 {
		return errors.New("RECONCILE_MAX_ATTEMPTS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Tracking.Timezone); err != nil {
		return fmt.Errorf("load timezone %q: %w", c.Tracking.Timezone, err)
	}
	return nil
}
