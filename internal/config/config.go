// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/jcmexdev/order-placement/internal/pkg/resilience"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Telemetry holds the OTLP endpoints. An empty endpoint disables that signal.
type Telemetry struct {
	Environment   string
	TraceEndpoint string
	LogEndpoint   string
	LogURLPath    string
}

// Config is the order service configuration.
type Config struct {
	ServiceName     string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Telemetry       Telemetry

	InventoryBaseURL  string
	InventoryPolicies resilience.Policies

	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	KafkaBrokers   string
	PublishTimeout time.Duration

	RedisAddr      string
	IdempotencyTTL time.Duration
}

// Load reads the order service configuration. All parse errors are
// reported together.
func Load() (*Config, error) {
	var errs error
	p := parser{errs: &errs}

	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", "order-service"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Telemetry:       loadTelemetry(),

		InventoryBaseURL: strings.TrimRight(getEnv("INVENTORY_BASE_URL", "http://localhost:8082"), "/"),
		InventoryPolicies: resilience.Policies{
			Timeout: resilience.TimeoutPolicy{
				Enabled:  p.boolean("INVENTORY_TIMEOUT_ENABLED", true),
				Duration: p.duration("INVENTORY_TIMEOUT", 2*time.Second),
			},
			Retry: resilience.RetryPolicy{
				Enabled:         p.boolean("INVENTORY_RETRY_ENABLED", true),
				MaxAttempts:     p.integer("INVENTORY_RETRY_MAX_ATTEMPTS", 3),
				InitialInterval: p.duration("INVENTORY_RETRY_INITIAL_INTERVAL", 100*time.Millisecond),
				MaxInterval:     p.duration("INVENTORY_RETRY_MAX_INTERVAL", time.Second),
				Multiplier:      p.float("INVENTORY_RETRY_MULTIPLIER", 2),
			},
			Breaker: resilience.BreakerPolicy{
				Enabled:             p.boolean("INVENTORY_BREAKER_ENABLED", true),
				Name:                "inventory",
				ConsecutiveFailures: uint32(p.integer("INVENTORY_BREAKER_CONSECUTIVE_FAILURES", 5)),
				FailureRatio:        p.float("INVENTORY_BREAKER_FAILURE_RATIO", 0.5),
				MinRequests:         uint32(p.integer("INVENTORY_BREAKER_MIN_REQUESTS", 10)),
				Window:              p.duration("INVENTORY_BREAKER_WINDOW", time.Minute),
				Cooldown:            p.duration("INVENTORY_BREAKER_COOLDOWN", 30*time.Second),
				HalfOpenProbes:      uint32(p.integer("INVENTORY_BREAKER_HALF_OPEN_PROBES", 3)),
			},
		},

		StoreDriver: strings.ToLower(getEnv("ORDER_STORE_DRIVER", DriverSQLite)),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/orders.db"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		PublishTimeout: p.duration("PUBLISH_TIMEOUT", 5*time.Second),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
	}

	errs = multierr.Append(errs, cfg.validate())
	if errs != nil {
		return nil, fmt.Errorf("config: %w", errs)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs error
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = multierr.Append(errs, fmt.Errorf("SQLITE_PATH is required for the sqlite store"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = multierr.Append(errs, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("ORDER_STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.StoreDriver))
	}

	if c.InventoryBaseURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("INVENTORY_BASE_URL is required"))
	}
	pol := c.InventoryPolicies
	if pol.Timeout.Enabled && pol.Timeout.Duration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("INVENTORY_TIMEOUT must be positive"))
	}
	if pol.Retry.Enabled && pol.Retry.MaxAttempts < 1 {
		errs = multierr.Append(errs, fmt.Errorf("INVENTORY_RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if pol.Breaker.FailureRatio < 0 || pol.Breaker.FailureRatio > 1 {
		errs = multierr.Append(errs, fmt.Errorf("INVENTORY_BREAKER_FAILURE_RATIO must be within [0, 1]"))
	}
	if pol.Breaker.Enabled && pol.Breaker.ConsecutiveFailures == 0 && pol.Breaker.FailureRatio == 0 {
		errs = multierr.Append(errs, fmt.Errorf("circuit breaker enabled without a trip criterion"))
	}
	return errs
}

// InventoryConfig configures the local inventory stub.
type InventoryConfig struct {
	ServiceName string
	HTTPAddr    string
	Telemetry   Telemetry

	// SeedStock is "sku=qty,sku=qty".
	SeedStock string
}

func LoadInventory() (*InventoryConfig, error) {
	return &InventoryConfig{
		ServiceName: getEnv("SERVICE_NAME", "inventory-service"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8082"),
		Telemetry:   loadTelemetry(),
		SeedStock:   getEnv("INVENTORY_SEED", "iphone_13=100,iphone_13_red=0"),
	}, nil
}

// NotificationConfig configures the order placed consumer.
type NotificationConfig struct {
	ServiceName  string
	Telemetry    Telemetry
	KafkaBrokers string
	GroupID      string
}

func LoadNotification() (*NotificationConfig, error) {
	cfg := &NotificationConfig{
		ServiceName:  getEnv("SERVICE_NAME", "notification-service"),
		Telemetry:    loadTelemetry(),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		GroupID:      getEnv("KAFKA_GROUP_ID", "notificationId"),
	}
	if strings.TrimSpace(cfg.KafkaBrokers) == "" {
		return nil, fmt.Errorf("config: KAFKA_BROKERS environment variable is required")
	}
	return cfg, nil
}

func loadTelemetry() Telemetry {
	return Telemetry{
		Environment:   getEnv("ENVIRONMENT", "development"),
		TraceEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogEndpoint:   os.Getenv("OTEL_LOGS_ENDPOINT"),
		LogURLPath:    getEnv("OTEL_LOGS_PATH", "/v1/logs"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser reads typed variables, collecting failures instead of stopping at
// the first one.
type parser struct {
	errs *error
}

func (p parser) fail(key, value string, err error) {
	*p.errs = multierr.Append(*p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p parser) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	if n < 0 {
		p.fail(key, v, fmt.Errorf("must not be negative"))
		return fallback
	}
	return n
}

func (p parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p parser) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}
