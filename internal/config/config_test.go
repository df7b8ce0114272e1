package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "order-service", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "http://localhost:8082", cfg.InventoryBaseURL)

	pol := cfg.InventoryPolicies
	assert.True(t, pol.Timeout.Enabled)
	assert.Equal(t, 2*time.Second, pol.Timeout.Duration)
	assert.Equal(t, 3, pol.Retry.MaxAttempts)
	assert.True(t, pol.Breaker.Enabled)
	assert.Equal(t, "inventory", pol.Breaker.Name)
	assert.EqualValues(t, 5, pol.Breaker.ConsecutiveFailures)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INVENTORY_BASE_URL", "http://inventory:8082/")
	t.Setenv("INVENTORY_TIMEOUT", "750ms")
	t.Setenv("INVENTORY_RETRY_ENABLED", "false")
	t.Setenv("INVENTORY_BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("INVENTORY_BREAKER_COOLDOWN", "5s")
	t.Setenv("ORDER_STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/orders")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://inventory:8082", cfg.InventoryBaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.InventoryPolicies.Timeout.Duration)
	assert.False(t, cfg.InventoryPolicies.Retry.Enabled)
	assert.Equal(t, 0.25, cfg.InventoryPolicies.Breaker.FailureRatio)
	assert.Equal(t, 5*time.Second, cfg.InventoryPolicies.Breaker.Cooldown)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "kafka:9092", cfg.KafkaBrokers)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("INVENTORY_TIMEOUT", "soon")
	t.Setenv("INVENTORY_RETRY_MAX_ATTEMPTS", "-2")
	t.Setenv("ORDER_STORE_DRIVER", "mongo")

	_, err := Load()

	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "INVENTORY_TIMEOUT")
	assert.Contains(t, msg, "INVENTORY_RETRY_MAX_ATTEMPTS")
	assert.Contains(t, msg, "ORDER_STORE_DRIVER")
}

func TestLoad_PostgresNeedsURL(t *testing.T) {
	t.Setenv("ORDER_STORE_DRIVER", "postgres")

	_, err := Load()

	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_BreakerNeedsTripCriterion(t *testing.T) {
	t.Setenv("INVENTORY_BREAKER_CONSECUTIVE_FAILURES", "0")
	t.Setenv("INVENTORY_BREAKER_FAILURE_RATIO", "0")

	_, err := Load()

	assert.ErrorContains(t, err, "trip criterion")
}

func TestLoadNotification(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	_, err := LoadNotification()
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	cfg, err := LoadNotification()
	require.NoError(t, err)
	assert.Equal(t, "notificationId", cfg.GroupID)
}

func TestLoadInventory(t *testing.T) {
	t.Setenv("INVENTORY_SEED", "A1=3")

	cfg, err := LoadInventory()

	require.NoError(t, err)
	assert.Equal(t, ":8082", cfg.HTTPAddr)
	assert.Equal(t, "A1=3", cfg.SeedStock)
}
