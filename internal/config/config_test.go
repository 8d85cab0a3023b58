package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "ORDER_UNPAID_TTL", "BCRYPT_COST", "KAFKA_BROKERS", "PROJECTOR_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.UnpaidTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 8, cfg.ProjectorWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("ORDER_UNPAID_TTL", "90s")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("PROJECTOR_WORKERS", "nope")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 90*time.Second, cfg.UnpaidTTL)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 8, cfg.ProjectorWorkers, "invalid ints fall back to the default")
}
