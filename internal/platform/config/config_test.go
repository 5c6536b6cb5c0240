package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "remote", cfg.Policy.Backend)
	assert.Equal(t, 5, cfg.Risk.Weight)
	assert.Equal(t, 30, cfg.Risk.MediumThreshold)
	assert.Equal(t, 60, cfg.Risk.HighThreshold)
	assert.Equal(t, 80, cfg.Risk.CriticalThreshold)
	assert.Equal(t, 1000, cfg.RateLimit.Low)
	assert.Equal(t, 200, cfg.RateLimit.Medium)
	assert.Equal(t, 20, cfg.RateLimit.High)
	assert.Equal(t, 10, cfg.RateLimit.DefaultCap)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5*time.Second, cfg.Policy.CacheTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Tenants)
}

func TestFromEnvParsesTenants(t *testing.T) {
	t.Setenv("AEGIS_TENANTS", "acme:enterprise:true, globex:standard ,broken,:noplan")

	cfg := FromEnv()
	require.Len(t, cfg.Tenants, 2)
	assert.Equal(t, Tenant{Plan: "enterprise", Throttled: true}, cfg.Tenants["acme"])
	assert.Equal(t, Tenant{Plan: "standard"}, cfg.Tenants["globex"])
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_ADDR", ":9090")
	t.Setenv("RISK_WEIGHT", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")
	t.Setenv("POLICY_BACKEND", "wasm")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Risk.Weight)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "wasm", cfg.Policy.Backend)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RISK_WEIGHT", "not-a-number")
	t.Setenv("SESSION_TTL", "soon")

	cfg := FromEnv()
	assert.Equal(t, 5, cfg.Risk.Weight)
	assert.Equal(t, 8*time.Hour, cfg.Session.TTL)
}
