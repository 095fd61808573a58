package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GDX_AUTH_URL", "https://gdx.example.test/token")
	t.Setenv("CONSUMER_KEY", "ck")
	t.Setenv("CONSUMER_SECRET", "cs")
	t.Setenv("AGENT_ID", "agent-1")
	t.Setenv("DEPROC_API_URL", "https://deproc.example.test/profile")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "personal_data", cfg.Database.Table)
	assert.Equal(t, PolicyIsolate, cfg.Database.BrokenConnPolicy)
	assert.Equal(t, 10*time.Second, cfg.Authority.Timeout)
	assert.Equal(t, "MY_APP", cfg.Server.DefaultAppID)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "mtoken-db-v2")
	t.Setenv("DB_BROKEN_CONN_POLICY", "restart")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PROFILE_TIMEOUT", "2s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mtoken-db-v2", cfg.Database.Host)
	assert.Equal(t, PolicyRestart, cfg.Database.BrokenConnPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Profile.Timeout)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.Server.TrustedProxies)
}

func TestLoadRejectsMissingUpstreamSettings(t *testing.T) {
	t.Setenv("GDX_AUTH_URL", "")
	t.Setenv("DEPROC_API_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GDX_AUTH_URL is required")
	assert.Contains(t, err.Error(), "DEPROC_API_URL is required")
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_BROKEN_CONN_POLICY", "exit")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_BROKEN_CONN_POLICY")
}

func TestLoadRejectsNonPositiveHealthInterval(t *testing.T) {
	for _, v := range []string{"0s", "-5s"} {
		t.Run(v, func(t *testing.T) {
			setRequired(t)
			t.Setenv("DB_HEALTH_INTERVAL", v)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "DB_HEALTH_INTERVAL must be positive")
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := Database{Host: "db", Port: 5433, User: "app", Password: "p@ss", Name: "identity", SSLMode: "require"}
	assert.Equal(t, "postgres://app:p%40ss@db:5433/identity?sslmode=require", db.DSN())
}
