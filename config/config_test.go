package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMySQL, cfg.StoreDriver)
	assert.Equal(t, 20.0, cfg.DuplicateRadiusMeters)
	assert.Equal(t, 11.0, cfg.HeatmapMaxZoom)
	assert.Equal(t, 14.0, cfg.ClusterMaxZoom)
	assert.Equal(t, 50.0, cfg.ClusterRadiusPixels)
	assert.Equal(t, 15.0, cfg.DisableClusteringAtZoom)
	assert.Equal(t, 25, cfg.HeatmapRadius)
	assert.Equal(t, 15, cfg.HeatmapBlur)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 5, cfg.InsertMaxAttempts)
	assert.Empty(t, cfg.AMQPURL)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DUPLICATE_RADIUS_METERS", "35.5")
	t.Setenv("STORE_TIMEOUT", "2")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("HEATMAP_RADIUS", "not-a-number")

	cfg := Load()
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 35.5, cfg.DuplicateRadiusMeters)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
	assert.Equal(t, 25, cfg.HeatmapRadius)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "postgres" }},
		{"zero radius", func(c *Config) { c.DuplicateRadiusMeters = 0 }},
		{"inverted zoom thresholds", func(c *Config) { c.HeatmapMaxZoom = 15 }},
		{"zero cluster radius", func(c *Config) { c.ClusterRadiusPixels = 0 }},
		{"no insert attempts", func(c *Config) { c.InsertMaxAttempts = 0 }},
		{"zero store timeout", func(c *Config) { c.StoreTimeout = 0 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true&clientFoundRows=true", cfg.MySQLDSN())
}
