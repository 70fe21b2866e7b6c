package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the report map service
type Config struct {
	// Server configuration
	Port            string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Store configuration
	StoreDriver       string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPingMaxWait     time.Duration
	SQLitePath        string
	StoreTimeout      time.Duration
	InsertMaxAttempts int

	// Duplicate guard
	DuplicateRadiusMeters float64

	// Map aggregation
	HeatmapMaxZoom          float64
	ClusterMaxZoom          float64
	ClusterRadiusPixels     float64
	DisableClusteringAtZoom float64
	HeatmapRadius           int
	HeatmapBlur             int

	// RabbitMQ; an empty URL disables publishing
	AMQPURL              string
	AMQPExchange         string
	AMQPReportRoutingKey string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", DriverMySQL)),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBUser:            getEnv("DB_USER", "server"),
		DBPassword:        getEnv("DB_PASSWORD", "secret"),
		DBName:            getEnv("DB_NAME", "cleanapp"),
		DBMaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DBPingMaxWait:     getDurationEnv("DB_PING_MAX_WAIT", 60*time.Second),
		SQLitePath:        getEnv("SQLITE_PATH", "reportmap.db"),
		StoreTimeout:      getDurationEnv("STORE_TIMEOUT", 5*time.Second),
		InsertMaxAttempts: getIntEnv("INSERT_MAX_ATTEMPTS", 5),

		DuplicateRadiusMeters: getFloatEnv("DUPLICATE_RADIUS_METERS", 20),

		HeatmapMaxZoom:          getFloatEnv("HEATMAP_MAX_ZOOM", 11),
		ClusterMaxZoom:          getFloatEnv("CLUSTER_MAX_ZOOM", 14),
		ClusterRadiusPixels:     getFloatEnv("CLUSTER_RADIUS_PIXELS", 50),
		DisableClusteringAtZoom: getFloatEnv("DISABLE_CLUSTERING_AT_ZOOM", 15),
		HeatmapRadius:           getIntEnv("HEATMAP_RADIUS", 25),
		HeatmapBlur:             getIntEnv("HEATMAP_BLUR", 15),

		AMQPURL:              getEnv("AMQP_URL", ""),
		AMQPExchange:         getEnv("AMQP_EXCHANGE", "cleanapp"),
		AMQPReportRoutingKey: getEnv("AMQP_REPORT_ROUTING_KEY", "report.created"),
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DuplicateRadiusMeters <= 0 {
		return fmt.Errorf("DUPLICATE_RADIUS_METERS must be positive, got %v", c.DuplicateRadiusMeters)
	}
	if c.HeatmapMaxZoom >= c.ClusterMaxZoom {
		return fmt.Errorf("HEATMAP_MAX_ZOOM (%v) must be below CLUSTER_MAX_ZOOM (%v)", c.HeatmapMaxZoom, c.ClusterMaxZoom)
	}
	if c.ClusterRadiusPixels <= 0 {
		return fmt.Errorf("CLUSTER_RADIUS_PIXELS must be positive, got %v", c.ClusterRadiusPixels)
	}
	if c.InsertMaxAttempts < 1 {
		return fmt.Errorf("INSERT_MAX_ATTEMPTS must be at least 1, got %d", c.InsertMaxAttempts)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %v", c.StoreTimeout)
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN. parseTime scans created_at into
// time.Time; clientFoundRows makes a no-op UPDATE still count its row.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("5s") or plain seconds ("5").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
