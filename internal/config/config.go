package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

type ServiceConfig struct {
	Port           string
	DefinitionsDir string
	LogLevel       string
	LogFormat      string
	HTTPTimeout    time.Duration
	GeodatabaseCfg GeodatabaseConfig
	StatisticsCfg  StatisticsConfig
	MLServiceURL   string
}

type GeodatabaseConfig struct {
	Driver     string // postgres or sqlite
	Schema     string
	SQLitePath string
	Postgres   PostgresConfig
}

type PostgresConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Port     string
	SSLMode  string
}

type StatisticsConfig struct {
	Backend         string // ohsome or overpass
	OhsomeURL       string
	OverpassURL     string
	OverpassTimeout time.Duration
}

func New() *ServiceConfig {
	return &ServiceConfig{
		Port:           getEnvOrDefault("PORT", "8080"),
		DefinitionsDir: getEnvOrDefault("DEFINITIONS_DIR", ""),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		HTTPTimeout:    getDurationOrDefault("HTTP_TIMEOUT", 60*time.Second),
		GeodatabaseCfg: GeodatabaseConfig{
			Driver:     getEnvOrDefault("GEODATABASE_DRIVER", "postgres"),
			Schema:     getEnvOrDefault("GEODATABASE_SCHEMA", ""),
			SQLitePath: getEnvOrDefault("SQLITE_PATH", "oqt.sqlite"),
			Postgres: PostgresConfig{
				DBname:   getEnvOrDefault("POSTGRES_DB", "oqt"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
			},
		},
		StatisticsCfg: StatisticsConfig{
			Backend:         getEnvOrDefault("STATISTICS_BACKEND", "ohsome"),
			OhsomeURL:       getEnvOrDefault("OHSOME_API_URL", "https://api.ohsome.org/v1"),
			OverpassURL:     getEnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			OverpassTimeout: getDurationOrDefault("OVERPASS_TIMEOUT", 180*time.Second),
		},
		MLServiceURL: getEnvOrDefault("ML_SERVICE_URL", "http://localhost:8000/predict"),
	}
}

// DSN returns the connection string for the configured driver.
func (c GeodatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.Username, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + c.Postgres.Port,
		Path:     c.Postgres.DBname,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}
	return u.String()
}

// Validate rejects unknown driver and backend names.
func (c *ServiceConfig) Validate() error {
	switch c.GeodatabaseCfg.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown GEODATABASE_DRIVER %q", c.GeodatabaseCfg.Driver)
	}
	switch c.StatisticsCfg.Backend {
	case "ohsome", "overpass":
	default:
		return fmt.Errorf("unknown STATISTICS_BACKEND %q", c.StatisticsCfg.Backend)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
