// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Business calendar: fixed offset from UTC in minutes. Stores operating
	// on IST run at +330.
	BusinessUTCOffsetMinutes int `mapstructure:"businessutcoffsetminutes"`

	// File paths
	StoragePath string `mapstructure:"storagepath"`
	TenantsFile string `mapstructure:"tenantsfile"`
	CacheDBPath string `mapstructure:"-"` // Derived from StoragePath

	// Cache settings
	CacheTTLMillis       int `mapstructure:"cachettlmillis"`
	CacheSweepSeconds    int `mapstructure:"cachesweepseconds"`
	MetricWorkerCount    int `mapstructure:"metricworkercount"`
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "brandpulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("businessutcoffsetminutes", 330)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("tenantsfile", "tenants.yml")
		v.SetDefault("cachettlmillis", 60000)
		v.SetDefault("cachesweepseconds", 300)
		v.SetDefault("metricworkercount", 4)
		v.SetDefault("dbmaxopenconns", 4)
		v.SetDefault("dbmaxidleconns", 2)
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)

		v.BindEnv("appname", "BRANDPULSE_APP_NAME")
		v.BindEnv("appport", "BRANDPULSE_APP_PORT")
		v.BindEnv("environment", "BRANDPULSE_ENV")
		v.BindEnv("loglevel", "BRANDPULSE_LOG_LEVEL")
		v.BindEnv("businessutcoffsetminutes", "BRANDPULSE_BUSINESS_UTC_OFFSET_MINUTES")
		v.BindEnv("storagepath", "BRANDPULSE_STORAGE_PATH")
		v.BindEnv("tenantsfile", "BRANDPULSE_TENANTS_FILE")
		v.BindEnv("cachettlmillis", "BRANDPULSE_CACHE_TTL_MILLIS")
		v.BindEnv("cachesweepseconds", "BRANDPULSE_CACHE_SWEEP_SECONDS")
		v.BindEnv("metricworkercount", "BRANDPULSE_METRIC_WORKER_COUNT")
		v.BindEnv("dbmaxopenconns", "BRANDPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "BRANDPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("logsdir", "BRANDPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "BRANDPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "BRANDPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "BRANDPULSE_LOGS_MAX_AGE_IN_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.CacheDBPath = filepath.Join(cfg.StoragePath,
			fmt.Sprintf("%s-cache-%s.db", cfg.AppName, cfg.Environment))
	})
	return cfg
}

// Reset clears the singleton so tests can rebuild it from a fresh
// environment.
func Reset() {
	cfg = nil
	once = sync.Once{}
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	// A day-offset beyond +-14h has no inhabited timezone behind it.
	if c.BusinessUTCOffsetMinutes < -14*60 || c.BusinessUTCOffsetMinutes > 14*60 {
		return fmt.Errorf("business UTC offset out of range: %d", c.BusinessUTCOffsetMinutes)
	}
	if c.CacheTTLMillis <= 0 {
		return fmt.Errorf("cache TTL must be positive: %d", c.CacheTTLMillis)
	}
	if c.MetricWorkerCount <= 0 {
		return fmt.Errorf("metric worker count must be positive: %d", c.MetricWorkerCount)
	}
	return nil
}

// CacheTTL returns the in-process cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMillis) * time.Millisecond
}

// CacheSweepInterval returns how often expired cache entries are purged.
func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.CacheSweepSeconds) * time.Second
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}
