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

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	AdminAPIKey string   `mapstructure:"adminapikey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"`
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Webhook relay
	WebhookURL            string `mapstructure:"webhookurl"`
	WebhookTimeoutSeconds int    `mapstructure:"webhooktimeoutseconds"`
	WebhookResendWorkers  int    `mapstructure:"webhookresendworkers"`

	// Reporting
	ReportDefaultDays int `mapstructure:"reportdefaultdays"`
	ReportMaxDays     int `mapstructure:"reportmaxdays"`

	// Job scheduling settings
	JobIntervalSeconds       int `mapstructure:"jobintervalseconds"`
	ReconcileIntervalSeconds int `mapstructure:"reconcileintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "leadpulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("webhooktimeoutseconds", 10)
		v.SetDefault("webhookresendworkers", 1)
		v.SetDefault("reportdefaultdays", 30)
		v.SetDefault("reportmaxdays", 365)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("reconcileintervalseconds", 300)

		v.BindEnv("appname", "LEADPULSE_APP_NAME")
		v.BindEnv("appport", "LEADPULSE_APP_PORT")
		v.BindEnv("environment", "LEADPULSE_ENV")
		v.BindEnv("loglevel", "LEADPULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "LEADPULSE_PRIVATE_KEY")
		v.BindEnv("adminapikey", "LEADPULSE_ADMIN_API_KEY")
		v.BindEnv("storagepath", "LEADPULSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "LEADPULSE_GEO_DB_PATH")
		v.BindEnv("publicdir", "LEADPULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "LEADPULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "LEADPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "LEADPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "LEADPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "LEADPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "LEADPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "LEADPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("webhookurl", "LEADPULSE_WEBHOOK_URL")
		v.BindEnv("webhooktimeoutseconds", "LEADPULSE_WEBHOOK_TIMEOUT_SECONDS")
		v.BindEnv("webhookresendworkers", "LEADPULSE_WEBHOOK_RESEND_WORKERS")
		v.BindEnv("reportdefaultdays", "LEADPULSE_REPORT_DEFAULT_DAYS")
		v.BindEnv("reportmaxdays", "LEADPULSE_REPORT_MAX_DAYS")
		v.BindEnv("jobintervalseconds", "LEADPULSE_JOB_INTERVAL_SECONDS")
		v.BindEnv("reconcileintervalseconds", "LEADPULSE_RECONCILE_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique LEADPULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
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
	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.WebhookTimeoutSeconds <= 0 {
		return fmt.Errorf("webhook timeout must be positive, got %d", c.WebhookTimeoutSeconds)
	}
	if c.WebhookResendWorkers <= 0 {
		return fmt.Errorf("webhook resend workers must be positive, got %d", c.WebhookResendWorkers)
	}
	if c.ReportDefaultDays <= 0 || c.ReportMaxDays < c.ReportDefaultDays {
		return fmt.Errorf("invalid report window: default=%d max=%d", c.ReportDefaultDays, c.ReportMaxDays)
	}
	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
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

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetWebhookTimeout returns the per-request timeout for lead webhook deliveries.
func (c *Config) GetWebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// An explicit setting wins; otherwise tests get 1 and everything else 10.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
