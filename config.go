package dynaform

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig.
const EnvPrefix = "DYNAFORM_"

// Config consolidates settings for the collection manager, record engine and their collaborators.
type Config struct {
	Database     DatabaseConfig     `json:"database" koanf:"database"`
	Query        QueryConfig        `json:"query" koanf:"query"`
	Logging      LoggingConfig      `json:"logging" koanf:"logging"`
	Notification NotificationConfig `json:"notification" koanf:"notification"`
	Events       EventsConfig       `json:"events" koanf:"events"`
	Server       ServerConfig       `json:"server" koanf:"server"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" koanf:"host"`
	Port            int           `json:"port" koanf:"port"`
	Database        string        `json:"database" koanf:"database"`
	Username        string        `json:"username" koanf:"username"`
	Password        string        `json:"password" koanf:"password"`
	SSLMode         string        `json:"sslMode" koanf:"sslmode"`
	MaxConnections  int           `json:"maxConnections" koanf:"maxconnections"`
	MaxIdleConns    int           `json:"maxIdleConns" koanf:"maxidleconns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" koanf:"connmaxlifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" koanf:"connmaxidletime"`
	Timeout         time.Duration `json:"timeout" koanf:"timeout"`

	// UseIAMAuth replaces Password with a short-lived IAM token generated for Region.
	UseIAMAuth bool   `json:"useIAMAuth" koanf:"useiamauth"`
	Region     string `json:"region" koanf:"region"`

	// AutoMigrate runs the metadata table migrations on startup.
	AutoMigrate bool `json:"autoMigrate" koanf:"automigrate"`
}

// QueryConfig contains record listing settings
type QueryConfig struct {
	DefaultPageSize int `json:"defaultPageSize" koanf:"defaultpagesize"`
	MaxPageSize     int `json:"maxPageSize" koanf:"maxpagesize"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"`
}

// NotificationConfig tunes the guard in front of the notification service.
type NotificationConfig struct {
	Enabled          bool          `json:"enabled" koanf:"enabled"`
	FailureThreshold int           `json:"failureThreshold" koanf:"failurethreshold"`
	FailureWindow    time.Duration `json:"failureWindow" koanf:"failurewindow"`
	OpenDuration     time.Duration `json:"openDuration" koanf:"openduration"`
}

// EventsConfig configures the optional S3 event archive.
type EventsConfig struct {
	S3Bucket    string `json:"s3Bucket" koanf:"s3bucket"`
	S3Prefix    string `json:"s3Prefix" koanf:"s3prefix"`
	S3Region    string `json:"s3Region" koanf:"s3region"`
	S3Endpoint  string `json:"s3Endpoint" koanf:"s3endpoint"`
	S3AccessKey string `json:"s3AccessKey" koanf:"s3accesskey"`
	S3SecretKey string `json:"s3SecretKey" koanf:"s3secretkey"`
}

// Enabled reports whether an event archive bucket is configured.
func (c EventsConfig) Enabled() bool {
	return c.S3Bucket != ""
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port string `json:"port" koanf:"port"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "dynaform",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Query: QueryConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Notification: NotificationConfig{
			Enabled:          true,
			FailureThreshold: 5,
			FailureWindow:    time.Minute,
			OpenDuration:     30 * time.Second,
		},
		Events: EventsConfig{
			S3Prefix: "events",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	if c.Database.UseIAMAuth && c.Database.Region == "" {
		return &ConfigError{Field: "database.region", Message: "is required when useIAMAuth is set"}
	}

	if c.Query.DefaultPageSize <= 0 {
		return &ConfigError{Field: "query.defaultPageSize", Message: "must be greater than 0"}
	}

	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return &ConfigError{Field: "query.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}

	if c.Notification.Enabled && c.Notification.FailureThreshold <= 0 {
		return &ConfigError{Field: "notification.failureThreshold", Message: "must be greater than 0"}
	}

	if (c.Events.S3AccessKey == "") != (c.Events.S3SecretKey == "") {
		return &ConfigError{Field: "events.s3AccessKey", Message: "access key and secret key must be set together"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// LoadConfig layers DefaultConfig, an optional YAML file and DYNAFORM_* environment
// variables, in that order. DYNAFORM_DATABASE_HOST maps to database.host.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(confmap.Provider(map[string]any{
		"database.host":                 defaults.Database.Host,
		"database.port":                 defaults.Database.Port,
		"database.database":             defaults.Database.Database,
		"database.username":             defaults.Database.Username,
		"database.sslmode":              defaults.Database.SSLMode,
		"database.maxconnections":       defaults.Database.MaxConnections,
		"database.maxidleconns":         defaults.Database.MaxIdleConns,
		"database.connmaxlifetime":      defaults.Database.ConnMaxLifetime.String(),
		"database.connmaxidletime":      defaults.Database.ConnMaxIdleTime.String(),
		"database.timeout":              defaults.Database.Timeout.String(),
		"query.defaultpagesize":         defaults.Query.DefaultPageSize,
		"query.maxpagesize":             defaults.Query.MaxPageSize,
		"logging.level":                 defaults.Logging.Level,
		"logging.format":                defaults.Logging.Format,
		"notification.enabled":          defaults.Notification.Enabled,
		"notification.failurethreshold": defaults.Notification.FailureThreshold,
		"notification.failurewindow":    defaults.Notification.FailureWindow.String(),
		"notification.openduration":     defaults.Notification.OpenDuration.String(),
		"events.s3prefix":               defaults.Events.S3Prefix,
		"server.port":                   defaults.Server.Port,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// DYNAFORM_DATABASE_MAXCONNECTIONS -> database.maxconnections
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
