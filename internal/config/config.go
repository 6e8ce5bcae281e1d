package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration options
type Config struct {
	// Version information
	Version   string
	BuildTime string
	GitCommit string

	// SQL Server connection
	Server                 string
	Port                   int
	Instance               string
	User                   string
	Password               string
	Database               string // database used for the session, normally master
	Encrypt                string // "true", "false", "disable" or "strict"
	TrustServerCertificate bool
	AppName                string
	ConnectTimeout         int // seconds
	ConnectRetries         int

	// Restore defaults
	DataDir        string
	LogDir         string
	Credential     string // server credential used for URL backups
	Stats          int
	AuditLog       string
	MetricsFile    string
	PushgatewayURL string
	NoLoadConfig   bool

	// Output options
	NoColor   bool
	Debug     bool
	LogLevel  string
	LogFormat string
	LogFile   string

	// Telemetry (OpenTelemetry tracing)
	Telemetry *TelemetryConfig
}

// New creates a new configuration with default values
func New() *Config {
	return &Config{
		// Connection defaults
		Server:                 getEnvString("MSSQL_SERVER", "localhost"),
		Port:                   getEnvInt("MSSQL_PORT", 0),
		Instance:               getEnvString("MSSQL_INSTANCE", ""),
		User:                   getEnvString("MSSQL_USER", "sa"),
		Password:               getEnvString("MSSQL_PASSWORD", ""),
		Database:               getEnvString("MSSQL_DATABASE", "master"),
		Encrypt:                getEnvString("MSSQL_ENCRYPT", "true"),
		TrustServerCertificate: getEnvBool("MSSQL_TRUST_CERT", false),
		AppName:                getEnvString("MSSQL_APP_NAME", "sqlrestore"),
		ConnectTimeout:         getEnvInt("MSSQL_CONNECT_TIMEOUT", 30),
		ConnectRetries:         getEnvInt("MSSQL_CONNECT_RETRIES", 3),

		// Restore defaults
		DataDir:        getEnvString("RESTORE_DATA_DIR", ""),
		LogDir:         getEnvString("RESTORE_LOG_DIR", ""),
		Credential:     getEnvString("RESTORE_CREDENTIAL", ""),
		Stats:          getEnvInt("RESTORE_STATS", 10),
		AuditLog:       getEnvString("AUDIT_LOG", ""),
		MetricsFile:    getEnvString("METRICS_FILE", ""),
		PushgatewayURL: getEnvString("PUSHGATEWAY_URL", ""),

		// Output defaults
		NoColor:   getEnvBool("NO_COLOR", false),
		Debug:     getEnvBool("DEBUG", false),
		LogLevel:  getEnvString("LOG_LEVEL", "info"),
		LogFormat: getEnvString("LOG_FORMAT", "text"),
		LogFile:   getEnvString("LOG_FILE", ""),
	}
}

// UpdateFromEnvironment updates configuration from environment variables
func (c *Config) UpdateFromEnvironment() {
	if password := os.Getenv("MSSQL_PASSWORD"); password != "" {
		c.Password = password
	}
	if password := os.Getenv("SQLCMDPASSWORD"); password != "" && c.Password == "" {
		c.Password = password
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return &ConfigError{Field: "server", Value: c.Server, Message: "must not be empty"}
	}

	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Value: strconv.Itoa(c.Port), Message: "must be between 0 (default) and 65535"}
	}

	switch strings.ToLower(c.Encrypt) {
	case "true", "false", "disable", "strict":
	default:
		return &ConfigError{Field: "encrypt", Value: c.Encrypt, Message: "must be one of true, false, disable, strict"}
	}

	if c.ConnectTimeout < 0 {
		return &ConfigError{Field: "connect-timeout", Value: strconv.Itoa(c.ConnectTimeout), Message: "must not be negative"}
	}

	if c.ConnectRetries < 1 {
		return &ConfigError{Field: "connect-retries", Value: strconv.Itoa(c.ConnectRetries), Message: "must be at least 1"}
	}

	if c.Stats < 0 || c.Stats > 100 {
		return &ConfigError{Field: "stats", Value: strconv.Itoa(c.Stats), Message: "must be between 0 and 100"}
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// GetDefaultPort returns the port used when none is configured. Named
// instances are resolved through the SQL Browser service instead.
func (c *Config) GetDefaultPort() int {
	if c.Instance != "" {
		return 0
	}
	return 1433
}

// ServerDisplay renders host[\instance][:port] for logs and prompts
func (c *Config) ServerDisplay() string {
	s := c.Server
	if c.Instance != "" {
		s += `\` + c.Instance
	}
	if c.Port != 0 {
		s += ":" + strconv.Itoa(c.Port)
	}
	return s
}

// ConnectTimeoutDuration returns the connect timeout as a duration
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "' with value '" + e.Value + "': " + e.Message
}

// Helper functions
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
