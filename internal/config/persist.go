package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const ConfigFileName = ".sqlrestore.conf"

// LocalConfig represents a saved configuration in the current directory.
// Passwords are never persisted.
type LocalConfig struct {
	// Connection settings
	Server    string
	Port      int
	Instance  string
	User      string
	Encrypt   string
	TrustCert bool

	// Restore settings
	DataDir    string
	LogDir     string
	Credential string
	Stats      int
	AuditLog   string
}

// LoadLocalConfig loads configuration from .sqlrestore.conf in current directory
func LoadLocalConfig() (*LocalConfig, error) {
	return LoadLocalConfigFrom(".")
}

// LoadLocalConfigFrom loads the config file from dir. A missing file returns nil, nil.
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	configPath := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No config file, not an error
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &LocalConfig{}
	lines := strings.Split(string(data), "\n")
	currentSection := ""

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// Section headers
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.Trim(line, "[]")
			continue
		}

		// Key-value pairs
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch currentSection {
		case "server":
			switch key {
			case "server", "host":
				cfg.Server = value
			case "port":
				if p, err := strconv.Atoi(value); err == nil {
					cfg.Port = p
				}
			case "instance":
				cfg.Instance = value
			case "user":
				cfg.User = value
			case "encrypt":
				cfg.Encrypt = value
			case "trust_server_certificate":
				if b, err := strconv.ParseBool(value); err == nil {
					cfg.TrustCert = b
				}
			}
		case "restore":
			switch key {
			case "data_dir":
				cfg.DataDir = value
			case "log_dir":
				cfg.LogDir = value
			case "credential":
				cfg.Credential = value
			case "stats":
				if s, err := strconv.Atoi(value); err == nil {
					cfg.Stats = s
				}
			case "audit_log":
				cfg.AuditLog = value
			}
		}
	}

	return cfg, nil
}

// SaveLocalConfig saves configuration to .sqlrestore.conf in current directory
func SaveLocalConfig(cfg *LocalConfig) error {
	return SaveLocalConfigTo(".", cfg)
}

// SaveLocalConfigTo writes the config file into dir
func SaveLocalConfigTo(dir string, cfg *LocalConfig) error {
	var sb strings.Builder

	sb.WriteString("# sqlrestore configuration\n")
	sb.WriteString("# This file is auto-generated. Edit with care.\n\n")

	sb.WriteString("[server]\n")
	if cfg.Server != "" {
		sb.WriteString(fmt.Sprintf("server = %s\n", cfg.Server))
	}
	if cfg.Port != 0 {
		sb.WriteString(fmt.Sprintf("port = %d\n", cfg.Port))
	}
	if cfg.Instance != "" {
		sb.WriteString(fmt.Sprintf("instance = %s\n", cfg.Instance))
	}
	if cfg.User != "" {
		sb.WriteString(fmt.Sprintf("user = %s\n", cfg.User))
	}
	if cfg.Encrypt != "" {
		sb.WriteString(fmt.Sprintf("encrypt = %s\n", cfg.Encrypt))
	}
	if cfg.TrustCert {
		sb.WriteString("trust_server_certificate = true\n")
	}
	sb.WriteString("\n")

	sb.WriteString("[restore]\n")
	if cfg.DataDir != "" {
		sb.WriteString(fmt.Sprintf("data_dir = %s\n", cfg.DataDir))
	}
	if cfg.LogDir != "" {
		sb.WriteString(fmt.Sprintf("log_dir = %s\n", cfg.LogDir))
	}
	if cfg.Credential != "" {
		sb.WriteString(fmt.Sprintf("credential = %s\n", cfg.Credential))
	}
	if cfg.Stats != 0 {
		sb.WriteString(fmt.Sprintf("stats = %d\n", cfg.Stats))
	}
	if cfg.AuditLog != "" {
		sb.WriteString(fmt.Sprintf("audit_log = %s\n", cfg.AuditLog))
	}

	configPath := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyLocalConfig applies loaded local config to the main config if values are not already set
func ApplyLocalConfig(cfg *Config, local *LocalConfig) {
	if local == nil {
		return
	}

	// Only apply where the config still holds its default
	if cfg.Server == "localhost" && local.Server != "" {
		cfg.Server = local.Server
	}
	if cfg.Port == 0 && local.Port != 0 {
		cfg.Port = local.Port
	}
	if cfg.Instance == "" && local.Instance != "" {
		cfg.Instance = local.Instance
	}
	if cfg.User == "sa" && local.User != "" {
		cfg.User = local.User
	}
	if cfg.Encrypt == "true" && local.Encrypt != "" {
		cfg.Encrypt = local.Encrypt
	}
	if local.TrustCert {
		cfg.TrustServerCertificate = true
	}
	if cfg.DataDir == "" && local.DataDir != "" {
		cfg.DataDir = local.DataDir
	}
	if cfg.LogDir == "" && local.LogDir != "" {
		cfg.LogDir = local.LogDir
	}
	if cfg.Credential == "" && local.Credential != "" {
		cfg.Credential = local.Credential
	}
	if cfg.Stats == 10 && local.Stats != 0 {
		cfg.Stats = local.Stats
	}
	if cfg.AuditLog == "" && local.AuditLog != "" {
		cfg.AuditLog = local.AuditLog
	}
}

// ConfigFromConfig creates a LocalConfig from a Config
func ConfigFromConfig(cfg *Config) *LocalConfig {
	return &LocalConfig{
		Server:     cfg.Server,
		Port:       cfg.Port,
		Instance:   cfg.Instance,
		User:       cfg.User,
		Encrypt:    cfg.Encrypt,
		TrustCert:  cfg.TrustServerCertificate,
		DataDir:    cfg.DataDir,
		LogDir:     cfg.LogDir,
		Credential: cfg.Credential,
		Stats:      cfg.Stats,
		AuditLog:   cfg.AuditLog,
	}
}
