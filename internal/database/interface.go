package database

import (
	"context"
	"strconv"
	"strings"
	"time"

	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
	"sqlrestore/internal/metadata"
)

// Server is the connection to the SQL Server instance a restore plan runs
// against. One Server owns exactly one session for its whole lifetime.
type Server interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	// Information
	ServerVersion(ctx context.Context) (string, error)
	DatabaseInfo(ctx context.Context, name string) (*DatabaseInfo, error)
	DefaultPaths(ctx context.Context) (*DefaultPaths, error)

	// Server-side filesystem checks
	FileExists(ctx context.Context, path string) (bool, error)
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// Restore execution
	ExecRestore(ctx context.Context, statement string) error

	// Backup catalog (msdb)
	BackupHistory(ctx context.Context, database string, since time.Time) ([]metadata.BackupFileDescriptor, error)
}

// DatabaseInfo holds the sys.databases fields the restore engine cares about
type DatabaseInfo struct {
	Name          string
	State         string // ONLINE, RESTORING, RECOVERING, ...
	InStandby     bool
	RecoveryModel string // FULL, BULK_LOGGED, SIMPLE
}

// IsRestoring reports whether further restore points can be applied
func (d *DatabaseInfo) IsRestoring() bool {
	return strings.EqualFold(d.State, "RESTORING") || d.InStandby
}

// DefaultPaths are the instance default file locations
type DefaultPaths struct {
	DataDir string
	LogDir  string
}

// New creates a SQL Server connection helper from configuration
func New(cfg *config.Config, log logger.Logger) *SQLServer {
	return &SQLServer{
		cfg: cfg,
		log: log,
	}
}

// ParseServerInstance splits the forms host, host:port, host\instance and
// host\instance:port. Port is zero when a named instance is resolved
// through the SQL Browser service.
func ParseServerInstance(s string) (host string, port int, instance string) {
	s = strings.TrimSpace(s)

	// tcp: prefix from sqlcmd-style server names
	if strings.HasPrefix(strings.ToLower(s), "tcp:") {
		s = s[4:]
	}

	if idx := strings.Index(s, `\`); idx != -1 {
		host = s[:idx]
		rest := s[idx+1:]
		if colonIdx := strings.Index(rest, ":"); colonIdx != -1 {
			instance = rest[:colonIdx]
			if p, err := strconv.Atoi(rest[colonIdx+1:]); err == nil {
				port = p
			}
		} else {
			instance = rest
		}
		return host, port, instance
	}

	// host,port is the sqlcmd spelling of host:port
	sep := strings.LastIndexAny(s, ":,")
	if sep != -1 {
		if p, err := strconv.Atoi(s[sep+1:]); err == nil {
			return s[:sep], p, ""
		}
	}
	return s, 0, ""
}
