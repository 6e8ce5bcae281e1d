package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"sqlrestore/internal/config"
	"sqlrestore/internal/logger"
)

// Compile-time check
var _ Server = (*SQLServer)(nil)

// SQLServer implements Server over database/sql with the go-mssqldb driver
type SQLServer struct {
	cfg *config.Config
	log logger.Logger
	db  *sql.DB
}

// Connect opens the session and verifies it with a ping
func (s *SQLServer) Connect(ctx context.Context) error {
	dsn := s.buildDSN()
	s.log.Debug("Connecting to SQL Server", "dsn", sanitizeDSN(dsn))

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return fmt.Errorf("failed to open SQL Server connection: %w", err)
	}

	// RESTORE sequences must run on a single session so NORECOVERY state and
	// any SET options carry from one statement to the next
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled during ping: %w", ctx.Err())
		}
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.ServerDisplay(), err)
	}

	s.db = db
	s.log.Debug("Connected to SQL Server", "server", s.cfg.ServerDisplay())
	return nil
}

// Close closes the session
func (s *SQLServer) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping verifies the session is alive
func (s *SQLServer) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	return s.db.PingContext(ctx)
}

// ServerVersion returns @@VERSION
func (s *SQLServer) ServerVersion(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not connected")
	}

	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}

	// First line carries the product and build
	if idx := strings.IndexByte(version, '\n'); idx != -1 {
		version = strings.TrimSpace(version[:idx])
	}
	return version, nil
}

// DatabaseInfo returns state and recovery model, or nil when the database does not exist
func (s *SQLServer) DatabaseInfo(ctx context.Context, name string) (*DatabaseInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not connected")
	}

	info := &DatabaseInfo{}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, state_desc, is_in_standby, recovery_model_desc
		FROM sys.databases
		WHERE name = @p1`, name).Scan(&info.Name, &info.State, &info.InStandby, &info.RecoveryModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read database state: %w", err)
	}
	return info, nil
}

// DefaultPaths returns the instance default data and log directories
func (s *SQLServer) DefaultPaths(ctx context.Context) (*DefaultPaths, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not connected")
	}

	var dataDir, logDir sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT CAST(SERVERPROPERTY('InstanceDefaultDataPath') AS nvarchar(4000)),
		       CAST(SERVERPROPERTY('InstanceDefaultLogPath') AS nvarchar(4000))`).Scan(&dataDir, &logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read default paths: %w", err)
	}
	return &DefaultPaths{DataDir: dataDir.String, LogDir: logDir.String}, nil
}

// fileStatus runs xp_fileexist, which reports on the server's filesystem
func (s *SQLServer) fileStatus(ctx context.Context, path string) (exists, isDir bool, err error) {
	if s.db == nil {
		return false, false, fmt.Errorf("database not connected")
	}

	var fileExists, fileIsDir, parentExists int
	err = s.db.QueryRowContext(ctx, "EXEC master.dbo.xp_fileexist @p1", path).
		Scan(&fileExists, &fileIsDir, &parentExists)
	if err != nil {
		return false, false, fmt.Errorf("xp_fileexist failed for %s: %w", path, err)
	}
	return fileExists == 1, fileIsDir == 1, nil
}

// FileExists reports whether path is an existing file on the server
func (s *SQLServer) FileExists(ctx context.Context, path string) (bool, error) {
	exists, _, err := s.fileStatus(ctx, path)
	return exists, err
}

// DirectoryExists reports whether path is an existing directory on the server
func (s *SQLServer) DirectoryExists(ctx context.Context, path string) (bool, error) {
	_, isDir, err := s.fileStatus(ctx, path)
	return isDir, err
}

// ExecRestore runs a single RESTORE statement. No command timeout is applied;
// only ctx can cancel it.
func (s *SQLServer) ExecRestore(ctx context.Context, statement string) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}
	if _, err := s.db.ExecContext(ctx, statement); err != nil {
		return err
	}
	return nil
}

// ErrorNumber extracts the SQL Server error number from a driver error, or 0
func ErrorNumber(err error) int {
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		return int(sqlErr.Number)
	}
	return 0
}

// buildDSN builds a sqlserver:// URL connection string
func (s *SQLServer) buildDSN() string {
	host := s.cfg.Server
	port := s.cfg.Port
	if port == 0 {
		port = s.cfg.GetDefaultPort()
	}
	if port != 0 {
		host = net.JoinHostPort(host, strconv.Itoa(port))
	}

	query := url.Values{}
	if s.cfg.Database != "" {
		query.Add("database", s.cfg.Database)
	}
	if s.cfg.AppName != "" {
		query.Add("app name", s.cfg.AppName)
	}
	if s.cfg.Encrypt != "" {
		query.Add("encrypt", s.cfg.Encrypt)
	}
	if s.cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if s.cfg.ConnectTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(s.cfg.ConnectTimeout))
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     host,
		RawQuery: query.Encode(),
	}
	if s.cfg.Instance != "" {
		u.Path = s.cfg.Instance
	}
	if s.cfg.User != "" {
		u.User = url.UserPassword(s.cfg.User, s.cfg.Password)
	}

	return u.String()
}

// sanitizeDSN removes the password from a DSN for logging
func sanitizeDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "sqlserver://***"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
