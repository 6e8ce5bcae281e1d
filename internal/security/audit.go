package security

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"sqlrestore/internal/logger"
)

// AuditEvent represents an auditable event
type AuditEvent struct {
	Timestamp time.Time
	User      string
	Action    string
	Resource  string
	Result    string
	Details   map[string]interface{}
}

// AuditLogger writes one JSON line per auditable event. Every event carries
// the session id so all records of one invocation can be correlated.
type AuditLogger struct {
	out       *logrus.Logger
	log       logger.Logger
	closer    io.Closer
	enabled   bool
	sessionID string
}

// NewAuditLogger creates an audit logger writing to a size-rotated file.
// An empty path disables auditing.
func NewAuditLogger(log logger.Logger, path string) *AuditLogger {
	if path == "" {
		return &AuditLogger{log: log, sessionID: uuid.NewString()}
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		MaxAge:     90, // days
		Compress:   true,
	}
	a := NewAuditLoggerWithWriter(log, rotator)
	a.closer = rotator
	return a
}

// NewAuditLoggerWithWriter creates an enabled audit logger writing to w
func NewAuditLoggerWithWriter(log logger.Logger, w io.Writer) *AuditLogger {
	out := logrus.New()
	out.SetOutput(w)
	out.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	out.SetLevel(logrus.InfoLevel)

	return &AuditLogger{
		out:       out,
		log:       log,
		enabled:   true,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the id stamped on every event of this logger
func (a *AuditLogger) SessionID() string {
	return a.sessionID
}

// Close flushes and closes the audit file
func (a *AuditLogger) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// LogRestoreStart logs restore operation start
func (a *AuditLogger) LogRestoreStart(user, database, server string, points int, scriptSHA256 string) {
	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESTORE_START",
		Resource:  database,
		Result:    "INITIATED",
		Details: map[string]interface{}{
			"server":        server,
			"points":        points,
			"script_sha256": scriptSHA256,
		},
	})
}

// LogRestorePoint logs the outcome of a single restore point
func (a *AuditLogger) LogRestorePoint(user, database string, index int, backupType, status string, err error) {
	details := map[string]interface{}{
		"point":       index,
		"backup_type": backupType,
	}
	result := "SUCCESS"
	if err != nil {
		result = "FAILURE"
		details["error"] = err.Error()
	}
	details["status"] = status

	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESTORE_POINT",
		Resource:  database,
		Result:    result,
		Details:   details,
	})
}

// LogRestoreComplete logs successful restore completion
func (a *AuditLogger) LogRestoreComplete(user, database string, duration time.Duration) {
	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESTORE_COMPLETE",
		Resource:  database,
		Result:    "SUCCESS",
		Details: map[string]interface{}{
			"duration_seconds": duration.Seconds(),
		},
	})
}

// LogRestoreFailed logs restore failure
func (a *AuditLogger) LogRestoreFailed(user, database string, err error) {
	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RESTORE_FAILED",
		Resource:  database,
		Result:    "FAILURE",
		Details: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// LogConnectionAttempt logs database connection attempts
func (a *AuditLogger) LogConnectionAttempt(user, host string, success bool, err error) {
	result := "SUCCESS"
	details := map[string]interface{}{
		"host": host,
	}

	if !success {
		result = "FAILURE"
		if err != nil {
			details["error"] = err.Error()
		}
	}

	a.logEvent(AuditEvent{
		Timestamp: time.Now(),
		User:      user,
		Action:    "DB_CONNECTION",
		Resource:  host,
		Result:    result,
		Details:   details,
	})
}

// logEvent writes the audit event to the audit file
func (a *AuditLogger) logEvent(event AuditEvent) {
	if !a.enabled {
		return
	}

	fields := logrus.Fields{
		"audit":      true,
		"session_id": a.sessionID,
		"user":       event.User,
		"action":     event.Action,
		"resource":   event.Resource,
		"result":     event.Result,
	}

	// Merge event details
	for k, v := range event.Details {
		fields[k] = v
	}

	a.out.WithFields(fields).WithTime(event.Timestamp).Info("AUDIT")
	a.log.Debug("Audit event recorded", "action", event.Action, "resource", event.Resource, "result", event.Result)
}

// GetCurrentUser returns the current system user
func GetCurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
