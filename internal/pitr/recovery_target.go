package pitr

import (
	"fmt"
	"strings"
	"time"
)

// RecoveryMode is the state the database is left in after the last restore point
type RecoveryMode string

// RecoveryMode constants
const (
	ModeRecovery   RecoveryMode = "recovery"
	ModeNoRecovery RecoveryMode = "norecovery"
	ModeStandby    RecoveryMode = "standby"
)

// ParseRecoveryMode parses a mode name; empty means recovery
func ParseRecoveryMode(s string) (RecoveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "recovery", "recover":
		return ModeRecovery, nil
	case "norecovery", "no-recovery":
		return ModeNoRecovery, nil
	case "standby":
		return ModeStandby, nil
	default:
		return "", fmt.Errorf("invalid recovery mode: %s (must be recovery, norecovery, or standby)", s)
	}
}

// RecoveryTarget describes how far the log chain is replayed and what state
// the database is left in afterwards
type RecoveryTarget struct {
	Time       time.Time    // Cutoff; zero means restore to the latest available point
	Mode       RecoveryMode // State after the last restore point
	StandbyDir string       // Directory for the standby undo file (standby mode only)
}

// timestamp layouts accepted on the command line
var timeFormats = []string{
	"2006-01-02 15:04:05",        // Standard format
	"2006-01-02 15:04:05.999999", // With microseconds
	"2006-01-02T15:04:05",        // ISO 8601
	"2006-01-02T15:04:05.999",    // ISO 8601 with milliseconds
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseRestoreTime parses a cutoff timestamp. Layouts without a zone are
// interpreted in local time. An empty value yields the zero time.
func ParseRestoreTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	var parseErr error
	for _, format := range timeFormats {
		t, err := time.ParseInLocation(format, value, time.Local)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}

	return time.Time{}, fmt.Errorf("invalid timestamp format '%s': %w (expected format: YYYY-MM-DD HH:MM:SS)", value, parseErr)
}

// ParseRecoveryTarget creates a RecoveryTarget from CLI flags
func ParseRecoveryTarget(restoreTime, mode, standbyDir string) (*RecoveryTarget, error) {
	t, err := ParseRestoreTime(restoreTime)
	if err != nil {
		return nil, err
	}

	m, err := ParseRecoveryMode(mode)
	if err != nil {
		return nil, err
	}

	// --standby-dir alone implies standby mode
	if standbyDir != "" && mode == "" {
		m = ModeStandby
	}

	rt := &RecoveryTarget{Time: t, Mode: m, StandbyDir: standbyDir}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Validate validates the recovery target configuration
func (rt *RecoveryTarget) Validate() error {
	switch rt.Mode {
	case "", ModeRecovery, ModeNoRecovery:
		if rt.StandbyDir != "" {
			return fmt.Errorf("standby directory given but recovery mode is %s", rt.EffectiveMode())
		}
	case ModeStandby:
		if strings.TrimSpace(rt.StandbyDir) == "" {
			return fmt.Errorf("standby mode requires a standby directory")
		}
	default:
		return fmt.Errorf("unknown recovery mode: %s", rt.Mode)
	}
	return nil
}

// EffectiveMode returns the mode, defaulting to recovery
func (rt *RecoveryTarget) EffectiveMode() RecoveryMode {
	if rt.Mode == "" {
		return ModeRecovery
	}
	return rt.Mode
}

// HasCutoff reports whether a point-in-time cutoff applies relative to now.
// A cutoff in the future behaves like no cutoff.
func (rt *RecoveryTarget) HasCutoff(now time.Time) bool {
	return !rt.Time.IsZero() && !rt.Time.After(now)
}

// Summary returns a one-line summary of the recovery target
func (rt *RecoveryTarget) Summary() string {
	var target string
	if rt.Time.IsZero() {
		target = "Restore to latest available point"
	} else {
		target = fmt.Sprintf("Restore to time: %s", rt.Time.Format("2006-01-02 15:04:05"))
	}

	switch rt.EffectiveMode() {
	case ModeStandby:
		return fmt.Sprintf("%s, leave in STANDBY (%s)", target, rt.StandbyDir)
	case ModeNoRecovery:
		return target + ", leave in NORECOVERY"
	default:
		return target + ", then recover"
	}
}

// StopAtClause renders the STOPAT option for a RESTORE LOG statement. The
// server interprets the value in its own local time, so the wall clock of t is used.
func StopAtClause(t time.Time) string {
	return fmt.Sprintf("STOPAT = N'%s'", t.Format("2006-01-02T15:04:05.000"))
}
