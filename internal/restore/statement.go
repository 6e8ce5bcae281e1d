package restore

import (
	"fmt"
	"strings"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
)

// BuildStatement renders the RESTORE statement for one point. first marks
// the first point of the plan, the only one that may carry REPLACE.
func BuildStatement(database string, point *RestorePoint, opts *Options, first bool) string {
	var sb strings.Builder

	if point.Type.IsDatabase() {
		sb.WriteString("RESTORE DATABASE ")
	} else {
		sb.WriteString("RESTORE LOG ")
	}
	sb.WriteString(QuoteIdentifier(database))

	deviceKind := "DISK"
	if point.IsURL() {
		deviceKind = "URL"
	}
	devices := make([]string, 0, len(point.Descriptors))
	for _, path := range point.Devices() {
		devices = append(devices, deviceKind+" = "+QuoteString(path))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(strings.Join(devices, ", "))

	with := withOptions(database, point, opts, first)
	sb.WriteString(" WITH ")
	sb.WriteString(strings.Join(with, ", "))

	return sb.String()
}

func withOptions(database string, point *RestorePoint, opts *Options, first bool) []string {
	var with []string

	if pos := point.Position(); pos > 0 {
		with = append(with, fmt.Sprintf("FILE = %d", pos))
	}
	if point.IsURL() && opts.Credential != "" {
		with = append(with, "CREDENTIAL = "+QuoteString(opts.Credential))
	}

	for _, r := range point.Relocations {
		if r.Moved() {
			with = append(with, fmt.Sprintf("MOVE %s TO %s", QuoteString(r.LogicalName), QuoteString(r.To)))
		}
	}

	if first && opts.Replace && point.Type.IsDatabase() {
		with = append(with, "REPLACE")
	}

	switch point.Recovery {
	case pitr.ModeStandby:
		with = append(with, "STANDBY = "+QuoteString(standbyFile(opts.Target.StandbyDir, database)))
	case pitr.ModeNoRecovery:
		with = append(with, "NORECOVERY")
	default:
		with = append(with, "RECOVERY")
	}

	if !point.StopAt.IsZero() && point.Type == metadata.BackupTypeLog {
		with = append(with, pitr.StopAtClause(point.StopAt))
	}

	if opts.BlockSize > 0 {
		with = append(with, fmt.Sprintf("BLOCKSIZE = %d", opts.BlockSize))
	}
	if opts.BufferCount > 0 {
		with = append(with, fmt.Sprintf("BUFFERCOUNT = %d", opts.BufferCount))
	}
	if opts.MaxTransferSize > 0 {
		with = append(with, fmt.Sprintf("MAXTRANSFERSIZE = %d", opts.MaxTransferSize))
	}
	if opts.Checksum {
		with = append(with, "CHECKSUM")
	}

	// Neither option is accepted together with NORECOVERY
	if point.Recovery == pitr.ModeRecovery {
		if opts.KeepReplication {
			with = append(with, "KEEP_REPLICATION")
		}
		if opts.KeepCDC {
			with = append(with, "KEEP_CDC")
		}
	}

	if opts.Stats > 0 {
		with = append(with, fmt.Sprintf("STATS = %d", opts.Stats))
	}

	return with
}

// standbyFile is the undo file SQL Server keeps for a standby database
func standbyFile(dir, database string) string {
	sep := separatorOf(dir)
	if sep == 0 {
		sep = '\\'
	}
	return strings.TrimRight(dir, `\/`) + string(sep) + database + "_undo.ldf"
}

// QuoteIdentifier quotes a T-SQL identifier with brackets
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// QuoteString renders a Unicode T-SQL string literal
func QuoteString(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}
