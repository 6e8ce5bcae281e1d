package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupType classifies a backup device
type BackupType string

const (
	BackupTypeFull         BackupType = "full"
	BackupTypeDifferential BackupType = "differential"
	BackupTypeLog          BackupType = "log"
)

// ParseBackupType accepts the msdb type codes (D, I, L) as well as long names
func ParseBackupType(s string) (BackupType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "d", "database":
		return BackupTypeFull, nil
	case "differential", "diff", "i":
		return BackupTypeDifferential, nil
	case "log", "l", "transaction log":
		return BackupTypeLog, nil
	default:
		return "", fmt.Errorf("unknown backup type %q (valid: full, differential, log)", s)
	}
}

// IsDatabase reports whether the backup restores with RESTORE DATABASE
func (t BackupType) IsDatabase() bool {
	return t == BackupTypeFull || t == BackupTypeDifferential
}

func (t *BackupType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("backup type must be a string: %w", err)
	}
	parsed, err := ParseBackupType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *BackupType) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseBackupType(value.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FileType is the kind of database file contained in a backup
type FileType string

const (
	FileTypeData       FileType = "data"
	FileTypeLog        FileType = "log"
	FileTypeFileStream FileType = "filestream"
	FileTypeFullText   FileType = "fulltext"
)

// ParseFileType accepts msdb.dbo.backupfile type codes (D, L, S, F) and long names
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "data", "rows":
		return FileTypeData, nil
	case "l", "log":
		return FileTypeLog, nil
	case "s", "filestream":
		return FileTypeFileStream, nil
	case "f", "fulltext", "full-text":
		return FileTypeFullText, nil
	default:
		return "", fmt.Errorf("unknown file type %q (valid: data, log, filestream, fulltext)", s)
	}
}

func (t *FileType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("file type must be a string: %w", err)
	}
	parsed, err := ParseFileType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *FileType) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseFileType(value.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FileEntry is one database file inside a backup set
type FileEntry struct {
	LogicalName  string   `json:"logical_name" yaml:"logical_name"`
	PhysicalName string   `json:"physical_name" yaml:"physical_name"`
	Type         FileType `json:"type" yaml:"type"`
	SizeBytes    int64    `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

// BackupFileDescriptor describes a single backup device (file or URL) and the
// backup set it belongs to. Striped backups produce one descriptor per device.
type BackupFileDescriptor struct {
	Path              string      `json:"path" yaml:"path"`
	Type              BackupType  `json:"type" yaml:"type"`
	Database          string      `json:"database,omitempty" yaml:"database,omitempty"`
	Server            string      `json:"server,omitempty" yaml:"server,omitempty"`
	FirstLSN          LSN         `json:"first_lsn,omitempty" yaml:"first_lsn,omitempty"`
	LastLSN           LSN         `json:"last_lsn,omitempty" yaml:"last_lsn,omitempty"`
	DatabaseBackupLSN LSN         `json:"database_backup_lsn,omitempty" yaml:"database_backup_lsn,omitempty"`
	CheckpointLSN     LSN         `json:"checkpoint_lsn,omitempty" yaml:"checkpoint_lsn,omitempty"`
	StartTime         time.Time   `json:"start_time" yaml:"start_time"`
	FinishTime        time.Time   `json:"finish_time,omitempty" yaml:"finish_time,omitempty"`
	BackupSetID       string      `json:"backup_set_id,omitempty" yaml:"backup_set_id,omitempty"`
	Position          int         `json:"position,omitempty" yaml:"position,omitempty"`
	SizeBytes         int64       `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	RecoveryModel     string      `json:"recovery_model,omitempty" yaml:"recovery_model,omitempty"`
	Files             []FileEntry `json:"files,omitempty" yaml:"files,omitempty"`
}

// IsURL reports whether the device is a URL (blob storage) rather than a disk path
func (d *BackupFileDescriptor) IsURL() bool {
	return IsURL(d.Path)
}

// EndTime is the finish time of the backup, or its start time when unknown
func (d *BackupFileDescriptor) EndTime() time.Time {
	if !d.FinishTime.IsZero() {
		return d.FinishTime
	}
	return d.StartTime
}

// IsSimpleRecovery reports whether the source database used the SIMPLE recovery model
func (d *BackupFileDescriptor) IsSimpleRecovery() bool {
	return strings.EqualFold(d.RecoveryModel, "SIMPLE")
}

// Validate checks the fields every descriptor must carry
func (d *BackupFileDescriptor) Validate() error {
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("backup descriptor has no path")
	}
	if d.Type == "" {
		return fmt.Errorf("backup descriptor %s has no type", d.Path)
	}
	if _, err := ParseBackupType(string(d.Type)); err != nil {
		return fmt.Errorf("backup descriptor %s: %w", d.Path, err)
	}
	// Log points are ordered and matched to the base by start time
	if d.Type == BackupTypeLog && d.StartTime.IsZero() {
		return fmt.Errorf("log backup descriptor %s has no start time", d.Path)
	}
	if !d.FirstLSN.IsZero() && !d.LastLSN.IsZero() && d.LastLSN.Less(d.FirstLSN) {
		return fmt.Errorf("backup descriptor %s: last LSN %s precedes first LSN %s",
			d.Path, d.LastLSN, d.FirstLSN)
	}
	return nil
}

// IsURL reports whether path is a URL rather than a local or UNC path
func IsURL(path string) bool {
	return strings.Contains(path, "://")
}

// FormatSize returns human-readable size
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
