package restore

import (
	"strings"
	"time"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
	"sqlrestore/internal/security"
)

// Options controls how a set of backups is turned into RESTORE statements
type Options struct {
	// TargetDatabase defaults to the database recorded in the first descriptor
	TargetDatabase string

	// Directory overrides, mutually exclusive with FileMapping
	DataDir       string
	LogDir        string
	FileStreamDir string // falls back to DataDir

	// FileMapping maps logical file names to new physical paths
	FileMapping map[string]string

	// Prefix and Suffix are added to every relocated file's base name
	Prefix string
	Suffix string

	Target pitr.RecoveryTarget

	Continue       bool // skip the full backup, resume a database left restoring
	Replace        bool // allow overwriting an existing database
	TrustedHistory bool // descriptors come from msdb; verify the files still exist

	Credential string // server credential for URL devices

	// Transfer tuning; zero leaves the server default
	BlockSize       int
	BufferCount     int
	MaxTransferSize int

	Checksum        bool
	KeepReplication bool
	KeepCDC         bool
	Stats           int // STATS = n percent progress messages; zero omits
}

// HasDirectoryOverride reports whether any destination directory is set
func (o *Options) HasDirectoryOverride() bool {
	return o.DataDir != "" || o.LogDir != "" || o.FileStreamDir != ""
}

// Validate checks options against the descriptors before any server
// interaction. Every failure is a *ConfigError.
func (o *Options) Validate(descriptors []metadata.BackupFileDescriptor) error {
	if len(descriptors) == 0 {
		return configErrorf("backups", "no backup files given")
	}

	for i := range descriptors {
		if err := descriptors[i].Validate(); err != nil {
			return &ConfigError{Option: "backups", Message: err.Error(), Err: err}
		}
	}

	if len(o.FileMapping) > 0 && o.HasDirectoryOverride() {
		return configErrorf("file-mapping", "an explicit file mapping cannot be combined with destination directory overrides")
	}

	if err := o.validateMapping(descriptors); err != nil {
		return err
	}

	if err := o.validateServerPaths(); err != nil {
		return err
	}

	if err := o.Target.Validate(); err != nil {
		return &ConfigError{Option: "recovery", Message: err.Error(), Err: err}
	}

	// SIMPLE recovery plans ignore the cutoff
	if !o.Target.Time.IsZero() && !isSimpleRecovery(descriptors) {
		earliest := earliestStart(descriptors)
		if !earliest.IsZero() && o.Target.Time.Before(earliest) {
			return configErrorf("restore-time",
				"cutoff %s is earlier than the earliest backup start %s",
				o.Target.Time.Format(time.RFC3339), earliest.Format(time.RFC3339))
		}
	}

	if o.BlockSize != 0 && !validBlockSize(o.BlockSize) {
		return configErrorf("block-size", "%d is not a power of two between 512 and 65536", o.BlockSize)
	}
	if o.BufferCount < 0 {
		return configErrorf("buffer-count", "must not be negative, got %d", o.BufferCount)
	}
	if o.MaxTransferSize != 0 {
		if o.MaxTransferSize < 0 || o.MaxTransferSize%(64*1024) != 0 || o.MaxTransferSize > 4*1024*1024 {
			return configErrorf("max-transfer-size", "%d must be a multiple of 65536 up to 4194304", o.MaxTransferSize)
		}
	}
	if o.Stats < 0 || o.Stats > 100 {
		return configErrorf("stats", "must be between 0 and 100, got %d", o.Stats)
	}

	if o.Continue && o.Replace {
		return configErrorf("continue", "continue and replace cannot be combined")
	}

	return nil
}

// validateServerPaths rejects destination paths that can never name a file
// on the server
func (o *Options) validateServerPaths() error {
	dirs := []struct{ option, path string }{
		{"data-dir", o.DataDir},
		{"log-dir", o.LogDir},
		{"filestream-dir", o.FileStreamDir},
		{"standby-dir", o.Target.StandbyDir},
	}
	for _, d := range dirs {
		if d.path == "" {
			continue
		}
		if err := security.ValidateServerPath(d.path); err != nil {
			return &ConfigError{Option: d.option, Message: err.Error(), Err: err}
		}
	}
	for logical, physical := range o.FileMapping {
		if err := security.ValidateServerPath(physical); err != nil {
			return &ConfigError{Option: "file-mapping", Message: logical + ": " + err.Error(), Err: err}
		}
	}
	return nil
}

// validateMapping rejects mapping keys that match no file in any full or
// differential backup, which is almost always a typo
func (o *Options) validateMapping(descriptors []metadata.BackupFileDescriptor) error {
	if len(o.FileMapping) == 0 {
		return nil
	}

	known := make(map[string]bool)
	haveFiles := false
	for _, d := range descriptors {
		if !d.Type.IsDatabase() {
			continue
		}
		for _, f := range d.Files {
			haveFiles = true
			known[strings.ToLower(f.LogicalName)] = true
		}
	}
	// Without file lists the mapping cannot be checked here
	if !haveFiles {
		return nil
	}

	for logical, physical := range o.FileMapping {
		if !known[strings.ToLower(logical)] {
			return configErrorf("file-mapping", "logical file %q is not contained in any backup", logical)
		}
		if strings.TrimSpace(physical) == "" {
			return configErrorf("file-mapping", "logical file %q maps to an empty path", logical)
		}
	}
	return nil
}

func validBlockSize(n int) bool {
	return n >= 512 && n <= 65536 && n&(n-1) == 0
}

func earliestStart(descriptors []metadata.BackupFileDescriptor) time.Time {
	var earliest time.Time
	for _, d := range descriptors {
		if d.StartTime.IsZero() {
			continue
		}
		if earliest.IsZero() || d.StartTime.Before(earliest) {
			earliest = d.StartTime
		}
	}
	return earliest
}

// mappedPath looks up a logical name in FileMapping ignoring case, as
// SQL Server does for logical file names
func (o *Options) mappedPath(logical string) (string, bool) {
	if p, ok := o.FileMapping[logical]; ok {
		return p, true
	}
	for k, p := range o.FileMapping {
		if strings.EqualFold(k, logical) {
			return p, true
		}
	}
	return "", false
}
