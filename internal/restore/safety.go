package restore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"sqlrestore/internal/database"
	"sqlrestore/internal/logger"
)

// URLChecker verifies that a backup URL exists in blob storage
type URLChecker interface {
	Exists(ctx context.Context, uri string) (bool, error)
}

// Safety provides pre-restore validation and safety checks
type Safety struct {
	server database.Server
	urls   URLChecker
	log    logger.Logger
}

// NewSafety creates a new safety checker. urls may be nil when the plan
// has no URL devices.
func NewSafety(server database.Server, urls URLChecker, log logger.Logger) *Safety {
	return &Safety{
		server: server,
		urls:   urls,
		log:    log,
	}
}

// CheckTargetDatabase verifies the state of the target database. An existing
// database needs Replace; continue needs a database left restoring.
func (s *Safety) CheckTargetDatabase(ctx context.Context, name string, opts *Options) (*database.DatabaseInfo, error) {
	info, err := s.server.DatabaseInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database %s: %w", name, err)
	}

	if opts.Continue {
		var problems *multierror.Error
		switch {
		case info == nil:
			problems = multierror.Append(problems, fmt.Errorf("database %s does not exist, nothing to continue", name))
		case !info.IsRestoring():
			problems = multierror.Append(problems,
				fmt.Errorf("database %s is %s, continue needs it in RESTORING or STANDBY", name, info.State))
		}
		if err := newPreconditionError(problems); err != nil {
			return info, err
		}
		s.log.Info("Continuing restore", "database", name, "state", info.State, "standby", info.InStandby)
		return info, nil
	}

	if info != nil && !opts.Replace {
		return info, &ConfigError{
			Option:  "replace",
			Message: fmt.Sprintf("database %s already exists (state %s), pass replace to overwrite it", name, info.State),
			Err:     ErrDatabaseExists,
		}
	}

	if info != nil {
		s.log.Warn("Existing database will be replaced", "database", name, "state", info.State)
	}
	return info, nil
}

// CheckBackupFiles verifies every device of the plan exists. All missing
// files are reported together.
func (s *Safety) CheckBackupFiles(ctx context.Context, plan *Plan) error {
	return newPreconditionError(s.backupFileProblems(ctx, plan))
}

func (s *Safety) backupFileProblems(ctx context.Context, plan *Plan) *multierror.Error {
	var problems *multierror.Error
	seen := make(map[string]bool)

	for i := range plan.Points {
		for _, path := range plan.Points[i].Devices() {
			if seen[path] {
				continue
			}
			seen[path] = true

			exists, err := s.deviceExists(ctx, path)
			switch {
			case err != nil:
				problems = multierror.Append(problems, fmt.Errorf("cannot check backup file %s: %w", path, err))
			case !exists:
				problems = multierror.Append(problems, fmt.Errorf("backup file not found: %s", path))
			default:
				s.log.Debug("Backup file present", "path", path)
			}
		}
	}
	return problems
}

func (s *Safety) deviceExists(ctx context.Context, path string) (bool, error) {
	if strings.Contains(path, "://") {
		if s.urls == nil {
			return false, fmt.Errorf("no blob storage backend configured")
		}
		return s.urls.Exists(ctx, path)
	}
	return s.server.FileExists(ctx, path)
}

// CheckDestinationDirs verifies that every directory files are moved into,
// and the standby directory, exists on the server
func (s *Safety) CheckDestinationDirs(ctx context.Context, plan *Plan, opts *Options) error {
	return newPreconditionError(s.destinationProblems(ctx, plan, opts))
}

func (s *Safety) destinationProblems(ctx context.Context, plan *Plan, opts *Options) *multierror.Error {
	dirs := make(map[string]bool)
	for _, dir := range []string{opts.DataDir, opts.LogDir, opts.FileStreamDir, opts.Target.StandbyDir} {
		if dir != "" {
			dirs[strings.TrimRight(dir, `\/`)] = true
		}
	}
	for i := range plan.Points {
		for _, r := range plan.Points[i].Relocations {
			if !r.Moved() {
				continue
			}
			if dir, _ := splitServerPath(r.To); dir != "" {
				dirs[strings.TrimRight(dir, `\/`)] = true
			}
		}
	}

	sorted := make([]string, 0, len(dirs))
	for dir := range dirs {
		if dir != "" {
			sorted = append(sorted, dir)
		}
	}
	sort.Strings(sorted)

	var problems *multierror.Error
	for _, dir := range sorted {
		exists, err := s.server.DirectoryExists(ctx, dir)
		switch {
		case err != nil:
			problems = multierror.Append(problems, fmt.Errorf("cannot check directory %s: %w", dir, err))
		case !exists:
			problems = multierror.Append(problems, fmt.Errorf("destination directory not found on server: %s", dir))
		}
	}
	return problems
}

// Precheck runs every precondition check and reports all problems in one
// *PreconditionError. Backup files are only checked for trusted history.
func (s *Safety) Precheck(ctx context.Context, plan *Plan, opts *Options) error {
	var problems *multierror.Error
	if opts.TrustedHistory {
		if p := s.backupFileProblems(ctx, plan); p != nil {
			problems = multierror.Append(problems, p.Errors...)
		}
	}
	if p := s.destinationProblems(ctx, plan, opts); p != nil {
		problems = multierror.Append(problems, p.Errors...)
	}

	if err := newPreconditionError(problems); err != nil {
		s.log.Error("Restore preconditions failed", "problems", problems.Len())
		return err
	}
	s.log.Info("Restore preconditions passed", "database", plan.Database)
	return nil
}
