package restore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"sqlrestore/internal/metadata"
)

// ErrDatabaseExists is returned when the target database exists and neither
// replace nor continue was requested
var ErrDatabaseExists = errors.New("target database already exists")

// ConfigError reports conflicting or out-of-range options. It is always
// raised before anything is sent to the server.
type ConfigError struct {
	Option  string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("invalid restore configuration: %s", e.Message)
	}
	return fmt.Sprintf("invalid restore configuration (%s): %s", e.Option, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(option, format string, args ...any) *ConfigError {
	return &ConfigError{Option: option, Message: fmt.Sprintf(format, args...)}
}

// PreconditionError collects every problem found by the validation pass
// that runs before the first RESTORE statement
type PreconditionError struct {
	Problems *multierror.Error
}

func (e *PreconditionError) Error() string {
	if e.Problems == nil || len(e.Problems.Errors) == 0 {
		return "restore precondition failed"
	}
	if len(e.Problems.Errors) == 1 {
		return fmt.Sprintf("restore precondition failed: %s", e.Problems.Errors[0])
	}
	return fmt.Sprintf("restore precondition failed: %d problems: %s",
		len(e.Problems.Errors), e.Problems.Error())
}

func (e *PreconditionError) Unwrap() error { return e.Problems.ErrorOrNil() }

// Len returns the number of collected problems
func (e *PreconditionError) Len() int {
	if e.Problems == nil {
		return 0
	}
	return len(e.Problems.Errors)
}

// newPreconditionError returns nil when problems is empty
func newPreconditionError(problems *multierror.Error) error {
	if problems.ErrorOrNil() == nil {
		return nil
	}
	problems.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return &PreconditionError{Problems: problems}
}

// ExecutionError wraps a RESTORE statement failure. Points before Point were
// applied; the database is left restoring and can be resumed with continue.
type ExecutionError struct {
	Point int // 1-based index in the plan
	Type  metadata.BackupType
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("restore point %d (%s) failed: %v", e.Point, e.Type, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
