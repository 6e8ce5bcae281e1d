package progress

import (
	"fmt"
	"sync"
	"time"
)

// DetailedReporter provides comprehensive progress reporting with timestamps and status
type DetailedReporter struct {
	mu         sync.RWMutex
	operations []OperationStatus
	startTime  time.Time
	indicator  Indicator
	logger     Logger
}

// OperationStatus represents the status of a restore plan execution
type OperationStatus struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`   // "restore", "plan"
	Status     string            `json:"status"` // "running", "completed", "failed"
	StartTime  time.Time         `json:"start_time"`
	EndTime    *time.Time        `json:"end_time,omitempty"`
	Duration   time.Duration     `json:"duration"`
	Progress   int               `json:"progress"` // 0-100
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
	Steps      []StepStatus      `json:"steps"`
	BytesTotal int64             `json:"bytes_total"`
	BytesDone  int64             `json:"bytes_done"`
	FilesTotal int               `json:"files_total"`
	FilesDone  int               `json:"files_done"`
	Errors     []string          `json:"errors,omitempty"`
}

// StepStatus represents one restore point within an operation
type StepStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message"`
}

// Logger interface for detailed reporting
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// NewDetailedReporter creates a new detailed progress reporter
func NewDetailedReporter(indicator Indicator, logger Logger) *DetailedReporter {
	return &DetailedReporter{
		operations: make([]OperationStatus, 0),
		indicator:  indicator,
		logger:     logger,
	}
}

// find returns the operation with id; callers hold mu
func (dr *DetailedReporter) find(id string) *OperationStatus {
	for i := range dr.operations {
		if dr.operations[i].ID == id {
			return &dr.operations[i]
		}
	}
	return nil
}

// StartOperation begins tracking a new operation
func (dr *DetailedReporter) StartOperation(id, name, opType string) *OperationTracker {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	operation := OperationStatus{
		ID:        id,
		Name:      name,
		Type:      opType,
		Status:    "running",
		StartTime: time.Now(),
		Details:   make(map[string]string),
		Steps:     make([]StepStatus, 0),
	}

	dr.operations = append(dr.operations, operation)

	if dr.startTime.IsZero() {
		dr.startTime = operation.StartTime
	}

	if dr.indicator != nil {
		dr.indicator.Start(fmt.Sprintf("Starting %s: %s", opType, name))
	}

	dr.logger.Info("Operation started",
		"id", id,
		"name", name,
		"type", opType)

	return &OperationTracker{
		reporter:    dr,
		operationID: id,
	}
}

// OperationTracker provides methods to update operation progress
type OperationTracker struct {
	reporter    *DetailedReporter
	operationID string
}

// UpdateProgress updates the progress of the operation
func (ot *OperationTracker) UpdateProgress(progress int, message string) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	op := ot.reporter.find(ot.operationID)
	if op == nil {
		return
	}
	op.Progress = progress
	op.Message = message

	switch ind := ot.reporter.indicator.(type) {
	case nil:
	case PercentIndicator:
		ind.SetProgress(progress, message)
	default:
		ind.Update(fmt.Sprintf("[%d%%] %s", progress, message))
	}

	ot.reporter.logger.Debug("Progress update",
		"operation_id", ot.operationID,
		"progress", progress,
		"message", message)
}

// AddStep adds a new step to the operation
func (ot *OperationTracker) AddStep(name, message string) *StepTracker {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	if op := ot.reporter.find(ot.operationID); op != nil {
		op.Steps = append(op.Steps, StepStatus{
			Name:      name,
			Status:    "running",
			StartTime: time.Now(),
			Message:   message,
		})

		ot.reporter.logger.Info("Step started",
			"operation_id", ot.operationID,
			"step", name,
			"message", message)
	}

	return &StepTracker{
		reporter:    ot.reporter,
		operationID: ot.operationID,
		stepName:    name,
	}
}

// SetDetails adds metadata to the operation
func (ot *OperationTracker) SetDetails(key, value string) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	if op := ot.reporter.find(ot.operationID); op != nil {
		op.Details[key] = value
	}
}

// SetFileProgress updates device-based progress
func (ot *OperationTracker) SetFileProgress(filesDone, filesTotal int) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	if op := ot.reporter.find(ot.operationID); op != nil {
		op.FilesDone = filesDone
		op.FilesTotal = filesTotal
		if filesTotal > 0 {
			op.Progress = (filesDone * 100) / filesTotal
		}
	}
}

// SetByteProgress updates byte-based progress
func (ot *OperationTracker) SetByteProgress(bytesDone, bytesTotal int64) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	if op := ot.reporter.find(ot.operationID); op != nil {
		op.BytesDone = bytesDone
		op.BytesTotal = bytesTotal
	}
}

// Complete marks the operation as completed
func (ot *OperationTracker) Complete(message string) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	op := ot.reporter.find(ot.operationID)
	if op == nil {
		return
	}

	now := time.Now()
	op.Status = "completed"
	op.Progress = 100
	op.EndTime = &now
	op.Duration = now.Sub(op.StartTime)
	op.Message = message

	if ot.reporter.indicator != nil {
		ot.reporter.indicator.Complete(message)
	}

	ot.reporter.logger.Info("Operation completed",
		"operation_id", ot.operationID,
		"message", message,
		"duration", op.Duration.String())
}

// Fail marks the operation as failed
func (ot *OperationTracker) Fail(err error) {
	ot.reporter.mu.Lock()
	defer ot.reporter.mu.Unlock()

	op := ot.reporter.find(ot.operationID)
	if op == nil {
		return
	}

	now := time.Now()
	op.Status = "failed"
	op.EndTime = &now
	op.Duration = now.Sub(op.StartTime)
	op.Message = err.Error()
	op.Errors = append(op.Errors, err.Error())

	if ot.reporter.indicator != nil {
		ot.reporter.indicator.Fail(err.Error())
	}

	ot.reporter.logger.Error("Operation failed",
		"operation_id", ot.operationID,
		"error", err.Error(),
		"duration", op.Duration.String())
}

// StepTracker manages individual step progress
type StepTracker struct {
	reporter    *DetailedReporter
	operationID string
	stepName    string
}

func (st *StepTracker) finish(status, message string) *StepStatus {
	op := st.reporter.find(st.operationID)
	if op == nil {
		return nil
	}
	for j := range op.Steps {
		if op.Steps[j].Name == st.stepName {
			now := time.Now()
			op.Steps[j].Status = status
			op.Steps[j].EndTime = &now
			op.Steps[j].Duration = now.Sub(op.Steps[j].StartTime)
			op.Steps[j].Message = message
			return &op.Steps[j]
		}
	}
	return nil
}

// Complete marks the step as completed
func (st *StepTracker) Complete(message string) {
	st.reporter.mu.Lock()
	defer st.reporter.mu.Unlock()

	if step := st.finish("completed", message); step != nil {
		st.reporter.logger.Info("Step completed",
			"operation_id", st.operationID,
			"step", st.stepName,
			"message", message,
			"duration", step.Duration.String())
	}
}

// Fail marks the step as failed
func (st *StepTracker) Fail(err error) {
	st.reporter.mu.Lock()
	defer st.reporter.mu.Unlock()

	if step := st.finish("failed", err.Error()); step != nil {
		st.reporter.logger.Error("Step failed",
			"operation_id", st.operationID,
			"step", st.stepName,
			"error", err.Error(),
			"duration", step.Duration.String())
	}
}

// Skip marks the step as not attempted
func (st *StepTracker) Skip(reason string) {
	st.reporter.mu.Lock()
	defer st.reporter.mu.Unlock()

	st.finish("skipped", reason)
}

// GetOperationStatus returns the current status of an operation
func (dr *DetailedReporter) GetOperationStatus(id string) *OperationStatus {
	dr.mu.RLock()
	defer dr.mu.RUnlock()

	if op := dr.find(id); op != nil {
		cp := *op
		cp.Steps = append([]StepStatus(nil), op.Steps...)
		return &cp
	}
	return nil
}

// GetSummary returns a summary of all operations
func (dr *DetailedReporter) GetSummary() OperationSummary {
	dr.mu.RLock()
	defer dr.mu.RUnlock()

	summary := OperationSummary{
		TotalOperations: len(dr.operations),
		TotalDuration:   time.Since(dr.startTime),
	}

	for _, op := range dr.operations {
		switch op.Status {
		case "completed":
			summary.CompletedOperations++
		case "failed":
			summary.FailedOperations++
		case "running":
			summary.RunningOperations++
		}
	}

	return summary
}

// OperationSummary provides overall statistics
type OperationSummary struct {
	TotalOperations     int           `json:"total_operations"`
	CompletedOperations int           `json:"completed_operations"`
	FailedOperations    int           `json:"failed_operations"`
	RunningOperations   int           `json:"running_operations"`
	TotalDuration       time.Duration `json:"total_duration"`
}

// FormatSummary returns a formatted string representation of the summary
func (s *OperationSummary) FormatSummary() string {
	return fmt.Sprintf(
		"📊 Operations Summary:\n"+
			"  Total: %d | Completed: %d | Failed: %d | Running: %d\n"+
			"  Total Duration: %s",
		s.TotalOperations,
		s.CompletedOperations,
		s.FailedOperations,
		s.RunningOperations,
		FormatDuration(s.TotalDuration))
}
