package restore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sqlrestore/internal/checks"
	"sqlrestore/internal/cloud"
	"sqlrestore/internal/config"
	"sqlrestore/internal/database"
	"sqlrestore/internal/logger"
	"sqlrestore/internal/metadata"
	"sqlrestore/internal/metrics"
	"sqlrestore/internal/progress"
	"sqlrestore/internal/security"
	"sqlrestore/internal/tracing"
)

// Point status values reported in PointResult
const (
	StatusPlanned   = "planned"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// PointResult is the outcome of one restore point
type PointResult struct {
	Order         int64
	Type          metadata.BackupType
	Statement     string
	Files         []string // physical files restored, full/differential only
	BytesRestored int64
	Status        string
	Error         string
}

// Result is the outcome of a restore plan
type Result struct {
	Database string
	Points   []PointResult
	Success  bool
	Duration time.Duration
}

// Engine executes restore plans against one SQL Server session
type Engine struct {
	cfg              *config.Config
	log              logger.Logger
	server           database.Server
	progress         progress.Indicator
	detailedReporter *progress.DetailedReporter
	dryRun           bool

	audit   *security.AuditLogger
	metrics *metrics.MetricsCollector
	cloud   *cloud.Resolver
	limiter *security.RateLimiter
	now     func() time.Time
}

// New creates a new restore engine
func New(cfg *config.Config, log logger.Logger, server database.Server) *Engine {
	return NewWithProgress(cfg, log, server, progress.NewIndicator(true, "line"), false)
}

// NewSilent creates a new restore engine with no stdout progress (for TUI mode)
func NewSilent(cfg *config.Config, log logger.Logger, server database.Server) *Engine {
	return NewWithProgress(cfg, log, server, progress.NewNullIndicator(), false)
}

// NewWithProgress creates a restore engine with custom progress indicator
func NewWithProgress(cfg *config.Config, log logger.Logger, server database.Server, progressIndicator progress.Indicator, dryRun bool) *Engine {
	if progressIndicator == nil {
		progressIndicator = progress.NewNullIndicator()
	}
	if cfg == nil {
		cfg = config.New()
	}

	return &Engine{
		cfg:              cfg,
		log:              log,
		server:           server,
		progress:         progressIndicator,
		detailedReporter: progress.NewDetailedReporter(progressIndicator, log),
		dryRun:           dryRun,
		now:              time.Now,
	}
}

// SetAuditLogger enables audit events
func (e *Engine) SetAuditLogger(a *security.AuditLogger) { e.audit = a }

// SetMetrics enables per-point metrics
func (e *Engine) SetMetrics(m *metrics.MetricsCollector) { e.metrics = m }

// SetCloudResolver enables existence and size checks of URL devices
func (e *Engine) SetCloudResolver(r *cloud.Resolver) { e.cloud = r }

// SetRateLimiter enables connection retries with backoff
func (e *Engine) SetRateLimiter(rl *security.RateLimiter) { e.limiter = rl }

// Reporter exposes the per-point progress reporter
func (e *Engine) Reporter() *progress.DetailedReporter { return e.detailedReporter }

// Plan validates opts and builds the restore plan without touching the server
func (e *Engine) Plan(descriptors []metadata.BackupFileDescriptor, opts *Options) (*Plan, error) {
	plan, err := buildPlanAt(descriptors, opts, e.now())
	if err != nil {
		return nil, err
	}
	for _, w := range plan.Warnings {
		e.log.Warn(w, "database", plan.Database)
	}
	return plan, nil
}

// Restore plans and executes a restore of descriptors. Configuration errors
// are returned before the server is contacted. The session is closed on
// every exit path once connected.
func (e *Engine) Restore(ctx context.Context, descriptors []metadata.BackupFileDescriptor, opts *Options) (result *Result, err error) {
	operation := e.log.StartOperation("SQL Server Restore")
	start := e.now()

	plan, err := e.Plan(descriptors, opts)
	if err != nil {
		operation.Fail("Invalid restore request", "error", err)
		return nil, err
	}

	result = newResult(plan)

	if e.dryRun {
		e.log.Info("DRY RUN: restore plan built, nothing executed",
			"database", plan.Database, "points", len(plan.Points))
		for i := range plan.Points {
			e.log.Info("DRY RUN: would execute", "point", i+1, "statement", plan.Points[i].Statement)
		}
		result.Success = true
		result.Duration = e.now().Sub(start)
		operation.Complete("Dry run finished", "points", len(plan.Points))
		return result, nil
	}

	ctx, span := tracing.StartSpan(ctx, "restore.plan",
		attribute.String("db.name", plan.Database),
		attribute.Int("restore.points", len(plan.Points)),
		attribute.Bool("restore.continue", opts.Continue))
	defer func() { tracing.EndSpan(span, err) }()

	user := security.GetCurrentUser()
	defer func() {
		result.Duration = e.now().Sub(start)
		if e.metrics != nil {
			if result.Success {
				e.metrics.RecordPlanComplete(plan.Database, e.now())
			}
			e.metrics.Export(context.WithoutCancel(ctx))
		}
		if err != nil {
			if e.audit != nil {
				e.audit.LogRestoreFailed(user, plan.Database, err)
			}
			operation.Fail("Restore failed", "database", plan.Database, "error", err)
		}
	}()

	if err = e.connect(ctx); err != nil {
		e.skipFrom(result, plan, 0, nil)
		return result, err
	}
	defer func() {
		if closeErr := e.server.Close(); closeErr != nil {
			e.log.Warn("Failed to close connection", "error", closeErr)
		}
	}()

	safety := NewSafety(e.server, e.urlChecker(), e.log)
	var info *database.DatabaseInfo
	if info, err = safety.CheckTargetDatabase(ctx, plan.Database, opts); err != nil {
		e.skipFrom(result, plan, 0, nil)
		return result, err
	}
	if info != nil && plan.CutoffApplied && strings.EqualFold(info.RecoveryModel, "SIMPLE") {
		e.log.Warn("Target database uses the SIMPLE recovery model, the restore time may not be reachable",
			"database", plan.Database, "restore_time", plan.Target.Time)
	}
	if err = e.checkServerVersion(ctx, plan); err != nil {
		e.skipFrom(result, plan, 0, nil)
		return result, err
	}
	if err = safety.Precheck(ctx, plan, opts); err != nil {
		e.skipFrom(result, plan, 0, nil)
		return result, err
	}

	if e.audit != nil {
		e.audit.LogRestoreStart(user, plan.Database, e.cfg.Server, len(plan.Points),
			security.ChecksumString(plan.Script()))
	}

	if err = e.execute(ctx, plan, result, user); err != nil {
		return result, err
	}

	result.Success = true
	if e.audit != nil {
		e.audit.LogRestoreComplete(user, plan.Database, e.now().Sub(start))
	}
	operation.Complete("Restore finished", "database", plan.Database, "points", len(plan.Points))
	return result, nil
}

// execute runs the points strictly in order and stops at the first failure
func (e *Engine) execute(ctx context.Context, plan *Plan, result *Result, user string) error {
	tracker := e.detailedReporter.StartOperation(e.operationID(),
		fmt.Sprintf("Restore %s", plan.Database), "restore")
	tracker.SetDetails("database", plan.Database)
	tracker.SetDetails("recovery", string(plan.Target.EffectiveMode()))
	tracker.SetFileProgress(0, len(plan.Points))

	eta := progress.NewETAEstimator("restore "+plan.Database, len(plan.Points), plan.TotalSize())
	var bytesDone int64

	for i := range plan.Points {
		point := &plan.Points[i]
		pr := &result.Points[i]

		step := tracker.AddStep(point.Label(), fmt.Sprintf("RESTORE %s (%d device(s))", point.Type, len(point.Descriptors)))
		e.log.Info("Restoring point", "point", i+1, "of", len(plan.Points),
			"type", point.Type, "recovery", point.Recovery, "devices", len(point.Descriptors))

		pointCtx, span := tracing.StartSpan(ctx, "restore.point",
			attribute.Int("restore.point", i+1),
			attribute.String("restore.type", string(point.Type)),
			attribute.String("restore.recovery", string(point.Recovery)))
		pointStart := time.Now()

		execErr := ctx.Err()
		if execErr == nil {
			execErr = e.server.ExecRestore(pointCtx, point.Statement)
		}
		tracing.EndSpan(span, execErr)

		if execErr != nil {
			pr.Status = StatusFailed
			pr.Error = execErr.Error()
			step.Fail(execErr)
			tracker.Fail(execErr)

			number := database.ErrorNumber(execErr)
			e.log.Error("Restore point failed", "point", i+1, "type", point.Type, "error", execErr)
			e.log.Warn(checks.FormatErrorWithHint(number, execErr.Error()))

			if e.metrics != nil {
				e.metrics.RecordPoint(plan.Database, string(point.Type), StatusFailed, pointStart, 0)
			}
			if e.audit != nil {
				e.audit.LogRestorePoint(user, plan.Database, i+1, string(point.Type), StatusFailed, execErr)
			}

			e.skipFrom(result, plan, i+1, tracker)
			return &ExecutionError{Point: i + 1, Type: point.Type, Err: execErr}
		}

		pr.Status = StatusCompleted
		pr.BytesRestored = e.pointSize(ctx, point)
		bytesDone += pr.BytesRestored
		step.Complete(fmt.Sprintf("%s restored", metadata.FormatSize(pr.BytesRestored)))

		eta.UpdateProgress(i+1, bytesDone)
		tracker.SetFileProgress(i+1, len(plan.Points))
		tracker.SetByteProgress(bytesDone, plan.TotalSize())
		tracker.UpdateProgress(eta.Percent(), eta.GetFullStatus(point.Label()))

		if e.metrics != nil {
			e.metrics.RecordPoint(plan.Database, string(point.Type), StatusCompleted, pointStart, pr.BytesRestored)
		}
		if e.audit != nil {
			e.audit.LogRestorePoint(user, plan.Database, i+1, string(point.Type), StatusCompleted, nil)
		}
	}

	tracker.Complete(fmt.Sprintf("Database %s restored (%s)", plan.Database, plan.Target.EffectiveMode()))
	return nil
}

// connect opens the session, retrying with backoff when a rate limiter is set
func (e *Engine) connect(ctx context.Context) error {
	host := e.cfg.Server
	user := e.cfg.User

	for {
		if e.limiter != nil {
			if err := e.limiter.CheckAndWait(ctx, host); err != nil {
				return fmt.Errorf("failed to connect to %s: %w", host, err)
			}
		}

		err := e.server.Connect(ctx)
		if e.audit != nil {
			e.audit.LogConnectionAttempt(user, host, err == nil, err)
		}
		if err == nil {
			if e.limiter != nil {
				e.limiter.RecordSuccess(host)
			}
			return nil
		}

		if e.limiter == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to connect to %s: %w", host, err)
		}
		e.limiter.RecordFailure(host)
		e.log.Warn("Connection attempt failed", "host", host, "error", err)
	}
}

// pointSize prefers the recorded size and falls back to the blob size
func (e *Engine) pointSize(ctx context.Context, point *RestorePoint) int64 {
	if size := point.Size(); size > 0 || !point.IsURL() || e.cloud == nil {
		return size
	}

	var total int64
	for _, device := range point.Devices() {
		size, err := e.cloud.Size(ctx, device)
		if err != nil {
			e.log.Debug("Could not read blob size", "url", device, "error", err)
			continue
		}
		total += size
	}
	return total
}

func (e *Engine) skipFrom(result *Result, plan *Plan, from int, tracker *progress.OperationTracker) {
	for i := from; i < len(result.Points); i++ {
		result.Points[i].Status = StatusSkipped
		if tracker != nil {
			tracker.AddStep(plan.Points[i].Label(), "not attempted").Skip("an earlier point failed")
		}
		if e.metrics != nil {
			e.metrics.RecordPoint(plan.Database, string(plan.Points[i].Type), StatusSkipped, time.Time{}, 0)
		}
	}
}

// urlChecker avoids handing Safety a typed nil
func (e *Engine) urlChecker() URLChecker {
	if e.cloud == nil {
		return nil
	}
	return e.cloud
}

func (e *Engine) operationID() string {
	if e.audit != nil {
		return e.audit.SessionID()
	}
	return uuid.NewString()
}

func newResult(plan *Plan) *Result {
	result := &Result{
		Database: plan.Database,
		Points:   make([]PointResult, len(plan.Points)),
	}
	for i := range plan.Points {
		p := &plan.Points[i]
		pr := PointResult{
			Order:     p.Order,
			Type:      p.Type,
			Statement: p.Statement,
			Status:    StatusPlanned,
		}
		for _, r := range p.Relocations {
			pr.Files = append(pr.Files, r.To)
		}
		result.Points[i] = pr
	}
	return result
}
