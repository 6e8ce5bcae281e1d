package restore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
)

// Order keys for database backups. Log points use the unix-nano start time
// of the log backup, which is always far larger.
const (
	OrderFull         int64 = 1
	OrderDifferential int64 = 2
)

// RestorePoint is one RESTORE statement: every device of one backup set
type RestorePoint struct {
	Order       int64
	Type        metadata.BackupType
	Key         string // first LSN for full/differential, backup set for logs
	Descriptors []metadata.BackupFileDescriptor
	Recovery    pitr.RecoveryMode
	StopAt      time.Time // zero unless the cutoff lands in this point
	Relocations []Relocation
	Statement   string
}

// Devices returns the backup device paths in the order they were given
func (p *RestorePoint) Devices() []string {
	devices := make([]string, len(p.Descriptors))
	for i, d := range p.Descriptors {
		devices[i] = d.Path
	}
	return devices
}

// IsURL reports whether the point restores from URL devices
func (p *RestorePoint) IsURL() bool {
	return len(p.Descriptors) > 0 && p.Descriptors[0].IsURL()
}

// Position is the backup set position on the media; zero when unknown
func (p *RestorePoint) Position() int {
	if len(p.Descriptors) == 0 {
		return 0
	}
	return p.Descriptors[0].Position
}

// Size is the recorded backup size over all devices
func (p *RestorePoint) Size() int64 {
	var total int64
	for _, d := range p.Descriptors {
		total += d.SizeBytes
	}
	return total
}

// StartTime is the earliest start time of the point's devices
func (p *RestorePoint) StartTime() time.Time {
	var t time.Time
	for _, d := range p.Descriptors {
		if !d.StartTime.IsZero() && (t.IsZero() || d.StartTime.Before(t)) {
			t = d.StartTime
		}
	}
	return t
}

// EndTime is the latest finish time of the point's devices
func (p *RestorePoint) EndTime() time.Time {
	var t time.Time
	for _, d := range p.Descriptors {
		if end := d.EndTime(); end.After(t) {
			t = end
		}
	}
	return t
}

// FirstLSN returns the smallest known first LSN of the point
func (p *RestorePoint) FirstLSN() metadata.LSN {
	var lsn metadata.LSN
	for _, d := range p.Descriptors {
		if !d.FirstLSN.IsZero() && (lsn.IsZero() || d.FirstLSN.Less(lsn)) {
			lsn = d.FirstLSN
		}
	}
	return lsn
}

// LastLSN returns the largest known last LSN of the point
func (p *RestorePoint) LastLSN() metadata.LSN {
	var lsn metadata.LSN
	for _, d := range p.Descriptors {
		if !d.LastLSN.IsZero() && (lsn.IsZero() || lsn.Less(d.LastLSN)) {
			lsn = d.LastLSN
		}
	}
	return lsn
}

// Label is a short human-readable name for progress output
func (p *RestorePoint) Label() string {
	if p.Type == metadata.BackupTypeLog {
		if start := p.StartTime(); !start.IsZero() {
			return fmt.Sprintf("log %s", start.Format("2006-01-02 15:04:05"))
		}
	}
	if p.Key != "" {
		return fmt.Sprintf("%s %s", p.Type, p.Key)
	}
	return string(p.Type)
}

// Plan is the ordered restore sequence for one database
type Plan struct {
	Database      string
	Points        []RestorePoint
	Target        pitr.RecoveryTarget
	Continue      bool
	CutoffApplied bool
	Warnings      []string
}

// TotalSize sums the recorded sizes of all points
func (p *Plan) TotalSize() int64 {
	var total int64
	for i := range p.Points {
		total += p.Points[i].Size()
	}
	return total
}

// HasURLDevices reports whether any point restores from URL
func (p *Plan) HasURLDevices() bool {
	for i := range p.Points {
		if p.Points[i].IsURL() {
			return true
		}
	}
	return false
}

// Script renders the plan as a T-SQL batch script
func (p *Plan) Script() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Restore plan for [%s]: %d point(s)\n", p.Database, len(p.Points))
	fmt.Fprintf(&sb, "-- %s\n", p.Target.Summary())
	for _, w := range p.Warnings {
		fmt.Fprintf(&sb, "-- WARNING: %s\n", w)
	}
	for i := range p.Points {
		fmt.Fprintf(&sb, "\n-- %d: %s\n", i+1, p.Points[i].Label())
		sb.WriteString(p.Points[i].Statement)
		sb.WriteString("\nGO\n")
	}
	return sb.String()
}

// BuildPlan validates opts and computes the restore sequence for
// descriptors. No server interaction takes place.
func BuildPlan(descriptors []metadata.BackupFileDescriptor, opts *Options) (*Plan, error) {
	return buildPlanAt(descriptors, opts, time.Now())
}

func buildPlanAt(descriptors []metadata.BackupFileDescriptor, opts *Options, now time.Time) (*Plan, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.Validate(descriptors); err != nil {
		return nil, err
	}

	database, err := targetDatabase(descriptors, opts)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Database: database,
		Target:   opts.Target,
		Continue: opts.Continue,
	}

	fulls, diffs, logs := partition(descriptors)

	cutoff := time.Time{}
	if opts.Target.HasCutoff(now) {
		if isSimpleRecovery(descriptors) {
			plan.Warnings = append(plan.Warnings, "database uses the SIMPLE recovery model; restore time ignored")
		} else {
			cutoff = opts.Target.Time
		}
	}

	full := selectBase(fulls, nil, cutoff)
	if full == nil && len(fulls) > 0 {
		return nil, configErrorf("restore-time", "no full backup finished before %s", cutoff.Format(time.RFC3339))
	}
	if full == nil && !opts.Continue {
		return nil, configErrorf("backups", "no full backup given; use continue to resume a database left restoring")
	}

	diff := selectBase(diffs, full, cutoff)

	base := diff
	if base == nil {
		base = full
	}

	logPoints := filterLogs(logs, base)
	if err := checkLogChain(logPoints, base); err != nil {
		return nil, err
	}

	if !cutoff.IsZero() {
		var reached bool
		logPoints, reached = truncateAt(logPoints, cutoff)
		switch {
		case reached:
			plan.CutoffApplied = true
		case len(logPoints) > 0:
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("restore time %s is after the last log backup; restoring to the end of the chain",
					cutoff.Format("2006-01-02 15:04:05")))
		default:
			plan.Warnings = append(plan.Warnings, "no log backups after the base backup; restore time ignored")
		}
	}

	var points []RestorePoint
	if full != nil && !opts.Continue {
		points = append(points, *full)
	}
	if diff != nil {
		points = append(points, *diff)
	}
	points = append(points, logPoints...)

	if len(points) == 0 {
		return nil, configErrorf("continue", "nothing to restore after skipping the full backup")
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Order < points[j].Order
	})

	for i := range points {
		p := &points[i]
		if err := checkDevices(p); err != nil {
			return nil, err
		}

		p.Recovery = pitr.ModeNoRecovery
		if i == len(points)-1 {
			p.Recovery = opts.Target.EffectiveMode()
			if plan.CutoffApplied && p.Type == metadata.BackupTypeLog {
				p.StopAt = cutoff
			}
		}

		if p.Type.IsDatabase() {
			p.Relocations = RelocateFiles(p, opts)
		}
		p.Statement = BuildStatement(database, p, opts, i == 0)
	}

	plan.Points = points
	return plan, nil
}

func targetDatabase(descriptors []metadata.BackupFileDescriptor, opts *Options) (string, error) {
	var source string
	for _, d := range descriptors {
		if d.Database == "" {
			continue
		}
		if source == "" {
			source = d.Database
		} else if !strings.EqualFold(source, d.Database) {
			return "", configErrorf("backups", "backups belong to different databases (%s, %s)", source, d.Database)
		}
	}

	if opts.TargetDatabase != "" {
		return opts.TargetDatabase, nil
	}
	if descriptors[0].Database != "" {
		return descriptors[0].Database, nil
	}
	if source == "" {
		return "", configErrorf("database", "no target database given and none recorded in the backups")
	}
	return source, nil
}

func isSimpleRecovery(descriptors []metadata.BackupFileDescriptor) bool {
	for i := range descriptors {
		if descriptors[i].IsSimpleRecovery() {
			return true
		}
	}
	return false
}

// partition groups descriptors into restore points per backup type. Devices
// keep the order in which they were given.
func partition(descriptors []metadata.BackupFileDescriptor) (fulls, diffs, logs []RestorePoint) {
	index := make(map[string]int)
	add := func(points []RestorePoint, bucket string, key string, order int64, d metadata.BackupFileDescriptor) []RestorePoint {
		id := bucket + "|" + key
		if i, ok := index[id]; ok {
			points[i].Descriptors = append(points[i].Descriptors, d)
			return points
		}
		index[id] = len(points)
		return append(points, RestorePoint{
			Order:       order,
			Type:        d.Type,
			Key:         key,
			Descriptors: []metadata.BackupFileDescriptor{d},
		})
	}

	for _, d := range descriptors {
		switch d.Type {
		case metadata.BackupTypeFull:
			fulls = add(fulls, "full", databaseKey(d), OrderFull, d)
		case metadata.BackupTypeDifferential:
			diffs = add(diffs, "diff", databaseKey(d), OrderDifferential, d)
		case metadata.BackupTypeLog:
			logs = add(logs, "log", logKey(d), 0, d)
		}
	}

	// Striped logs may list a later stripe first
	for i := range logs {
		if start := logs[i].StartTime(); !start.IsZero() {
			logs[i].Order = start.UnixNano()
		}
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Order != logs[j].Order {
			return logs[i].Order < logs[j].Order
		}
		return logs[i].FirstLSN().Less(logs[j].FirstLSN())
	})

	return fulls, diffs, logs
}

func databaseKey(d metadata.BackupFileDescriptor) string {
	switch {
	case !d.FirstLSN.IsZero():
		return d.FirstLSN.String()
	case d.BackupSetID != "":
		return d.BackupSetID
	default:
		return fmt.Sprintf("%s#%d", d.StartTime.UTC().Format(time.RFC3339Nano), d.Position)
	}
}

func logKey(d metadata.BackupFileDescriptor) string {
	switch {
	case d.BackupSetID != "":
		return d.BackupSetID
	case !d.FirstLSN.IsZero():
		return fmt.Sprintf("%s#%d", d.FirstLSN, d.Position)
	default:
		return fmt.Sprintf("%s#%d", d.StartTime.UTC().Format(time.RFC3339Nano), d.Position)
	}
}

// selectBase picks the most recent full or differential point that finished
// by the cutoff. Differentials must also belong to after. Returns nil when
// nothing qualifies.
func selectBase(points []RestorePoint, after *RestorePoint, cutoff time.Time) *RestorePoint {
	var best *RestorePoint
	for i := range points {
		p := &points[i]
		if !cutoff.IsZero() && p.EndTime().After(cutoff) {
			continue
		}
		if after != nil && !basedOn(p, after) {
			continue
		}
		if best == nil || p.EndTime().After(best.EndTime()) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	selected := *best
	return &selected
}

// basedOn reports whether differential diff applies on top of full
func basedOn(diff, full *RestorePoint) bool {
	baseLSN := diff.Descriptors[0].DatabaseBackupLSN
	checkpoint := full.Descriptors[0].CheckpointLSN
	if !baseLSN.IsZero() && !checkpoint.IsZero() {
		return baseLSN.Compare(checkpoint) == 0
	}
	return !diff.StartTime().Before(full.StartTime())
}

// filterLogs drops log backups already covered by base
func filterLogs(logs []RestorePoint, base *RestorePoint) []RestorePoint {
	if base == nil {
		return logs
	}
	baseLast := base.LastLSN()
	baseStart := base.StartTime()

	kept := make([]RestorePoint, 0, len(logs))
	for _, l := range logs {
		if last := l.LastLSN(); !last.IsZero() && !baseLast.IsZero() {
			if last.Compare(baseLast) <= 0 {
				continue
			}
		} else if !baseStart.IsZero() && l.EndTime().Before(baseStart) {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// checkLogChain reports LSN gaps between consecutive points. Only points
// with known LSNs are compared.
func checkLogChain(logs []RestorePoint, base *RestorePoint) error {
	var problems *multierror.Error

	prevLast := metadata.LSN("")
	prevLabel := ""
	if base != nil {
		prevLast = base.LastLSN()
		prevLabel = base.Label()
	}

	for i := range logs {
		first := logs[i].FirstLSN()
		if !first.IsZero() && !prevLast.IsZero() && prevLast.Less(first) {
			problems = multierror.Append(problems,
				fmt.Errorf("log chain broken between %s (last LSN %s) and %s (first LSN %s)",
					prevLabel, prevLast, logs[i].Label(), first))
		}
		prevLast = logs[i].LastLSN()
		prevLabel = logs[i].Label()
	}

	return newPreconditionError(problems)
}

// truncateAt keeps log points up to and including the first one that ends
// at or after cutoff. reached is false when no log covers the cutoff.
func truncateAt(logs []RestorePoint, cutoff time.Time) (kept []RestorePoint, reached bool) {
	for i := range logs {
		if !logs[i].EndTime().Before(cutoff) {
			return logs[:i+1], true
		}
	}
	return logs, false
}

func checkDevices(p *RestorePoint) error {
	url := p.IsURL()
	for _, d := range p.Descriptors {
		if d.IsURL() != url {
			return configErrorf("backups", "%s mixes URL and disk devices (%s)", p.Label(), d.Path)
		}
	}
	return nil
}
