package restore

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
)

var planNow = t0.Add(24 * time.Hour)

func pointTypes(plan *Plan) []metadata.BackupType {
	types := make([]metadata.BackupType, len(plan.Points))
	for i, p := range plan.Points {
		types[i] = p.Type
	}
	return types
}

func TestBuildPlan_FullFirstThenLogsAscending(t *testing.T) {
	plan, err := buildPlanAt(exampleChain(), &Options{}, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 3)
	assert.Equal(t, "Sales", plan.Database)
	assert.Equal(t, []metadata.BackupType{
		metadata.BackupTypeFull, metadata.BackupTypeLog, metadata.BackupTypeLog,
	}, pointTypes(plan))

	assert.Equal(t, OrderFull, plan.Points[0].Order)
	assert.Equal(t, "100", plan.Points[0].Key)
	assert.Equal(t, "set-1", plan.Points[1].Key)
	assert.Equal(t, "set-2", plan.Points[2].Key)
	assert.Less(t, plan.Points[1].Order, plan.Points[2].Order)

	assert.Equal(t, pitr.ModeNoRecovery, plan.Points[0].Recovery)
	assert.Equal(t, pitr.ModeNoRecovery, plan.Points[1].Recovery)
	assert.Equal(t, pitr.ModeRecovery, plan.Points[2].Recovery)
	assert.True(t, plan.Points[2].StopAt.IsZero())
	assert.False(t, plan.CutoffApplied)
}

func TestBuildPlan_CutoffTruncatesLogChain(t *testing.T) {
	t1 := t0.Add(time.Hour)
	opts := &Options{Target: pitr.RecoveryTarget{Time: t1}}

	plan, err := buildPlanAt(exampleChain(), opts, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 2)
	assert.Equal(t, "100", plan.Points[0].Key)
	assert.Equal(t, "set-1", plan.Points[1].Key)
	assert.Equal(t, pitr.ModeRecovery, plan.Points[1].Recovery)
	assert.Equal(t, t1, plan.Points[1].StopAt)
	assert.True(t, plan.CutoffApplied)
	assert.Contains(t, plan.Points[1].Statement, "STOPAT = N'2026-03-01T23:00:00.000'")
	assert.NotContains(t, plan.Points[0].Statement, "STOPAT")
}

func TestBuildPlan_CutoffInsideLogBackup(t *testing.T) {
	// 22:30 lies inside the log backup taken at 23:00
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(30 * time.Minute)}}

	plan, err := buildPlanAt(exampleChain(), opts, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 2)
	assert.Equal(t, "set-1", plan.Points[1].Key)
	assert.Contains(t, plan.Points[1].Statement, "STOPAT = N'2026-03-01T22:30:00.000'")
}

func TestBuildPlan_FutureCutoffRestoresLatest(t *testing.T) {
	opts := &Options{Target: pitr.RecoveryTarget{Time: planNow.Add(time.Hour)}}

	plan, err := buildPlanAt(exampleChain(), opts, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 3)
	for _, p := range plan.Points {
		assert.NotContains(t, p.Statement, "STOPAT")
	}
}

func TestBuildPlan_CutoffAfterLastLog(t *testing.T) {
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(5 * time.Hour)}}

	plan, err := buildPlanAt(exampleChain(), opts, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 3)
	assert.False(t, plan.CutoffApplied)
	assert.True(t, plan.Points[2].StopAt.IsZero())
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0], "after the last log backup")
}

func TestBuildPlan_CutoffBeforeEarliestBackup(t *testing.T) {
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(-time.Hour)}}

	_, err := buildPlanAt(exampleChain(), opts, planNow)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "restore-time", cfgErr.Option)
}

func TestBuildPlan_SimpleRecoveryIgnoresCutoff(t *testing.T) {
	descs := exampleChain()
	for i := range descs {
		descs[i].RecoveryModel = "SIMPLE"
	}
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(time.Hour)}}

	plan, err := buildPlanAt(descs, opts, planNow)
	require.NoError(t, err)

	assert.Len(t, plan.Points, 3)
	assert.False(t, plan.CutoffApplied)
	require.NotEmpty(t, plan.Warnings)
	assert.Contains(t, plan.Warnings[0], "SIMPLE")
}

func TestBuildPlan_SimpleRecoveryAcceptsEarlyCutoff(t *testing.T) {
	descs := exampleChain()
	for i := range descs {
		descs[i].RecoveryModel = "SIMPLE"
	}
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(-time.Hour)}}

	plan, err := buildPlanAt(descs, opts, planNow)
	require.NoError(t, err)

	assert.Len(t, plan.Points, 3)
	assert.False(t, plan.CutoffApplied)
}

func TestBuildPlan_LogWithoutStartTimeRejected(t *testing.T) {
	full := fullBackup(`\\backup\Sales_full.bak`, "100", t0)
	full.LastLSN = "105"
	logDesc := logBackup(`\\backup\Sales_log.trn`, "set-1", "105", time.Time{})
	logDesc.LastLSN = "120"

	for _, descs := range [][]metadata.BackupFileDescriptor{
		{full, logDesc},
		{logDesc, full},
	} {
		_, err := buildPlanAt(descs, &Options{}, planNow)
		require.Error(t, err)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "backups", cfgErr.Option)
		assert.Contains(t, cfgErr.Message, "no start time")
	}

	// Without LSNs the log is matched by time, so it must not vanish either
	full.LastLSN = ""
	logDesc.FirstLSN, logDesc.LastLSN = "", ""
	_, err := buildPlanAt([]metadata.BackupFileDescriptor{full, logDesc}, &Options{}, planNow)
	assert.Error(t, err)
}

func TestBuildPlan_ContinueSkipsFull(t *testing.T) {
	plan, err := buildPlanAt(exampleChain(), &Options{Continue: true}, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 2)
	assert.Equal(t, metadata.BackupTypeLog, plan.Points[0].Type)
	assert.Equal(t, "set-1", plan.Points[0].Key)
	assert.True(t, strings.HasPrefix(plan.Points[0].Statement, "RESTORE LOG [Sales]"))
}

func TestBuildPlan_ContinueWithOnlyFull(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{fullBackup(`\\backup\Sales_full.bak`, "100", t0)}

	_, err := buildPlanAt(descs, &Options{Continue: true}, planNow)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "continue", cfgErr.Option)
}

func TestBuildPlan_ContinueWithoutFull(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		logBackup(`\\backup\Sales_log_1.trn`, "set-1", "110", t0.Add(time.Hour)),
	}

	plan, err := buildPlanAt(descs, &Options{Continue: true}, planNow)
	require.NoError(t, err)
	require.Len(t, plan.Points, 1)
	assert.Equal(t, pitr.ModeRecovery, plan.Points[0].Recovery)
}

func TestBuildPlan_RequiresFullBackup(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		logBackup(`\\backup\Sales_log_1.trn`, "set-1", "110", t0.Add(time.Hour)),
	}

	_, err := buildPlanAt(descs, &Options{}, planNow)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "no full backup")
}

func TestBuildPlan_StripedBackupKeepsDeviceOrder(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		fullBackup(`\\backup\Sales_full_2.bak`, "100", t0),
		fullBackup(`\\backup\Sales_full_1.bak`, "100", t0),
	}

	plan, err := buildPlanAt(descs, &Options{}, planNow)
	require.NoError(t, err)

	require.Len(t, plan.Points, 1)
	assert.Equal(t, []string{`\\backup\Sales_full_2.bak`, `\\backup\Sales_full_1.bak`}, plan.Points[0].Devices())
	assert.Equal(t, int64(200*1024*1024), plan.Points[0].Size())
	assert.Contains(t, plan.Points[0].Statement,
		`FROM DISK = N'\\backup\Sales_full_2.bak', DISK = N'\\backup\Sales_full_1.bak' WITH`)
}

func TestBuildPlan_SelectsLatestFullAndMatchingDifferential(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		fullBackup(`\\backup\full_a.bak`, "100", t0),
		diffBackup(`\\backup\diff_a.bak`, "100", "150", t0.Add(time.Hour)),
		fullBackup(`\\backup\full_b.bak`, "200", t0.Add(3*time.Hour)),
		diffBackup(`\\backup\diff_b.bak`, "200", "250", t0.Add(4*time.Hour)),
	}

	plan, err := buildPlanAt(descs, &Options{}, planNow)
	require.NoError(t, err)
	require.Len(t, plan.Points, 2)
	assert.Equal(t, `\\backup\full_b.bak`, plan.Points[0].Devices()[0])
	assert.Equal(t, `\\backup\diff_b.bak`, plan.Points[1].Devices()[0])
	assert.Equal(t, OrderDifferential, plan.Points[1].Order)

	// A cutoff before the second full falls back to the first chain
	opts := &Options{Target: pitr.RecoveryTarget{Time: t0.Add(2 * time.Hour)}}
	plan, err = buildPlanAt(descs, opts, planNow)
	require.NoError(t, err)
	require.Len(t, plan.Points, 2)
	assert.Equal(t, `\\backup\full_a.bak`, plan.Points[0].Devices()[0])
	assert.Equal(t, `\\backup\diff_a.bak`, plan.Points[1].Devices()[0])
	assert.Equal(t, pitr.ModeRecovery, plan.Points[1].Recovery)
}

func TestBuildPlan_DropsLogsCoveredByBase(t *testing.T) {
	full := fullBackup(`\\backup\Sales_full.bak`, "100", t0)
	full.LastLSN = "105"

	oldLog := logBackup(`\\backup\old.trn`, "set-0", "90", t0.Add(-time.Hour))
	oldLog.LastLSN = "100"
	log1 := logBackup(`\\backup\log1.trn`, "set-1", "105", t0.Add(time.Hour))
	log1.LastLSN = "110"

	plan, err := buildPlanAt([]metadata.BackupFileDescriptor{oldLog, full, log1}, &Options{}, planNow)
	require.NoError(t, err)
	require.Len(t, plan.Points, 2)
	assert.Equal(t, "set-1", plan.Points[1].Key)
}

func TestBuildPlan_LogChainGap(t *testing.T) {
	full := fullBackup(`\\backup\Sales_full.bak`, "100", t0)
	full.LastLSN = "105"
	log1 := logBackup(`\\backup\log1.trn`, "set-1", "105", t0.Add(time.Hour))
	log1.LastLSN = "110"
	log2 := logBackup(`\\backup\log2.trn`, "set-2", "115", t0.Add(2*time.Hour))
	log2.LastLSN = "120"

	_, err := buildPlanAt([]metadata.BackupFileDescriptor{full, log1, log2}, &Options{}, planNow)
	require.Error(t, err)

	var preErr *PreconditionError
	require.True(t, errors.As(err, &preErr))
	assert.Equal(t, 1, preErr.Len())
	assert.Contains(t, err.Error(), "log chain broken")
}

func TestBuildPlan_StandbyOnLastPoint(t *testing.T) {
	opts := &Options{Target: pitr.RecoveryTarget{Mode: pitr.ModeStandby, StandbyDir: `S:\Standby`}}

	plan, err := buildPlanAt(exampleChain(), opts, planNow)
	require.NoError(t, err)

	last := plan.Points[len(plan.Points)-1]
	assert.Equal(t, pitr.ModeStandby, last.Recovery)
	assert.Contains(t, last.Statement, `STANDBY = N'S:\Standby\Sales_undo.ldf'`)
	assert.Contains(t, plan.Points[0].Statement, "NORECOVERY")
}

func TestBuildPlan_TargetDatabaseOverride(t *testing.T) {
	plan, err := buildPlanAt(exampleChain(), &Options{TargetDatabase: "Sales_Copy"}, planNow)
	require.NoError(t, err)

	assert.Equal(t, "Sales_Copy", plan.Database)
	for _, p := range plan.Points {
		assert.Contains(t, p.Statement, "[Sales_Copy]")
	}
}

func TestBuildPlan_MixedDevicesRejected(t *testing.T) {
	descs := []metadata.BackupFileDescriptor{
		fullBackup(`\\backup\Sales_full_1.bak`, "100", t0),
		fullBackup("https://acct.blob.core.windows.net/bak/Sales_full_2.bak", "100", t0),
	}

	_, err := buildPlanAt(descs, &Options{}, planNow)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "mixes URL and disk")
}

func TestPlanScript(t *testing.T) {
	plan, err := buildPlanAt(exampleChain(), &Options{}, planNow)
	require.NoError(t, err)

	script := plan.Script()
	assert.Equal(t, 3, strings.Count(script, "\nGO\n"))
	assert.Contains(t, script, "-- Restore plan for [Sales]: 3 point(s)")
	assert.Less(t, strings.Index(script, "RESTORE DATABASE"), strings.Index(script, "RESTORE LOG"))
}

func TestOptionsValidate(t *testing.T) {
	descs := exampleChain()

	tests := []struct {
		name   string
		opts   Options
		descs  []metadata.BackupFileDescriptor
		option string
	}{
		{name: "no backups", opts: Options{}, descs: []metadata.BackupFileDescriptor{}, option: "backups"},
		{
			name:   "mapping with data dir",
			opts:   Options{FileMapping: map[string]string{"Sales": `E:\Sales.mdf`}, DataDir: `E:\Data`},
			option: "file-mapping",
		},
		{
			name:   "mapping with log dir",
			opts:   Options{FileMapping: map[string]string{"Sales": `E:\Sales.mdf`}, LogDir: `F:\Log`},
			option: "file-mapping",
		},
		{
			name:   "unknown logical name",
			opts:   Options{FileMapping: map[string]string{"Salse": `E:\Sales.mdf`}},
			option: "file-mapping",
		},
		{name: "control character in data dir", opts: Options{DataDir: "D:\\Data\n"}, option: "data-dir"},
		{name: "block size not power of two", opts: Options{BlockSize: 3000}, option: "block-size"},
		{name: "block size too large", opts: Options{BlockSize: 131072}, option: "block-size"},
		{name: "negative buffer count", opts: Options{BufferCount: -1}, option: "buffer-count"},
		{name: "transfer size not aligned", opts: Options{MaxTransferSize: 100000}, option: "max-transfer-size"},
		{name: "transfer size too large", opts: Options{MaxTransferSize: 8 * 1024 * 1024}, option: "max-transfer-size"},
		{name: "stats out of range", opts: Options{Stats: 101}, option: "stats"},
		{name: "standby without dir", opts: Options{Target: pitr.RecoveryTarget{Mode: pitr.ModeStandby}}, option: "recovery"},
		{name: "continue with replace", opts: Options{Continue: true, Replace: true}, option: "continue"},
		{
			name: "different databases",
			opts: Options{},
			descs: append(exampleChain(), metadata.BackupFileDescriptor{
				Path: `\\backup\hr.trn`, Type: metadata.BackupTypeLog, Database: "HR", StartTime: t0,
			}),
			option: "backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := descs
			if tt.descs != nil {
				in = tt.descs
			}
			_, err := buildPlanAt(in, &tt.opts, planNow)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Equal(t, tt.option, cfgErr.Option)
		})
	}
}

func TestOptionsValidate_Accepts(t *testing.T) {
	opts := Options{
		FileMapping:     map[string]string{"sales": `E:\Sales.mdf`},
		BlockSize:       65536,
		BufferCount:     16,
		MaxTransferSize: 4 * 1024 * 1024,
		Stats:           5,
	}
	assert.NoError(t, opts.Validate(exampleChain()))
}
