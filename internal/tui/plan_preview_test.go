package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
	"sqlrestore/internal/restore"
)

func testPlan(t *testing.T) *restore.Plan {
	t.Helper()
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	descs := []metadata.BackupFileDescriptor{
		{Path: `\\backup\Sales_full.bak`, Type: metadata.BackupTypeFull, Database: "Sales", FirstLSN: "100", StartTime: start, SizeBytes: 1 << 20},
		{Path: `\\backup\Sales_log.trn`, Type: metadata.BackupTypeLog, Database: "Sales", FirstLSN: "110", StartTime: start.Add(time.Hour), BackupSetID: "set-1"},
	}
	plan, err := restore.BuildPlan(descs, &restore.Options{})
	require.NoError(t, err)
	return plan
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestPlanPreview_Confirm(t *testing.T) {
	m := NewPlanPreview(testPlan(t), "sqlprod01")

	updated, cmd := m.Update(keyMsg("enter"))
	require.NotNil(t, cmd)
	preview := updated.(PlanPreviewModel)
	assert.True(t, preview.Confirmed())
	assert.Contains(t, preview.View(), "Restoring Sales")
}

func TestPlanPreview_Cancel(t *testing.T) {
	for _, k := range []string{"esc", "n", "q"} {
		m := NewPlanPreview(testPlan(t), "sqlprod01")
		updated, cmd := m.Update(keyMsg(k))
		require.NotNil(t, cmd)
		assert.False(t, updated.(PlanPreviewModel).Confirmed(), k)
		assert.Contains(t, updated.(PlanPreviewModel).View(), "cancelled")
	}
}

func TestPlanPreview_NavigateAndShowStatement(t *testing.T) {
	m := NewPlanPreview(testPlan(t), "sqlprod01")
	view := m.View()
	assert.Contains(t, view, "Sales")
	assert.Contains(t, view, "NORECOVERY")
	assert.Contains(t, view, "2 point(s)")

	updated, _ := m.Update(keyMsg("down"))
	updated, _ = updated.Update(keyMsg("down"))
	updated, _ = updated.Update(keyMsg("s"))
	preview := updated.(PlanPreviewModel)

	assert.Equal(t, 1, preview.cursor)
	assert.Contains(t, preview.View(), "RESTORE LOG [Sales]")
}

func TestPlanPreview_ShowsWarnings(t *testing.T) {
	plan := testPlan(t)
	plan.Warnings = []string{"database uses the SIMPLE recovery model"}
	plan.Target = pitr.RecoveryTarget{Mode: pitr.ModeStandby, StandbyDir: `S:\Standby`}

	view := NewPlanPreview(plan, "sqlprod01").View()
	assert.Contains(t, view, "SIMPLE recovery model")
	assert.Contains(t, view, "STANDBY")
}
