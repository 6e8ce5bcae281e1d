package progress

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETAEstimator_ItemWeighted(t *testing.T) {
	e := NewETAEstimator("restore", 4, 0)
	assert.Equal(t, 0.0, e.GetProgress())
	assert.Equal(t, time.Duration(0), e.GetETA())
	assert.Equal(t, "calculating...", e.FormatETA())

	e.startTime = time.Now().Add(-10 * time.Second)
	e.UpdateProgress(2, 0)
	assert.Equal(t, 50, e.Percent())

	eta := e.GetETA()
	assert.InDelta(t, float64(10*time.Second), float64(eta), float64(time.Second))
}

func TestETAEstimator_ByteWeighted(t *testing.T) {
	e := NewETAEstimator("restore", 3, 1000)
	e.startTime = time.Now().Add(-30 * time.Second)

	// the full backup dominates: one point of three but 90% of the bytes
	e.UpdateProgress(1, 900)
	assert.Equal(t, 90, e.Percent())
	assert.Less(t, e.GetETA(), 5*time.Second)

	e.UpdateProgress(3, 1000)
	assert.Equal(t, 100, e.Percent())
	assert.Equal(t, time.Duration(0), e.GetETA())
}

func TestETAEstimator_FormatProgress(t *testing.T) {
	e := NewETAEstimator("restore", 13, 0)
	assert.Equal(t, "0/13 points (0%)", e.FormatProgress())

	e.UpdateProgress(5, 0)
	assert.Equal(t, "5/13 points (38%)", e.FormatProgress())
}

func TestETAEstimator_GetFullStatus(t *testing.T) {
	e := NewETAEstimator("restore", 13, 0)
	assert.Equal(t, "Restoring Sales | 0/13 points | Starting...", e.GetFullStatus("Restoring Sales"))

	e.startTime = time.Now().Add(-30 * time.Second)
	e.UpdateProgress(5, 0)
	status := e.GetFullStatus("Restoring Sales")
	assert.Contains(t, status, "5/13 points")
	assert.Contains(t, status, "38%")
	assert.Contains(t, status, "Elapsed:")
	assert.Contains(t, status, "ETA:")

	empty := NewETAEstimator("restore", 0, 0)
	status = empty.GetFullStatus("Restoring Sales")
	assert.Contains(t, status, "Elapsed:")
	assert.NotContains(t, status, "0/0")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "< 1s"},
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m"},
		{3*time.Minute + 10*time.Second, "3m 10s"},
		{90 * time.Minute, "1h 30m"},
		{120 * time.Minute, "2h"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatDuration(tt.duration), tt.duration.String())
	}
}

type recordingLogger struct {
	infos, errs int
}

func (r *recordingLogger) Info(string, ...any)  { r.infos++ }
func (r *recordingLogger) Warn(string, ...any)  {}
func (r *recordingLogger) Error(string, ...any) { r.errs++ }
func (r *recordingLogger) Debug(string, ...any) {}

func TestDetailedReporter_StepsAndSummary(t *testing.T) {
	var out bytes.Buffer
	log := &recordingLogger{}
	dr := NewDetailedReporter(NewLineByLineWriter(&out), log)

	op := dr.StartOperation("op-1", "Sales", "restore")
	step := op.AddStep("point 1", "RESTORE DATABASE")
	op.UpdateProgress(50, "point 1/2")
	step.Complete("done")

	step2 := op.AddStep("point 2", "RESTORE LOG")
	step2.Fail(errors.New("Msg 4305"))
	op.Fail(errors.New("restore point 2 failed"))

	status := dr.GetOperationStatus("op-1")
	require.NotNil(t, status)
	assert.Equal(t, "failed", status.Status)
	require.Len(t, status.Steps, 2)
	assert.Equal(t, "completed", status.Steps[0].Status)
	assert.Equal(t, "failed", status.Steps[1].Status)
	assert.Equal(t, "Msg 4305", status.Steps[1].Message)

	summary := dr.GetSummary()
	assert.Equal(t, 1, summary.TotalOperations)
	assert.Equal(t, 1, summary.FailedOperations)
	assert.Contains(t, summary.FormatSummary(), "Failed: 1")

	assert.Contains(t, out.String(), "[50%] point 1/2")
	assert.Contains(t, out.String(), "❌ restore point 2 failed")
	assert.Equal(t, 2, log.errs)
	assert.Nil(t, dr.GetOperationStatus("missing"))
}

func TestDetailedReporter_PercentIndicator(t *testing.T) {
	var out bytes.Buffer
	dr := NewDetailedReporter(NewProgressBarWriter(&out, 100), &recordingLogger{})

	op := dr.StartOperation("op-1", "Sales", "restore")
	op.UpdateProgress(25, "point 1/4")
	op.Complete("restored")

	assert.Contains(t, out.String(), "25%")
	assert.Contains(t, out.String(), "✅ restored")
	assert.Equal(t, "completed", dr.GetOperationStatus("op-1").Status)
}

func TestNewIndicator(t *testing.T) {
	assert.IsType(t, &LineByLine{}, NewIndicator(false, "bar"))
	assert.IsType(t, &ProgressBar{}, NewIndicator(true, "bar"))
	assert.IsType(t, &Light{}, NewIndicator(true, "light"))
	assert.IsType(t, &LineByLine{}, NewIndicator(true, "line"))

	quiet, ok := NewIndicator(true, "quiet").(*LineByLine)
	require.True(t, ok)
	assert.True(t, quiet.silent)
}
