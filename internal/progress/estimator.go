package progress

import (
	"fmt"
	"time"
)

// ETAEstimator estimates the time remaining for a restore plan. Restore time
// scales with backup size far more than with point count, so the estimate is
// weighted by bytes whenever the plan carries sizes.
type ETAEstimator struct {
	startTime  time.Time
	operation  string
	totalItems int
	totalBytes int64
	itemsDone  int
	bytesDone  int64
	lastUpdate time.Time
}

// NewETAEstimator creates a new ETA estimator
func NewETAEstimator(operation string, totalItems int, totalBytes int64) *ETAEstimator {
	now := time.Now()
	return &ETAEstimator{
		startTime:  now,
		operation:  operation,
		totalItems: totalItems,
		totalBytes: totalBytes,
		lastUpdate: now,
	}
}

// UpdateProgress records completed points and bytes
func (e *ETAEstimator) UpdateProgress(itemsDone int, bytesDone int64) {
	e.itemsDone = itemsDone
	e.bytesDone = bytesDone
	e.lastUpdate = time.Now()
}

// GetElapsed returns elapsed time since start
func (e *ETAEstimator) GetElapsed() time.Duration {
	return time.Since(e.startTime)
}

// fraction returns the completed share of the work in [0,1]
func (e *ETAEstimator) fraction() float64 {
	if e.totalBytes > 0 && e.bytesDone > 0 {
		f := float64(e.bytesDone) / float64(e.totalBytes)
		if f > 1 {
			f = 1
		}
		return f
	}
	if e.totalItems == 0 {
		return 0
	}
	return float64(e.itemsDone) / float64(e.totalItems)
}

// GetETA calculates estimated time remaining
func (e *ETAEstimator) GetETA() time.Duration {
	f := e.fraction()
	if f == 0 || f >= 1 {
		return 0
	}
	elapsed := e.GetElapsed()
	return time.Duration(float64(elapsed)/f) - elapsed
}

// GetProgress returns current progress as percentage
func (e *ETAEstimator) GetProgress() float64 {
	return e.fraction() * 100
}

// Percent returns progress rounded down to a whole percent
func (e *ETAEstimator) Percent() int {
	return int(e.GetProgress())
}

// FormatETA returns formatted ETA (e.g., "~40m remaining")
func (e *ETAEstimator) FormatETA() string {
	eta := e.GetETA()
	if eta == 0 {
		return "calculating..."
	}
	return "~" + FormatDuration(eta) + " remaining"
}

// FormatProgress returns formatted progress string (e.g., "2/5 points (38%)")
func (e *ETAEstimator) FormatProgress() string {
	return fmt.Sprintf("%d/%d points (%.0f%%)", e.itemsDone, e.totalItems, e.GetProgress())
}

// GetFullStatus returns complete status line with all info
func (e *ETAEstimator) GetFullStatus(baseMessage string) string {
	if e.totalItems == 0 {
		return fmt.Sprintf("%s | Elapsed: %s", baseMessage, FormatDuration(e.GetElapsed()))
	}

	if e.itemsDone == 0 {
		return fmt.Sprintf("%s | 0/%d points | Starting...", baseMessage, e.totalItems)
	}

	return fmt.Sprintf("%s | %s | Elapsed: %s | ETA: %s",
		baseMessage,
		e.FormatProgress(),
		FormatDuration(e.GetElapsed()),
		e.FormatETA())
}

// FormatDuration formats a duration in human-readable format
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}

	if minutes > 0 {
		if seconds > 5 { // Only show seconds if > 5
			return fmt.Sprintf("%dm %ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	}

	return fmt.Sprintf("%ds", seconds)
}
