package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sqlrestore/internal/logger"
)

// PointMetrics holds performance metrics for one executed restore point
type PointMetrics struct {
	Database       string        `json:"database"`
	BackupType     string        `json:"backup_type"`
	Status         string        `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
	SizeBytes      int64         `json:"size_bytes"`
	ThroughputMBps float64       `json:"throughput_mbps"`
	Success        bool          `json:"success"`
}

// Config controls where collected metrics are exported
type Config struct {
	TextfilePath   string        // node_exporter textfile collector target
	PushgatewayURL string        // Prometheus Pushgateway base URL
	JobName        string        // Pushgateway job name
	Timeout        time.Duration // Pushgateway timeout
}

// MetricsCollector collects metrics for one restore session. It is created
// per invocation and handed to the engine; there is no process-wide instance.
type MetricsCollector struct {
	cfg     Config
	metrics []PointMetrics
	mu      sync.RWMutex
	logger  logger.Logger

	registry      *prometheus.Registry
	pointsTotal   *prometheus.CounterVec
	pointDuration *prometheus.HistogramVec
	bytesRestored *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
}

// NewMetricsCollector creates a new metrics collector with its own registry.
// Registers:
//   - sqlrestore_points_total (counter)
//   - sqlrestore_point_duration_seconds (histogram)
//   - sqlrestore_bytes_restored_total (counter)
//   - sqlrestore_last_success_timestamp_seconds (gauge)
func NewMetricsCollector(cfg Config, log logger.Logger) (*MetricsCollector, error) {
	if cfg.JobName == "" {
		cfg.JobName = "sqlrestore"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	registry := prometheus.NewRegistry()

	pointsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqlrestore",
			Name:      "points_total",
			Help:      "Restore points processed, by outcome",
		},
		[]string{"database", "type", "status"},
	)

	// Buckets span log restores (seconds) to large full restores (hours)
	pointDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sqlrestore",
			Name:      "point_duration_seconds",
			Help:      "Duration of a single RESTORE statement in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"database", "type"},
	)

	bytesRestored := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqlrestore",
			Name:      "bytes_restored_total",
			Help:      "Backup bytes applied by successful restore points",
		},
		[]string{"database"},
	)

	lastSuccess := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sqlrestore",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful restore plan",
		},
		[]string{"database"},
	)

	for _, c := range []prometheus.Collector{pointsTotal, pointDuration, bytesRestored, lastSuccess} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return &MetricsCollector{
		cfg:           cfg,
		metrics:       make([]PointMetrics, 0),
		logger:        log,
		registry:      registry,
		pointsTotal:   pointsTotal,
		pointDuration: pointDuration,
		bytesRestored: bytesRestored,
		lastSuccess:   lastSuccess,
	}, nil
}

// RecordPoint records metrics for a restore point that ran or was skipped
func (mc *MetricsCollector) RecordPoint(database, backupType, status string, start time.Time, sizeBytes int64) {
	var duration time.Duration
	if !start.IsZero() {
		duration = time.Since(start)
	}
	success := status == "completed"

	metric := PointMetrics{
		Database:       database,
		BackupType:     backupType,
		Status:         status,
		StartTime:      start,
		Duration:       duration,
		SizeBytes:      sizeBytes,
		ThroughputMBps: calculateThroughput(sizeBytes, duration),
		Success:        success,
	}

	mc.mu.Lock()
	mc.metrics = append(mc.metrics, metric)
	mc.mu.Unlock()

	db := sanitizeLabel(database)
	mc.pointsTotal.WithLabelValues(db, backupType, status).Inc()
	if !start.IsZero() {
		mc.pointDuration.WithLabelValues(db, backupType).Observe(duration.Seconds())
	}
	if success {
		mc.bytesRestored.WithLabelValues(db).Add(float64(sizeBytes))
	}

	if mc.logger != nil {
		mc.logger.Debug("Restore point metrics",
			"database", database,
			"type", backupType,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"size_bytes", sizeBytes,
			"throughput_mbps", metric.ThroughputMBps)
	}
}

// RecordPlanComplete stamps a fully successful plan
func (mc *MetricsCollector) RecordPlanComplete(database string, at time.Time) {
	mc.lastSuccess.WithLabelValues(sanitizeLabel(database)).Set(float64(at.Unix()))
}

// GetMetrics returns a copy of all collected metrics
func (mc *MetricsCollector) GetMetrics() []PointMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]PointMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// GetAverages calculates average performance metrics over executed points
func (mc *MetricsCollector) GetAverages() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var totalDuration time.Duration
	var totalSize, totalThroughput float64
	var executed, successCount int

	for _, m := range mc.metrics {
		if m.StartTime.IsZero() {
			continue
		}
		executed++
		totalDuration += m.Duration
		totalSize += float64(m.SizeBytes)
		totalThroughput += m.ThroughputMBps
		if m.Success {
			successCount++
		}
	}

	if executed == 0 {
		return map[string]interface{}{}
	}

	return map[string]interface{}{
		"total_points":        executed,
		"success_rate":        float64(successCount) / float64(executed) * 100,
		"avg_duration_ms":     totalDuration.Milliseconds() / int64(executed),
		"avg_size_mb":         totalSize / float64(executed) / 1024 / 1024,
		"avg_throughput_mbps": totalThroughput / float64(executed),
	}
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Export writes the textfile and pushes to the Pushgateway, whichever are
// configured. Export failures are logged and never fail the restore.
func (mc *MetricsCollector) Export(ctx context.Context) {
	if mc.cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(mc.cfg.TextfilePath, mc.registry); err != nil {
			mc.logger.Warn("Failed to write metrics textfile", "path", mc.cfg.TextfilePath, "error", err)
		} else {
			mc.logger.Debug("Metrics written", "path", mc.cfg.TextfilePath)
		}
	}

	if mc.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(ctx, mc.cfg.Timeout)
		defer cancel()

		pusher := push.New(mc.cfg.PushgatewayURL, mc.cfg.JobName).Gatherer(mc.registry)
		if err := pusher.AddContext(pushCtx); err != nil {
			mc.logger.Warn("Failed to push metrics", "url", mc.cfg.PushgatewayURL, "error", err)
		} else {
			mc.logger.Debug("Metrics pushed", "url", mc.cfg.PushgatewayURL, "job", mc.cfg.JobName)
		}
	}
}

// calculateThroughput calculates MB/s throughput
func calculateThroughput(bytes int64, duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(bytes) / seconds / 1024 / 1024
}

const maxLabelLength = 128

// sanitizeLabel keeps database names from breaking the text format or
// blowing up label length
func sanitizeLabel(value string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}
		return r
	}, value)

	runes := []rune(clean)
	if len(runes) > maxLabelLength {
		return string(runes[:maxLabelLength])
	}
	return clean
}
