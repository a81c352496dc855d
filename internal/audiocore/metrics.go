package audiocore

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/observability/metrics"
)

// MetricsCollector is a nil-safe facade over the prometheus engine metrics.
// Components record through it unconditionally; when metrics are disabled
// every call is a no-op.
type MetricsCollector struct {
	metrics *metrics.EngineMetrics
	enabled bool
}

var (
	globalMetrics     atomic.Pointer[MetricsCollector]
	globalMetricsOnce sync.Once
	metricsLogger     *slog.Logger
)

// InitMetrics initializes the global metrics collector. A nil instance
// disables collection.
func InitMetrics(engineMetrics *metrics.EngineMetrics) {
	globalMetricsOnce.Do(func() {
		metricsLogger = logging.ForService("audiocore")
		if metricsLogger == nil {
			metricsLogger = slog.Default()
		}
		metricsLogger = metricsLogger.With("component", "metrics")

		mc := &MetricsCollector{
			metrics: engineMetrics,
			enabled: engineMetrics != nil,
		}
		globalMetrics.Store(mc)

		if engineMetrics != nil {
			metricsLogger.Info("metrics collector initialized")
		} else {
			metricsLogger.Debug("metrics collector disabled")
		}
	})
}

// GetMetrics returns the global metrics collector, or a disabled one when
// InitMetrics has not run.
func GetMetrics() *MetricsCollector {
	mc := globalMetrics.Load()
	if mc == nil {
		return &MetricsCollector{enabled: false}
	}
	return mc
}

// SetActiveStreams updates the active stream gauge
func (mc *MetricsCollector) SetActiveStreams(n int) {
	if !mc.enabled {
		return
	}
	mc.metrics.SetActiveStreams(n)
}

// RecordStreamStart records a stream initialization attempt
func (mc *MetricsCollector) RecordStreamStart(success bool) {
	if !mc.enabled {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	mc.metrics.RecordStreamStart(status)
}

// RecordStreamFailure records a terminal stream failure
func (mc *MetricsCollector) RecordStreamFailure(reason string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordStreamFailure(reason)
}

// RecordProcessedChunk records a successfully processed chunk
func (mc *MetricsCollector) RecordProcessedChunk(streamID string, duration time.Duration) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordProcessedChunk(streamID, duration.Seconds())
}

// RecordProcessingError records a processing error
func (mc *MetricsCollector) RecordProcessingError(streamID, errorType string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordProcessingError(streamID, errorType)
}

// RecordDeadlineMiss records a per-chunk deadline miss
func (mc *MetricsCollector) RecordDeadlineMiss(streamID string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordDeadlineMiss(streamID)
	metricsLogger.Warn("processing deadline missed", "stream_id", streamID)
}

// RecordRecoveryAttempt records an overrun recovery attempt
func (mc *MetricsCollector) RecordRecoveryAttempt(streamID, outcome string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordRecoveryAttempt(streamID, outcome)
}

// UpdateBufferLevel updates the per-stream buffer level gauge
func (mc *MetricsCollector) UpdateBufferLevel(streamID string, level int) {
	if !mc.enabled {
		return
	}
	mc.metrics.UpdateBufferLevel(streamID, level)
}

// RecordBufferOverflow records a ring buffer overflow event
func (mc *MetricsCollector) RecordBufferOverflow(streamID string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordBufferOverflow(streamID)
}

// RecordBufferUnderflow records a ring buffer underflow event
func (mc *MetricsCollector) RecordBufferUnderflow(streamID string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordBufferUnderflow(streamID)
}

// RecordBufferResize records an adaptive buffer resize
func (mc *MetricsCollector) RecordBufferResize(streamID string, grew bool) {
	if !mc.enabled {
		return
	}
	direction := "shrink"
	if grew {
		direction = "grow"
	}
	mc.metrics.RecordBufferResize(streamID, direction)
}

// RecordConversion records a format conversion
func (mc *MetricsCollector) RecordConversion(sourceFormat, targetFormat string, err error, duration time.Duration) {
	if !mc.enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	mc.metrics.RecordConversion(sourceFormat, targetFormat, status, duration.Seconds())
}

// UpdateQualityScore updates the per-stream quality score gauge
func (mc *MetricsCollector) UpdateQualityScore(streamID string, score float64) {
	if !mc.enabled {
		return
	}
	mc.metrics.UpdateQualityScore(streamID, score)
}

// RecordAlert records a quality threshold alert
func (mc *MetricsCollector) RecordAlert(threshold, severity string) {
	if !mc.enabled {
		return
	}
	mc.metrics.RecordAlert(threshold, severity)
}

// UpdateBuffersInUse updates the scratch pool in-use gauge for a tier
func (mc *MetricsCollector) UpdateBuffersInUse(tier string, n int) {
	if !mc.enabled {
		return
	}
	mc.metrics.UpdateBuffersInUse(tier, n)
}

// RecordBufferAllocation records a scratch buffer allocation
func (mc *MetricsCollector) RecordBufferAllocation(tier string, fromPool bool) {
	if !mc.enabled {
		return
	}
	allocationType := "pooled"
	if !fromPool {
		allocationType = "custom"
	}
	mc.metrics.RecordBufferAllocation(tier, allocationType)
}
