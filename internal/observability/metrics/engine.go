// Package metrics provides engine metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for the audio engine
type EngineMetrics struct {
	registry *prometheus.Registry

	// Stream metrics
	activeStreams      prometheus.Gauge
	streamStarts       *prometheus.CounterVec
	streamFailures     *prometheus.CounterVec
	processedChunks    *prometheus.CounterVec
	processingErrors   *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	deadlineMisses     *prometheus.CounterVec
	recoveryAttempts   *prometheus.CounterVec

	// Buffer metrics
	bufferLevel     *prometheus.GaugeVec
	bufferOverflows *prometheus.CounterVec
	bufferUnderflow *prometheus.CounterVec
	bufferResizes   *prometheus.CounterVec

	// Converter metrics
	conversionsTotal   *prometheus.CounterVec
	conversionDuration prometheus.Histogram

	// Quality metrics
	qualityScore *prometheus.GaugeVec
	alertsTotal  *prometheus.CounterVec

	// Buffer pool metrics
	poolBuffersInUse *prometheus.GaugeVec
	poolAllocations  *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewEngineMetrics creates and registers new engine metrics
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamecalls_active_streams",
			Help: "Number of active audio streams",
		},
	)

	m.streamStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_stream_starts_total",
			Help: "Total number of stream initializations",
		},
		[]string{"status"},
	)

	m.streamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_stream_failures_total",
			Help: "Total number of terminal stream failures",
		},
		[]string{"reason"},
	)

	m.processedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_processed_chunks_total",
			Help: "Total number of audio chunks processed",
		},
		[]string{"stream_id"},
	)

	m.processingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_processing_errors_total",
			Help: "Total number of processing errors",
		},
		[]string{"stream_id", "error_type"},
	)

	m.processingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamecalls_processing_duration_seconds",
			Help:    "Time taken to process audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		},
		[]string{"stream_id"},
	)

	m.deadlineMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_deadline_misses_total",
			Help: "Total number of per-chunk deadline misses",
		},
		[]string{"stream_id"},
	)

	m.recoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_recovery_attempts_total",
			Help: "Total number of overrun recovery attempts",
		},
		[]string{"stream_id", "outcome"},
	)

	m.bufferLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gamecalls_buffer_level_samples",
			Help: "Current ring buffer fill level in samples",
		},
		[]string{"stream_id"},
	)

	m.bufferOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_buffer_overflows_total",
			Help: "Total number of ring buffer overflow events",
		},
		[]string{"stream_id"},
	)

	m.bufferUnderflow = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_buffer_underflows_total",
			Help: "Total number of ring buffer underflow events",
		},
		[]string{"stream_id"},
	)

	m.bufferResizes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_buffer_resizes_total",
			Help: "Total number of adaptive buffer resizes",
		},
		[]string{"stream_id", "direction"},
	)

	m.conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_conversions_total",
			Help: "Total number of format conversions",
		},
		[]string{"source_format", "target_format", "status"},
	)

	m.conversionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamecalls_conversion_duration_seconds",
			Help:    "Time taken by format conversions",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	m.qualityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gamecalls_quality_score",
			Help: "Latest perceptual quality score (1-5) per stream",
		},
		[]string{"stream_id"},
	)

	m.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_quality_alerts_total",
			Help: "Total number of quality threshold alerts",
		},
		[]string{"threshold", "severity"},
	)

	m.poolBuffersInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gamecalls_pool_buffers_in_use",
			Help: "Scratch buffers currently checked out of the pool",
		},
		[]string{"tier"},
	)

	m.poolAllocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecalls_pool_allocations_total",
			Help: "Total scratch buffer allocations",
		},
		[]string{"tier", "allocation_type"},
	)

	m.collectors = []prometheus.Collector{
		m.activeStreams,
		m.streamStarts,
		m.streamFailures,
		m.processedChunks,
		m.processingErrors,
		m.processingDuration,
		m.deadlineMisses,
		m.recoveryAttempts,
		m.bufferLevel,
		m.bufferOverflows,
		m.bufferUnderflow,
		m.bufferResizes,
		m.conversionsTotal,
		m.conversionDuration,
		m.qualityScore,
		m.alertsTotal,
		m.poolBuffersInUse,
		m.poolAllocations,
	}
}

// Describe implements prometheus.Collector
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// SetActiveStreams updates the active stream gauge
func (m *EngineMetrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// RecordStreamStart records a stream initialization attempt
func (m *EngineMetrics) RecordStreamStart(status string) {
	m.streamStarts.WithLabelValues(status).Inc()
}

// RecordStreamFailure records a terminal stream failure
func (m *EngineMetrics) RecordStreamFailure(reason string) {
	m.streamFailures.WithLabelValues(reason).Inc()
}

// RecordProcessedChunk records a successfully processed chunk
func (m *EngineMetrics) RecordProcessedChunk(streamID string, seconds float64) {
	m.processedChunks.WithLabelValues(streamID).Inc()
	if seconds > 0 {
		m.processingDuration.WithLabelValues(streamID).Observe(seconds)
	}
}

// RecordProcessingError records a processing error
func (m *EngineMetrics) RecordProcessingError(streamID, errorType string) {
	m.processingErrors.WithLabelValues(streamID, errorType).Inc()
}

// RecordDeadlineMiss records a per-chunk deadline miss
func (m *EngineMetrics) RecordDeadlineMiss(streamID string) {
	m.deadlineMisses.WithLabelValues(streamID).Inc()
}

// RecordRecoveryAttempt records an overrun recovery attempt
func (m *EngineMetrics) RecordRecoveryAttempt(streamID, outcome string) {
	m.recoveryAttempts.WithLabelValues(streamID, outcome).Inc()
}

// UpdateBufferLevel updates the per-stream buffer level gauge
func (m *EngineMetrics) UpdateBufferLevel(streamID string, level int) {
	m.bufferLevel.WithLabelValues(streamID).Set(float64(level))
}

// RecordBufferOverflow records a buffer overflow event
func (m *EngineMetrics) RecordBufferOverflow(streamID string) {
	m.bufferOverflows.WithLabelValues(streamID).Inc()
}

// RecordBufferUnderflow records a buffer underflow event
func (m *EngineMetrics) RecordBufferUnderflow(streamID string) {
	m.bufferUnderflow.WithLabelValues(streamID).Inc()
}

// RecordBufferResize records an adaptive buffer resize
func (m *EngineMetrics) RecordBufferResize(streamID, direction string) {
	m.bufferResizes.WithLabelValues(streamID, direction).Inc()
}

// RecordConversion records a format conversion
func (m *EngineMetrics) RecordConversion(sourceFormat, targetFormat, status string, seconds float64) {
	m.conversionsTotal.WithLabelValues(sourceFormat, targetFormat, status).Inc()
	if seconds > 0 {
		m.conversionDuration.Observe(seconds)
	}
}

// UpdateQualityScore updates the per-stream quality score gauge
func (m *EngineMetrics) UpdateQualityScore(streamID string, score float64) {
	m.qualityScore.WithLabelValues(streamID).Set(score)
}

// RecordAlert records a quality threshold alert
func (m *EngineMetrics) RecordAlert(threshold, severity string) {
	m.alertsTotal.WithLabelValues(threshold, severity).Inc()
}

// UpdateBuffersInUse updates the pool in-use gauge for a tier
func (m *EngineMetrics) UpdateBuffersInUse(tier string, n int) {
	m.poolBuffersInUse.WithLabelValues(tier).Set(float64(n))
}

// RecordBufferAllocation records a scratch buffer allocation
func (m *EngineMetrics) RecordBufferAllocation(tier, allocationType string) {
	m.poolAllocations.WithLabelValues(tier, allocationType).Inc()
}
