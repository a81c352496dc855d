package quality

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

// alertHistoryCap bounds the alert ring.
const alertHistoryCap = 1000

// Severity grades an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ThresholdConfig holds the live monitoring limits. Zero values disable the
// corresponding check.
type ThresholdConfig struct {
	SNRMinDb          float64
	THDMaxDb          float64
	DynamicRangeMinDb float64
	PeakMax           float64
	RMSMin            float64
	RMSMax            float64
}

// RealTimeMetrics are the cheap per-chunk measurements. They must compute
// well under one chunk's playback duration, so SNR and THD come from a
// single-tone least-squares fit at the zero-crossing frequency estimate
// rather than a full FFT. Both are 0 when the chunk has no usable tone.
type RealTimeMetrics struct {
	RMS           float64
	Peak          float64
	CrestFactorDb float64
	QuickCentroid float64 // zero-crossing based centroid estimate, Hz
	QuickSNRDb    float64 // tone power over residual power, dB
	QuickTHDDb    float64 // 2nd+3rd harmonic power over tone power, dB
	Timestamp     time.Time
}

// Violation reports one threshold breach for a chunk.
type Violation struct {
	Threshold string
	Value     float64
	Limit     float64
	Severity  Severity
}

// AlertRecord is an archived violation. Records live in a capped ring; the
// oldest records fall off once the cap is reached.
type AlertRecord struct {
	Timestamp time.Time
	Threshold string
	Severity  Severity
	Value     float64
	Limit     float64
}

// MonitorCallback receives the metrics and violations of every processed
// chunk while monitoring is armed.
type MonitorCallback func(metrics RealTimeMetrics, violations []Violation)

// Monitor runs continuous threshold evaluation over a chunk stream.
type Monitor struct {
	assessor *Assessor
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	thresholds ThresholdConfig
	callbacks  map[int]MonitorCallback
	nextHandle int
	alerts     []AlertRecord
	alertPos   int
	chunks     int64
}

// NewMonitor creates a monitor bound to an assessor's sample rate.
func NewMonitor(assessor *Assessor) *Monitor {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		assessor:  assessor,
		logger:    logger.With("component", "quality_monitor"),
		callbacks: make(map[int]MonitorCallback),
		alerts:    make([]AlertRecord, 0, alertHistoryCap),
	}
}

// StartRealTimeMonitoring arms evaluation with the given thresholds and
// registers the callback, returning its handle. Starting while already
// running fails.
func (m *Monitor) StartRealTimeMonitoring(callback MonitorCallback, thresholds ThresholdConfig) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return 0, errors.New(nil).
			Component(componentQuality).
			Category(errors.CategoryState).
			Context("error", "monitoring already running").
			Build()
	}

	m.running = true
	m.thresholds = thresholds

	handle := 0
	if callback != nil {
		handle = m.registerLocked(callback)
	}

	m.logger.Info("real-time monitoring started",
		"peak_max", thresholds.PeakMax,
		"rms_min", thresholds.RMSMin,
		"rms_max", thresholds.RMSMax)
	return handle, nil
}

// StopRealTimeMonitoring disarms evaluation and clears all registered
// callbacks. The alert history is retained.
func (m *Monitor) StopRealTimeMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.callbacks = make(map[int]MonitorCallback)
	m.logger.Info("real-time monitoring stopped", "chunks_processed", m.chunks)
}

// RegisterCallback adds a callback while running, returning a handle for
// deterministic teardown.
func (m *Monitor) RegisterCallback(callback MonitorCallback) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerLocked(callback)
}

// UnregisterCallback removes a callback by handle.
func (m *Monitor) UnregisterCallback(handle int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.callbacks[handle]; !ok {
		return false
	}
	delete(m.callbacks, handle)
	return true
}

func (m *Monitor) registerLocked(callback MonitorCallback) int {
	m.nextHandle++
	m.callbacks[m.nextHandle] = callback
	return m.nextHandle
}

// ProcessChunk evaluates one chunk against the armed thresholds: computes
// the cheap metrics, archives one alert per violation, and invokes every
// registered callback.
func (m *Monitor) ProcessChunk(chunk []float32) (RealTimeMetrics, []Violation, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return RealTimeMetrics{}, nil, errors.New(nil).
			Component(componentQuality).
			Category(errors.CategoryState).
			Context("error", "monitoring not running").
			Build()
	}
	thresholds := m.thresholds
	m.mu.Unlock()

	if len(chunk) == 0 {
		return RealTimeMetrics{}, nil, qualityError("empty chunk", 0)
	}

	metrics := m.measure(chunk)
	violations := checkThresholds(metrics, thresholds)

	m.mu.Lock()
	m.chunks++
	for _, v := range violations {
		m.appendAlert(AlertRecord{
			Timestamp: metrics.Timestamp,
			Threshold: v.Threshold,
			Severity:  v.Severity,
			Value:     v.Value,
			Limit:     v.Limit,
		})
		audiocore.GetMetrics().RecordAlert(v.Threshold, string(v.Severity))
	}
	callbacks := make([]MonitorCallback, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(metrics, violations)
	}

	return metrics, violations, nil
}

// Alerts returns a copy of the alert history, oldest first.
func (m *Monitor) Alerts() []AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AlertRecord, 0, len(m.alerts))
	if len(m.alerts) < alertHistoryCap {
		out = append(out, m.alerts...)
		return out
	}
	out = append(out, m.alerts[m.alertPos:]...)
	out = append(out, m.alerts[:m.alertPos]...)
	return out
}

// ChunksProcessed returns the number of chunks evaluated since creation.
func (m *Monitor) ChunksProcessed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks
}

// measure computes the cheap per-chunk metrics. The centroid estimate uses
// the zero-crossing rate, which tracks the dominant frequency closely enough
// for threshold work at a fraction of an FFT's cost.
func (m *Monitor) measure(chunk []float32) RealTimeMetrics {
	r := rms(chunk)
	p := peak(chunk)

	crossings := 0
	for i := 1; i < len(chunk); i++ {
		if (chunk[i-1] >= 0) != (chunk[i] >= 0) {
			crossings++
		}
	}
	centroid := float64(crossings) * float64(m.assessor.config.SampleRate) / (2 * float64(len(chunk)))

	crest := 0.0
	if r > 0 && p > 0 {
		crest = dbOf(p) - dbOf(r)
	}

	snrDb, thdDb := quickTonalEstimates(chunk, m.assessor.config.SampleRate)

	return RealTimeMetrics{
		RMS:           r,
		Peak:          p,
		CrestFactorDb: crest,
		QuickCentroid: centroid,
		QuickSNRDb:    snrDb,
		QuickTHDDb:    thdDb,
		Timestamp:     time.Now(),
	}
}

// quickTonalEstimates computes the cheap SNR and THD estimates: the chunk's
// dominant tone is located from interpolated zero crossings and fitted by
// least squares, then SNR is tone-over-residual and THD is the fitted 2nd
// plus 3rd harmonic power over the tone. Both are 0 when no tone is found.
func quickTonalEstimates(chunk []float32, sampleRate int) (snrDb, thdDb float64) {
	freq := dominantFrequency(chunk, sampleRate)
	nyquist := float64(sampleRate) / 2
	if freq <= 0 || freq >= nyquist {
		return 0, 0
	}

	fundamental, residual := fitTone(chunk, freq, sampleRate)
	if fundamental <= 0 {
		return 0, 0
	}
	if residual < fundamental*1e-12 {
		residual = fundamental * 1e-12
	}
	snrDb = 10 * math.Log10(fundamental/residual)
	if snrDb > 120 {
		snrDb = 120
	} else if snrDb < -60 {
		snrDb = -60
	}

	var harmonic float64
	for h := 2.0; h <= 3; h++ {
		if freq*h >= nyquist {
			break
		}
		p, _ := fitTone(chunk, freq*h, sampleRate)
		harmonic += p
	}
	if harmonic < fundamental*1e-12 {
		harmonic = fundamental * 1e-12
	}
	thdDb = 10 * math.Log10(harmonic / fundamental)
	if thdDb < -120 {
		thdDb = -120
	}
	return snrDb, thdDb
}

// dominantFrequency estimates the strongest tone from interpolated zero
// crossings. The first-to-last crossing span gives far better resolution
// than the raw crossing count. Returns 0 for fewer than two crossings.
func dominantFrequency(chunk []float32, sampleRate int) float64 {
	first, last := -1.0, -1.0
	crossings := 0
	for i := 1; i < len(chunk); i++ {
		a, b := chunk[i-1], chunk[i]
		if (a >= 0) == (b >= 0) {
			continue
		}
		t := float64(i-1) + float64(a)/float64(a-b)
		if first < 0 {
			first = t
		}
		last = t
		crossings++
	}
	if crossings < 2 || last <= first {
		return 0
	}
	return float64(crossings-1) * float64(sampleRate) / (2 * (last - first))
}

// fitTone least-squares fits one sinusoid at freq to the chunk, returning
// the tone's mean-square power and the residual mean-square power. The
// residual is non-negative by construction.
func fitTone(chunk []float32, freq float64, sampleRate int) (tonePower, residualPower float64) {
	w := 2 * math.Pi * freq / float64(sampleRate)
	var xc, xs, cc, ss, cs, xx float64
	for n, v := range chunk {
		x := float64(v)
		c := math.Cos(w * float64(n))
		s := math.Sin(w * float64(n))
		xc += x * c
		xs += x * s
		cc += c * c
		ss += s * s
		cs += c * s
		xx += x * x
	}

	n := float64(len(chunk))
	det := cc*ss - cs*cs
	if det < 1e-9 {
		return 0, xx / n
	}

	a := (xc*ss - xs*cs) / det
	b := (xs*cc - xc*cs) / det
	fitted := a*xc + b*xs
	if fitted < 0 {
		fitted = 0
	}
	residual := xx - fitted
	if residual < 0 {
		residual = 0
	}
	return fitted / n, residual / n
}

func checkThresholds(metrics RealTimeMetrics, t ThresholdConfig) []Violation {
	var violations []Violation

	if t.PeakMax > 0 && metrics.Peak >= t.PeakMax {
		severity := SeverityWarning
		if metrics.Peak >= 0.999 {
			severity = SeverityError
		}
		violations = append(violations, Violation{
			Threshold: "peak_max",
			Value:     metrics.Peak,
			Limit:     t.PeakMax,
			Severity:  severity,
		})
	}
	if t.RMSMin > 0 && metrics.RMS < t.RMSMin {
		violations = append(violations, Violation{
			Threshold: "rms_min",
			Value:     metrics.RMS,
			Limit:     t.RMSMin,
			Severity:  SeverityInfo,
		})
	}
	if t.RMSMax > 0 && metrics.RMS > t.RMSMax {
		violations = append(violations, Violation{
			Threshold: "rms_max",
			Value:     metrics.RMS,
			Limit:     t.RMSMax,
			Severity:  SeverityWarning,
		})
	}
	if t.SNRMinDb > 0 && metrics.QuickSNRDb != 0 && metrics.QuickSNRDb < t.SNRMinDb {
		violations = append(violations, Violation{
			Threshold: "snr_min",
			Value:     metrics.QuickSNRDb,
			Limit:     t.SNRMinDb,
			Severity:  SeverityWarning,
		})
	}
	if t.THDMaxDb < 0 && metrics.QuickTHDDb != 0 && metrics.QuickTHDDb > t.THDMaxDb {
		violations = append(violations, Violation{
			Threshold: "thd_max",
			Value:     metrics.QuickTHDDb,
			Limit:     t.THDMaxDb,
			Severity:  SeverityWarning,
		})
	}
	if t.DynamicRangeMinDb > 0 && metrics.CrestFactorDb > 0 && metrics.CrestFactorDb < crestFloorFor(t.DynamicRangeMinDb) {
		violations = append(violations, Violation{
			Threshold: "dynamic_range_min",
			Value:     metrics.CrestFactorDb,
			Limit:     crestFloorFor(t.DynamicRangeMinDb),
			Severity:  SeverityWarning,
		})
	}

	return violations
}

// crestFloorFor maps a dynamic-range limit to the crest-factor proxy used on
// the cheap path. Full dynamic-range measurement is too expensive per chunk.
func crestFloorFor(dynamicRangeMinDb float64) float64 {
	f := dynamicRangeMinDb / 10
	return math.Min(f, 3)
}

func (m *Monitor) appendAlert(rec AlertRecord) {
	if len(m.alerts) < alertHistoryCap {
		m.alerts = append(m.alerts, rec)
		return
	}
	m.alerts[m.alertPos] = rec
	m.alertPos = (m.alertPos + 1) % alertHistoryCap
}
