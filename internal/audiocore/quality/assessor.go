// Package quality computes objective and perceptual audio quality metrics:
// SNR, THD+N, dynamic range, spectral shape, a MOS-like perceptual score,
// artifact detection, and continuous real-time threshold monitoring.
package quality

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

const componentQuality = "audiocore.quality"

// dynamicRangeBlock is the block length for block-wise RMS measurement.
const dynamicRangeBlock = 1024

// AssessorConfig configures an Assessor.
type AssessorConfig struct {
	SampleRate   int
	FFTSize      int     // power of two
	NoiseFloorDb float64 // default noise floor for SNR, e.g. -60
}

// QualityMetrics is the full result of one assessment call. Produced fresh
// per call, never partially updated.
type QualityMetrics struct {
	SNR               float64
	THDDb             float64
	DynamicRangeDb    float64
	SpectralCentroid  float64
	SpectralFlatness  float64
	SpectralBandwidth float64
	SpectralRolloff   float64
	PerceptualScore   float64 // 1-5 MOS-like scale
	Artifacts         []Artifact
	Timestamp         time.Time
}

// FrequencyResponse describes the spectral shape of a signal, and its
// per-bin relation to a reference when one was supplied.
type FrequencyResponse struct {
	Magnitudes []float64 // single-sided magnitude spectrum
	RelativeDb []float64 // per-bin dB relative to the reference, nil without one
	Centroid   float64
	Flatness   float64
	Bandwidth  float64
	Rolloff    float64 // 85% energy rolloff frequency
}

// Assessor computes quality metrics. All methods are stateless per call, so
// one instance may serve all streams concurrently.
type Assessor struct {
	config AssessorConfig
	logger *slog.Logger
}

// NewAssessor validates the configuration and returns an assessor.
func NewAssessor(config AssessorConfig) (*Assessor, error) {
	if config.SampleRate <= 0 {
		return nil, qualityError("invalid assessor configuration: sampleRate", config.SampleRate)
	}
	if config.FFTSize < 64 || config.FFTSize&(config.FFTSize-1) != 0 {
		return nil, qualityError("invalid assessor configuration: fftSize", config.FFTSize)
	}
	if config.NoiseFloorDb >= 0 {
		config.NoiseFloorDb = -60
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	return &Assessor{
		config: config,
		logger: logger.With("component", "quality"),
	}, nil
}

// CalculateSNR estimates the signal-to-noise ratio in dB. Noise power is the
// mean square of samples below the floor threshold; when no sample
// qualifies, the theoretical floor power is used. A silent signal fails.
func (a *Assessor) CalculateSNR(audio []float32, noiseFloorDb float64) (float64, error) {
	if len(audio) == 0 {
		return 0, qualityError("empty input", 0)
	}

	var signalPower, noisePower float64
	noiseCount := 0
	floorLinear := math.Pow(10, noiseFloorDb/20)

	for _, s := range audio {
		v := float64(s)
		signalPower += v * v
		if math.Abs(v) < floorLinear {
			noisePower += v * v
			noiseCount++
		}
	}
	signalPower /= float64(len(audio))

	if signalPower == 0 {
		return 0, errors.New(nil).
			Component(componentQuality).
			Category(errors.CategoryQuality).
			Context("error", "silent signal has no measurable SNR").
			Build()
	}

	if noiseCount > 0 {
		noisePower /= float64(noiseCount)
	} else {
		noisePower = floorLinear * floorLinear
	}
	if noisePower == 0 {
		noisePower = floorLinear * floorLinear
	}

	return 10 * math.Log10(signalPower/noisePower), nil
}

// CalculateTHDN measures total harmonic distortion plus noise relative to
// the fundamental, in dB. The fundamental is located by peak search near
// the expected bin; everything outside its leakage skirt counts as
// distortion plus noise. A fundamental at or above Nyquist is clamped to
// the last representable bin so a dominant Nyquist peak still measures.
func (a *Assessor) CalculateTHDN(audio []float32, fundamentalFreq float64) (float64, error) {
	nyquist := float64(a.config.SampleRate) / 2
	if fundamentalFreq <= 0 {
		return 0, qualityError("fundamentalFreq out of range", int(fundamentalFreq))
	}
	if fundamentalFreq >= nyquist {
		fundamentalFreq = binFrequency(a.config.FFTSize/2-1, a.config.FFTSize, a.config.SampleRate)
	}
	if len(audio) == 0 {
		return 0, qualityError("empty input", 0)
	}

	mags := magnitudeSpectrum(audio, a.config.FFTSize)

	expectedBin := int(math.Round(fundamentalFreq * float64(a.config.FFTSize) / float64(a.config.SampleRate)))
	peakBin := expectedBin
	peakMag := 0.0
	for b := expectedBin - 2; b <= expectedBin+2; b++ {
		if b > 0 && b < len(mags) && mags[b] > peakMag {
			peakMag = mags[b]
			peakBin = b
		}
	}
	if peakMag == 0 {
		return 0, errors.Newf("no fundamental found near %.1f Hz", fundamentalFreq).
			Component(componentQuality).
			Category(errors.CategoryQuality).
			Context("fundamental_hz", fundamentalFreq).
			Build()
	}

	// The Hann leakage skirt spans about three bins either side of the peak.
	const skirt = 3
	var fundamentalPower, totalPower float64
	for b := 1; b < len(mags); b++ {
		p := mags[b] * mags[b]
		totalPower += p
		if b >= peakBin-skirt && b <= peakBin+skirt {
			fundamentalPower += p
		}
	}
	if fundamentalPower == 0 {
		return 0, qualityError("fundamental has no power", peakBin)
	}

	residual := totalPower - fundamentalPower
	if residual <= 0 {
		// Numerically perfect tone; report the measurement floor.
		return -120, nil
	}

	return 10 * math.Log10(residual/fundamentalPower), nil
}

// MeasureDynamicRange computes block-wise RMS over 1024-sample blocks and
// returns the spread between the 99th and 1st percentile block levels in
// dB. Fails on all-silent input.
func (a *Assessor) MeasureDynamicRange(audio []float32) (float64, error) {
	if len(audio) == 0 {
		return 0, qualityError("empty input", 0)
	}

	var blockDb []float64
	for start := 0; start < len(audio); start += dynamicRangeBlock {
		end := start + dynamicRangeBlock
		if end > len(audio) {
			end = len(audio)
		}
		r := rms(audio[start:end])
		if r > 0 {
			blockDb = append(blockDb, 20*math.Log10(r))
		}
	}

	if len(blockDb) == 0 {
		return 0, errors.New(nil).
			Component(componentQuality).
			Category(errors.CategoryQuality).
			Context("error", "silent signal has no dynamic range").
			Build()
	}

	sort.Float64s(blockDb)
	high := stat.Quantile(0.99, stat.Empirical, blockDb, nil)
	low := stat.Quantile(0.01, stat.Empirical, blockDb, nil)
	return high - low, nil
}

// AssessFrequencyResponse computes the magnitude spectrum and spectral shape
// descriptors. With a reference, per-bin relative levels in dB are included.
func (a *Assessor) AssessFrequencyResponse(audio, reference []float32) (FrequencyResponse, error) {
	if len(audio) == 0 {
		return FrequencyResponse{}, qualityError("empty input", 0)
	}

	mags := magnitudeSpectrum(audio, a.config.FFTSize)
	centroid := spectralCentroid(mags, a.config.FFTSize, a.config.SampleRate)

	resp := FrequencyResponse{
		Magnitudes: mags,
		Centroid:   centroid,
		Flatness:   spectralFlatness(mags),
		Bandwidth:  spectralBandwidth(mags, centroid, a.config.FFTSize, a.config.SampleRate),
		Rolloff:    spectralRolloff(mags, 0.85, a.config.FFTSize, a.config.SampleRate),
	}

	if len(reference) > 0 {
		refMags := magnitudeSpectrum(reference, a.config.FFTSize)
		resp.RelativeDb = make([]float64, len(mags))
		for i := range mags {
			if refMags[i] > 0 && mags[i] > 0 {
				resp.RelativeDb[i] = 20 * math.Log10(mags[i]/refMags[i])
			}
		}
	}

	return resp, nil
}

// AssessPerceptualQuality estimates a 1-5 MOS-like score. With a reference
// the score follows a weighted disturbance of loudness, spectral masking and
// tonality differences; without one it is a heuristic of level, crest factor
// and clipping proximity.
func (a *Assessor) AssessPerceptualQuality(audio, reference []float32) (float64, error) {
	if len(audio) == 0 {
		return 0, qualityError("empty input", 0)
	}

	if len(reference) > 0 {
		return a.perceptualWithReference(audio, reference)
	}
	return a.perceptualNoReference(audio), nil
}

func (a *Assessor) perceptualWithReference(audio, reference []float32) (float64, error) {
	audioRMS := rms(audio)
	refRMS := rms(reference)
	if refRMS == 0 {
		return 0, qualityError("silent reference", 0)
	}

	// Loudness disturbance: level difference normalized to a 20 dB span.
	loudnessDiff := math.Abs(dbOf(audioRMS) - dbOf(refRMS))
	loudness := clamp01(loudnessDiff / 20)

	// Masking disturbance: normalized spectral magnitude difference.
	mags := magnitudeSpectrum(audio, a.config.FFTSize)
	refMags := magnitudeSpectrum(reference, a.config.FFTSize)
	var diff, refTotal float64
	for i := range mags {
		diff += math.Abs(mags[i] - refMags[i])
		refTotal += refMags[i]
	}
	masking := 0.0
	if refTotal > 0 {
		masking = clamp01(diff / refTotal)
	}

	// Tonality disturbance: flatness shift between the two signals.
	tonality := clamp01(math.Abs(spectralFlatness(mags) - spectralFlatness(refMags)))

	disturbance := 0.5*loudness + 0.3*masking + 0.2*tonality
	return clampScore(4.5 - 3.5*disturbance), nil
}

func (a *Assessor) perceptualNoReference(audio []float32) float64 {
	r := rms(audio)
	p := peak(audio)

	// Level component: full marks inside the useful range, fading outside.
	level := 0.0
	switch {
	case r >= 0.05 && r <= 0.7:
		level = 1.0
	case r > 0 && r < 0.05:
		level = r / 0.05
	case r > 0.7:
		level = clamp01(1 - (r-0.7)/0.3)
	}

	// Dynamics component: crest factor normalized to a 10 dB span.
	dynamics := 0.0
	if r > 0 && p > 0 {
		dynamics = clamp01((dbOf(p) - dbOf(r)) / 10)
	}

	// Clipping component: fraction of samples at or beyond the threshold.
	clipped := 0
	for _, s := range audio {
		if math.Abs(float64(s)) >= clippingThreshold {
			clipped++
		}
	}
	clipping := clamp01(1 - 10*float64(clipped)/float64(len(audio)))

	combined := 0.4*level + 0.3*dynamics + 0.3*clipping
	return clampScore(1 + 4*combined)
}

// Assess runs the full battery against one signal and bundles the results.
// The THD+N fundamental is taken from the spectrum's peak bin.
func (a *Assessor) Assess(audio, reference []float32) (QualityMetrics, error) {
	if len(audio) == 0 {
		return QualityMetrics{}, qualityError("empty input", 0)
	}

	snr, err := a.CalculateSNR(audio, a.config.NoiseFloorDb)
	if err != nil {
		return QualityMetrics{}, err
	}
	dynamicRange, err := a.MeasureDynamicRange(audio)
	if err != nil {
		return QualityMetrics{}, err
	}
	resp, err := a.AssessFrequencyResponse(audio, reference)
	if err != nil {
		return QualityMetrics{}, err
	}
	perceptual, err := a.AssessPerceptualQuality(audio, reference)
	if err != nil {
		return QualityMetrics{}, err
	}

	// Use the dominant spectral peak as the fundamental for THD+N.
	peakBin := 1
	for b := 2; b < len(resp.Magnitudes); b++ {
		if resp.Magnitudes[b] > resp.Magnitudes[peakBin] {
			peakBin = b
		}
	}
	thd, err := a.CalculateTHDN(audio, binFrequency(peakBin, a.config.FFTSize, a.config.SampleRate))
	if err != nil {
		return QualityMetrics{}, err
	}

	return QualityMetrics{
		SNR:               snr,
		THDDb:             thd,
		DynamicRangeDb:    dynamicRange,
		SpectralCentroid:  resp.Centroid,
		SpectralFlatness:  resp.Flatness,
		SpectralBandwidth: resp.Bandwidth,
		SpectralRolloff:   resp.Rolloff,
		PerceptualScore:   perceptual,
		Artifacts:         a.DetectArtifacts(audio),
		Timestamp:         time.Now(),
	}, nil
}

func rms(audio []float32) float64 {
	if len(audio) == 0 {
		return 0
	}
	var sum float64
	for _, s := range audio {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(audio)))
}

func peak(audio []float32) float64 {
	var p float64
	for _, s := range audio {
		v := math.Abs(float64(s))
		if v > p {
			p = v
		}
	}
	return p
}

func dbOf(v float64) float64 {
	if v <= 0 {
		return -120
	}
	return 20 * math.Log10(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func qualityError(msg string, value int) error {
	return errors.Newf("%s (%d)", msg, value).
		Component(componentQuality).
		Category(errors.CategoryValidation).
		Context("value", value).
		Build()
}
