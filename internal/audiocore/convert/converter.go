package convert

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

const componentConverter = "audiocore.convert"

const historyCap = 256

// QualityMode selects the converter's speed/fidelity preference.
type QualityMode string

const (
	QualityFast     QualityMode = "fast"
	QualityBalanced QualityMode = "balanced"
	QualityHigh     QualityMode = "high"
)

// ConversionParameters describes one conversion request. Every field is
// validated against the target format's catalog ceilings before any sample
// is touched.
type ConversionParameters struct {
	SourceRate     int
	TargetRate     int
	SourceChannels int
	TargetChannels int
	SourceBitDepth int
	TargetBitDepth int
	Dither         bool
	Quality        QualityMode
}

// ConversionRecord captures one completed conversion for diagnostics. Records
// are append-only in a bounded history.
type ConversionRecord struct {
	Timestamp     time.Time
	SourceFormat  string
	TargetFormat  string
	InputSamples  int
	OutputSamples int
	Duration      time.Duration
}

// ConverterStats are the converter's cumulative performance counters.
type ConverterStats struct {
	Conversions    int64
	Errors         int64
	InputSamples   int64
	OutputSamples  int64
	TotalDuration  time.Duration
	LossyConverted int64
}

// Estimate predicts the outcome of a conversion without performing it.
type Estimate struct {
	OutputSamples int
	OutputFrames  int
	Lossy         bool
}

// Converter transforms PCM between catalog formats. It is stateless per call
// apart from the history and counters, so one instance may serve all streams
// concurrently.
type Converter struct {
	logger *slog.Logger

	mu      sync.Mutex
	stats   ConverterStats
	history []ConversionRecord
	histPos int
}

// NewConverter creates a converter with an empty history.
func NewConverter() *Converter {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		logger:  logger.With("component", "converter"),
		history: make([]ConversionRecord, 0, historyCap),
	}
}

// ValidateFormat checks a format name and parameters against the catalog,
// naming the offending field on failure.
func (c *Converter) ValidateFormat(format string, sampleRate, channels, bitDepth int) error {
	spec, err := LookupFormat(format)
	if err != nil {
		return err
	}
	if sampleRate <= 0 || sampleRate > spec.MaxSampleRate {
		return paramError("sampleRate", sampleRate, format)
	}
	if channels <= 0 || channels > spec.MaxChannels {
		return paramError("channels", channels, format)
	}
	if !validBitDepth(bitDepth) {
		return paramError("bitDepth", bitDepth, format)
	}
	return nil
}

// Convert runs the full pipeline: resample, bit-depth conversion, channel
// remap, and lossy degradation simulation when the target family is lossy.
// A failed call leaves the input unmodified and touches no counter beyond
// the error tally.
func (c *Converter) Convert(input []float32, sourceFormat, targetFormat string, params ConversionParameters) ([]float32, error) {
	start := time.Now()

	output, err := c.convert(input, sourceFormat, targetFormat, params)
	duration := time.Since(start)
	audiocore.GetMetrics().RecordConversion(sourceFormat, targetFormat, err, duration)

	if err != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return nil, err
	}

	target, _ := LookupFormat(targetFormat)

	c.mu.Lock()
	c.stats.Conversions++
	c.stats.InputSamples += int64(len(input))
	c.stats.OutputSamples += int64(len(output))
	c.stats.TotalDuration += duration
	if target.Lossy {
		c.stats.LossyConverted++
	}
	c.appendRecord(ConversionRecord{
		Timestamp:     start,
		SourceFormat:  sourceFormat,
		TargetFormat:  targetFormat,
		InputSamples:  len(input),
		OutputSamples: len(output),
		Duration:      duration,
	})
	c.mu.Unlock()

	c.logger.Debug("conversion complete",
		"source_format", sourceFormat,
		"target_format", targetFormat,
		"input_samples", len(input),
		"output_samples", len(output),
		"duration_ms", duration.Milliseconds())

	return output, nil
}

func (c *Converter) convert(input []float32, sourceFormat, targetFormat string, params ConversionParameters) ([]float32, error) {
	if err := c.ValidateFormat(sourceFormat, params.SourceRate, params.SourceChannels, params.SourceBitDepth); err != nil {
		return nil, err
	}
	if err := c.ValidateFormat(targetFormat, params.TargetRate, params.TargetChannels, params.TargetBitDepth); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, errors.New(nil).
			Component(componentConverter).
			Category(errors.CategoryValidation).
			Context("error", "empty input").
			Build()
	}
	if len(input)%params.SourceChannels != 0 {
		return nil, errors.Newf("input length %d is not a multiple of %d channels", len(input), params.SourceChannels).
			Component(componentConverter).
			Category(errors.CategoryValidation).
			Build()
	}
	for i, s := range input {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, errors.Newf("non-finite sample at index %d", i).
				Component(componentConverter).
				Category(errors.CategoryValidation).
				Context("index", i).
				Build()
		}
	}

	target, err := LookupFormat(targetFormat)
	if err != nil {
		return nil, err
	}

	samples := resampleLinear(input, params.SourceChannels, params.SourceRate, params.TargetRate)
	samples = convertBitDepth(samples, params.SourceBitDepth, params.TargetBitDepth, params.Dither)
	samples = remapChannels(samples, params.SourceChannels, params.TargetChannels)
	if target.Lossy {
		samples = simulateLossy(samples, target.QuantSteps)
	}

	// The pipeline may have returned the input slice unchanged; callers own
	// the result, so hand back a copy in that case.
	if len(samples) > 0 && &samples[0] == &input[0] {
		out := make([]float32, len(samples))
		copy(out, samples)
		samples = out
	}

	return samples, nil
}

// EstimateConversion predicts output size and lossiness without converting.
func (c *Converter) EstimateConversion(inputSamples int, targetFormat string, params ConversionParameters) (Estimate, error) {
	target, err := LookupFormat(targetFormat)
	if err != nil {
		return Estimate{}, err
	}
	if params.SourceChannels <= 0 || params.SourceRate <= 0 || params.TargetRate <= 0 || params.TargetChannels <= 0 {
		return Estimate{}, paramError("conversionParameters", 0, targetFormat)
	}

	inFrames := inputSamples / params.SourceChannels
	outFrames := inFrames * params.TargetRate / params.SourceRate

	return Estimate{
		OutputSamples: outFrames * params.TargetChannels,
		OutputFrames:  outFrames,
		Lossy:         target.Lossy,
	}, nil
}

// Stats returns a snapshot of the cumulative counters.
func (c *Converter) Stats() ConverterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// History returns a copy of the bounded conversion history, oldest first.
func (c *Converter) History() []ConversionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ConversionRecord, 0, len(c.history))
	if len(c.history) < historyCap {
		out = append(out, c.history...)
		return out
	}
	out = append(out, c.history[c.histPos:]...)
	out = append(out, c.history[:c.histPos]...)
	return out
}

// appendRecord stores a record in the bounded ring. Caller holds c.mu.
func (c *Converter) appendRecord(rec ConversionRecord) {
	if len(c.history) < historyCap {
		c.history = append(c.history, rec)
		return
	}
	c.history[c.histPos] = rec
	c.histPos = (c.histPos + 1) % historyCap
}

// convertBitDepth requantizes samples for a reduced target depth. Increasing
// the depth is a no-op in the float domain. Dither adds uniform noise of
// amplitude 2^-targetBits ahead of the quantizer.
func convertBitDepth(samples []float32, sourceBits, targetBits int, dither bool) []float32 {
	if targetBits >= sourceBits || len(samples) == 0 {
		return samples
	}

	step := float32(1.0 / float64(int64(1)<<(targetBits-1)))
	noiseAmp := float32(1.0 / float64(int64(1)<<targetBits))

	out := make([]float32, len(samples))
	for i, s := range samples {
		if dither {
			s += (rand.Float32()*2 - 1) * noiseAmp
		}
		q := float32(math.Round(float64(s/step))) * step
		if q > 1 {
			q = 1
		} else if q < -1 {
			q = -1
		}
		out[i] = q
	}
	return out
}

// remapChannels converts interleaved samples between channel layouts:
// 1→2 duplicates, N→M with N>M averages all N source channels into every
// output slot, N→M with N<M cycles the source channels.
func remapChannels(samples []float32, source, target int) []float32 {
	if source == target || len(samples) == 0 {
		return samples
	}

	frames := len(samples) / source
	out := make([]float32, frames*target)

	switch {
	case source > target:
		for f := 0; f < frames; f++ {
			var sum float32
			for ch := 0; ch < source; ch++ {
				sum += samples[f*source+ch]
			}
			avg := sum / float32(source)
			for m := 0; m < target; m++ {
				out[f*target+m] = avg
			}
		}
	default: // source < target
		for f := 0; f < frames; f++ {
			for m := 0; m < target; m++ {
				out[f*target+m] = samples[f*source+m%source]
			}
		}
	}

	return out
}

// simulateLossy quantizes to the format's step count and adds small uniform
// noise. This models the fidelity loss of a lossy encode for the converter's
// own degradation testing; it performs no real encoding.
func simulateLossy(samples []float32, steps int) []float32 {
	if steps <= 0 || len(samples) == 0 {
		return samples
	}

	stepsF := float64(steps)
	noiseAmp := float32(1.0 / (2 * stepsF))

	out := make([]float32, len(samples))
	for i, s := range samples {
		q := float32(math.Round(float64(s)*stepsF) / stepsF)
		q += (rand.Float32()*2 - 1) * noiseAmp
		if q > 1 {
			q = 1
		} else if q < -1 {
			q = -1
		}
		out[i] = q
	}
	return out
}

func validBitDepth(bits int) bool {
	switch bits {
	case 8, 16, 24, 32:
		return true
	}
	return false
}

func paramError(field string, value int, format string) error {
	return errors.Newf("invalid conversion parameter %s=%d for format %q", field, value, format).
		Component(componentConverter).
		Category(errors.CategoryConversion).
		Context("field", field).
		Context("value", value).
		Context("format", format).
		Build()
}
