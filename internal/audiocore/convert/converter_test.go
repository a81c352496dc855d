package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq float64, sampleRate, frames int, amplitude float64) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// measureSNR compares a processed signal against the original, in dB.
func measureSNR(original, processed []float32) float64 {
	n := len(original)
	if len(processed) < n {
		n = len(processed)
	}
	var signal, noise float64
	for i := 0; i < n; i++ {
		s := float64(original[i])
		d := s - float64(processed[i])
		signal += s * s
		noise += d * d
	}
	if noise == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(signal/noise)
}

func pcmParams(srcRate, dstRate, srcCh, dstCh int) ConversionParameters {
	return ConversionParameters{
		SourceRate:     srcRate,
		TargetRate:     dstRate,
		SourceChannels: srcCh,
		TargetChannels: dstCh,
		SourceBitDepth: 32,
		TargetBitDepth: 32,
		Quality:        QualityBalanced,
	}
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()

	c := NewConverter()

	tests := []struct {
		name       string
		format     string
		rate       int
		channels   int
		bitDepth   int
		wantErr    bool
		errMention string
	}{
		{"valid wav", "wav", 44100, 2, 16, false, ""},
		{"valid opus", "opus", 48000, 2, 16, false, ""},
		{"unknown format", "wma", 44100, 2, 16, true, "wma"},
		{"zero sample rate", "wav", 0, 2, 16, true, "sampleRate"},
		{"rate above mp3 ceiling", "mp3", 96000, 2, 16, true, "sampleRate"},
		{"zero channels", "wav", 44100, 0, 16, true, "channels"},
		{"channels above mp3 ceiling", "mp3", 44100, 6, 16, true, "channels"},
		{"bad bit depth", "wav", 44100, 2, 12, true, "bitDepth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := c.ValidateFormat(tt.format, tt.rate, tt.channels, tt.bitDepth)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMention, "error must name the offending field")
		})
	}
}

func TestConvert_InputValidation(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	params := pcmParams(44100, 44100, 1, 1)

	t.Run("empty input", func(t *testing.T) {
		_, err := c.Convert(nil, "wav", "wav", params)
		require.Error(t, err)
	})

	t.Run("non-finite input", func(t *testing.T) {
		in := []float32{0.1, float32(math.NaN()), 0.3}
		_, err := c.Convert(in, "wav", "wav", params)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-finite")
	})

	t.Run("misaligned channel data", func(t *testing.T) {
		p := pcmParams(44100, 44100, 2, 2)
		_, err := c.Convert([]float32{0.1, 0.2, 0.3}, "wav", "wav", p)
		require.Error(t, err)
	})
}

func TestConvert_FailedCallTouchesOnlyErrorTally(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	_, err := c.Convert(nil, "wav", "wav", pcmParams(44100, 44100, 1, 1))
	require.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Zero(t, stats.Conversions)
	assert.Zero(t, stats.InputSamples)
	assert.Empty(t, c.History(), "failed calls must not enter the history")
}

func TestResample_RoundTrip(t *testing.T) {
	t.Parallel()

	// 1 kHz tone at 44.1 kHz, up to 88.2 kHz and back.
	const rate = 44100
	original := sineWave(1000, rate, rate/10, 0.5)

	c := NewConverter()

	up, err := c.Convert(original, "wav", "wav", pcmParams(rate, 2*rate, 1, 1))
	require.NoError(t, err)
	down, err := c.Convert(up, "wav", "wav", pcmParams(2*rate, rate, 1, 1))
	require.NoError(t, err)

	assert.InDelta(t, len(original), len(down), 1, "round trip must preserve length within one sample")
	assert.GreaterOrEqual(t, measureSNR(original, down), 35.0, "round trip must keep SNR at or above 35 dB")
}

func TestResample_OutputLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		inFrames   int
		srcRate    int
		dstRate    int
		wantFrames int
	}{
		{"downsample 48k to 44.1k", 48000, 48000, 44100, 44100},
		{"upsample 22.05k to 44.1k", 2205, 22050, 44100, 4410},
		{"identity", 1000, 44100, 44100, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := sineWave(440, tt.srcRate, tt.inFrames, 0.5)
			out := resampleLinear(in, 1, tt.srcRate, tt.dstRate)
			assert.Len(t, out, tt.wantFrames)
		})
	}
}

func TestConvertBitDepth(t *testing.T) {
	t.Parallel()

	t.Run("reduction quantizes", func(t *testing.T) {
		t.Parallel()
		in := sineWave(440, 44100, 1000, 0.5)
		out := convertBitDepth(in, 32, 8, false)
		require.Len(t, out, len(in))

		step := 1.0 / 128.0
		for i, s := range out {
			quantized := math.Round(float64(s)/step) * step
			assert.InDelta(t, quantized, float64(s), 1e-6, "sample %d not on the 8-bit grid", i)
		}
		assert.Greater(t, measureSNR(in, out), 30.0, "8-bit quantization keeps roughly 6 dB per bit")
	})

	t.Run("increase is a no-op", func(t *testing.T) {
		t.Parallel()
		in := sineWave(440, 44100, 100, 0.5)
		out := convertBitDepth(in, 16, 32, false)
		assert.Equal(t, in, out)
	})

	t.Run("dither stays in range", func(t *testing.T) {
		t.Parallel()
		in := make([]float32, 1000)
		for i := range in {
			in[i] = 0.999
		}
		out := convertBitDepth(in, 32, 16, true)
		for _, s := range out {
			assert.LessOrEqual(t, s, float32(1.0))
			assert.GreaterOrEqual(t, s, float32(-1.0))
		}
	})
}

func TestRemapChannels(t *testing.T) {
	t.Parallel()

	t.Run("mono to stereo duplicates", func(t *testing.T) {
		t.Parallel()
		out := remapChannels([]float32{0.1, 0.2, 0.3}, 1, 2)
		assert.Equal(t, []float32{0.1, 0.1, 0.2, 0.2, 0.3, 0.3}, out)
	})

	t.Run("stereo to mono averages", func(t *testing.T) {
		t.Parallel()
		out := remapChannels([]float32{0.2, 0.4, 0.6, 0.8}, 2, 1)
		require.Len(t, out, 2)
		assert.InDelta(t, 0.3, out[0], 1e-6)
		assert.InDelta(t, 0.7, out[1], 1e-6)
	})

	t.Run("downmix four to two", func(t *testing.T) {
		t.Parallel()
		// All four channels fold into each output slot equally.
		out := remapChannels([]float32{0.1, 0.2, 0.3, 0.4}, 4, 2)
		require.Len(t, out, 2)
		assert.InDelta(t, 0.25, out[0], 1e-6)
		assert.InDelta(t, 0.25, out[1], 1e-6)
	})

	t.Run("downmix preserves per-frame mean", func(t *testing.T) {
		t.Parallel()
		// Two frames of 3-channel audio into stereo: frame means 0.2 and 0.5.
		out := remapChannels([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 3, 2)
		require.Len(t, out, 4)
		assert.InDelta(t, 0.2, out[0], 1e-6)
		assert.InDelta(t, 0.2, out[1], 1e-6)
		assert.InDelta(t, 0.5, out[2], 1e-6)
		assert.InDelta(t, 0.5, out[3], 1e-6)
	})

	t.Run("upmix cycles source channels", func(t *testing.T) {
		t.Parallel()
		out := remapChannels([]float32{0.1, 0.2}, 2, 3)
		assert.Equal(t, []float32{0.1, 0.2, 0.1}, out)
	})
}

func TestConvert_LossyDegradesFidelity(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	in := sineWave(1000, 44100, 44100/10, 0.5)

	lossless, err := c.Convert(in, "wav", "flac", pcmParams(44100, 44100, 1, 1))
	require.NoError(t, err)
	lossy, err := c.Convert(in, "wav", "opus", pcmParams(44100, 44100, 1, 1))
	require.NoError(t, err)

	losslessSNR := measureSNR(in, lossless)
	lossySNR := measureSNR(in, lossy)
	assert.Greater(t, losslessSNR, lossySNR, "lossy target must measure below lossless")
	assert.Greater(t, lossySNR, 40.0, "simulation noise stays small")
}

func TestConvert_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	in := sineWave(440, 44100, 1000, 0.5)
	snapshot := make([]float32, len(in))
	copy(snapshot, in)

	out, err := c.Convert(in, "wav", "mp3", pcmParams(44100, 44100, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, snapshot, in, "input must be left unmodified")
	assert.Len(t, out, 2*len(in))
}

func TestConverter_HistoryBounded(t *testing.T) {
	t.Parallel()

	c := NewConverter()
	in := []float32{0.1, 0.2, 0.3, 0.4}

	for i := 0; i < historyCap+10; i++ {
		_, err := c.Convert(in, "wav", "wav", pcmParams(44100, 44100, 1, 1))
		require.NoError(t, err)
	}

	history := c.History()
	assert.Len(t, history, historyCap)
	assert.Equal(t, int64(historyCap+10), c.Stats().Conversions)

	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp), "history must stay oldest-first")
	}
}

func TestEstimateConversion(t *testing.T) {
	t.Parallel()

	c := NewConverter()

	est, err := c.EstimateConversion(44100, "opus", pcmParams(44100, 48000, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 48000, est.OutputFrames)
	assert.Equal(t, 96000, est.OutputSamples)
	assert.True(t, est.Lossy)

	_, err = c.EstimateConversion(44100, "wma", pcmParams(44100, 48000, 1, 2))
	require.Error(t, err)
}

func TestSupportedFormats(t *testing.T) {
	t.Parallel()

	formats := SupportedFormats()
	assert.Contains(t, formats, "wav")
	assert.Contains(t, formats, "opus")
	assert.IsType(t, []string{}, formats)
}
