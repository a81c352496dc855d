package quality

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAssessor(t *testing.T) *Assessor {
	t.Helper()
	a, err := NewAssessor(AssessorConfig{
		SampleRate:   44100,
		FFTSize:      4096,
		NoiseFloorDb: -60,
	})
	require.NoError(t, err)
	return a
}

func sine(freq float64, sampleRate, n int, amplitude float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// addNoise mixes deterministic uniform noise of the given amplitude into a
// copy of the signal.
func addNoise(signal []float32, amplitude float64, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float32, len(signal))
	for i, s := range signal {
		out[i] = s + float32((rng.Float64()*2-1)*amplitude)
	}
	return out
}

func TestNewAssessor_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewAssessor(AssessorConfig{SampleRate: 0, FFTSize: 4096})
	require.Error(t, err)

	_, err = NewAssessor(AssessorConfig{SampleRate: 44100, FFTSize: 1000})
	require.Error(t, err, "fft size must be a power of two")

	a, err := NewAssessor(AssessorConfig{SampleRate: 44100, FFTSize: 2048})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestCalculateSNR(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)
	signal := sine(1000, 44100, 44100/5, 0.5)

	t.Run("silent signal fails", func(t *testing.T) {
		t.Parallel()
		_, err := a.CalculateSNR(make([]float32, 1024), -60)
		require.Error(t, err)
	})

	t.Run("empty input fails", func(t *testing.T) {
		t.Parallel()
		_, err := a.CalculateSNR(nil, -60)
		require.Error(t, err)
	})

	t.Run("clean tone measures high", func(t *testing.T) {
		t.Parallel()
		snr, err := a.CalculateSNR(signal, -60)
		require.NoError(t, err)
		assert.Greater(t, snr, 30.0)
	})

	t.Run("monotonic in noise level", func(t *testing.T) {
		t.Parallel()
		// Tone bursts with silent gaps: gap samples sit below the floor and
		// expose the injected noise to the estimator.
		gapped := make([]float32, len(signal)*2)
		copy(gapped, signal)

		lowNoise := addNoise(gapped, 0.007, 7)
		highNoise := addNoise(gapped, 0.07, 7)

		snrLow, err := a.CalculateSNR(lowNoise, -20)
		require.NoError(t, err)
		snrHigh, err := a.CalculateSNR(highNoise, -20)
		require.NoError(t, err)

		assert.Less(t, snrHigh, snrLow, "more noise must measure a strictly lower SNR")
	})
}

func TestCalculateTHDN(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	t.Run("pure tone below -40 dB", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 8192, 0.5)
		thdn, err := a.CalculateTHDN(signal, 1000)
		require.NoError(t, err)
		assert.Less(t, thdn, -40.0)
	})

	t.Run("distortion raises THD+N", func(t *testing.T) {
		t.Parallel()
		clean := sine(1000, 44100, 8192, 0.5)
		distorted := make([]float32, len(clean))
		third := sine(3000, 44100, 8192, 0.025)
		for i := range clean {
			distorted[i] = clean[i] + third[i]
		}

		cleanTHDN, err := a.CalculateTHDN(clean, 1000)
		require.NoError(t, err)
		distortedTHDN, err := a.CalculateTHDN(distorted, 1000)
		require.NoError(t, err)

		assert.Greater(t, distortedTHDN, cleanTHDN)
		assert.Greater(t, distortedTHDN, -30.0, "5%% third harmonic lands near -26 dB")
	})

	t.Run("non-positive fundamental fails", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 4096, 0.5)
		_, err := a.CalculateTHDN(signal, 0)
		require.Error(t, err)
		_, err = a.CalculateTHDN(signal, -440)
		require.Error(t, err)
	})

	t.Run("fundamental at Nyquist clamps to last bin", func(t *testing.T) {
		t.Parallel()
		// Tone at the last sub-Nyquist bin of a 4096-point FFT at 44.1 kHz.
		lastBin := binFrequency(4096/2-1, 4096, 44100)
		signal := sine(lastBin, 44100, 4096, 0.5)

		thdn, err := a.CalculateTHDN(signal, 22050)
		require.NoError(t, err, "a dominant peak at Nyquist must still measure")
		assert.Less(t, thdn, 0.0)

		clamped, err := a.CalculateTHDN(signal, lastBin)
		require.NoError(t, err)
		assert.InDelta(t, clamped, thdn, 1e-9, "clamping lands on the last bin's measurement")
	})
}

func TestMeasureDynamicRange(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	t.Run("silent input fails", func(t *testing.T) {
		t.Parallel()
		_, err := a.MeasureDynamicRange(make([]float32, 4096))
		require.Error(t, err)
	})

	t.Run("level contrast measures as range", func(t *testing.T) {
		t.Parallel()
		loud := sine(1000, 44100, 16*dynamicRangeBlock, 0.5)
		quiet := sine(1000, 44100, 16*dynamicRangeBlock, 0.005)
		signal := append(loud, quiet...)

		dr, err := a.MeasureDynamicRange(signal)
		require.NoError(t, err)
		assert.InDelta(t, 40.0, dr, 6.0, "40 dB level contrast should measure near 40 dB")
	})

	t.Run("constant level measures near zero", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 16*dynamicRangeBlock, 0.5)
		dr, err := a.MeasureDynamicRange(signal)
		require.NoError(t, err)
		assert.Less(t, dr, 3.0)
	})
}

func TestAssessFrequencyResponse(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	t.Run("tone centroid near its frequency", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 8192, 0.5)
		resp, err := a.AssessFrequencyResponse(signal, nil)
		require.NoError(t, err)

		assert.InDelta(t, 1000, resp.Centroid, 500)
		assert.Less(t, resp.Flatness, 0.5, "a tone is not spectrally flat")
		assert.Nil(t, resp.RelativeDb)
		assert.Len(t, resp.Magnitudes, a.config.FFTSize/2+1)
	})

	t.Run("noise is flatter than a tone", func(t *testing.T) {
		t.Parallel()
		tone := sine(1000, 44100, 8192, 0.5)
		noise := addNoise(make([]float32, 8192), 0.5, 11)

		toneResp, err := a.AssessFrequencyResponse(tone, nil)
		require.NoError(t, err)
		noiseResp, err := a.AssessFrequencyResponse(noise, nil)
		require.NoError(t, err)

		assert.Greater(t, noiseResp.Flatness, toneResp.Flatness)
		assert.Greater(t, noiseResp.Bandwidth, toneResp.Bandwidth)
	})

	t.Run("reference yields relative levels", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 8192, 0.25)
		reference := sine(1000, 44100, 8192, 0.5)

		resp, err := a.AssessFrequencyResponse(signal, reference)
		require.NoError(t, err)
		require.NotNil(t, resp.RelativeDb)

		// Half amplitude at the fundamental bin reads about -6 dB.
		fundBin := int(math.Round(1000 * float64(a.config.FFTSize) / 44100))
		assert.InDelta(t, -6.0, resp.RelativeDb[fundBin], 1.0)
	})
}

func TestAssessPerceptualQuality(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	t.Run("identical reference scores near ceiling", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 8192, 0.5)
		score, err := a.AssessPerceptualQuality(signal, signal)
		require.NoError(t, err)
		assert.InDelta(t, 4.5, score, 0.1)
	})

	t.Run("degradation lowers the referenced score", func(t *testing.T) {
		t.Parallel()
		reference := sine(1000, 44100, 8192, 0.5)
		degraded := addNoise(sine(1000, 44100, 8192, 0.25), 0.1, 13)

		clean, err := a.AssessPerceptualQuality(reference, reference)
		require.NoError(t, err)
		noisy, err := a.AssessPerceptualQuality(degraded, reference)
		require.NoError(t, err)
		assert.Less(t, noisy, clean)
	})

	t.Run("no-reference heuristic stays on scale", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 8192, 0.5)
		score, err := a.AssessPerceptualQuality(signal, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 1.0)
		assert.LessOrEqual(t, score, 5.0)
		assert.Greater(t, score, 3.0, "a clean tone at healthy level scores well")
	})

	t.Run("clipped material scores below clean", func(t *testing.T) {
		t.Parallel()
		clean := sine(1000, 44100, 8192, 0.5)
		clipped := make([]float32, len(clean))
		for i, s := range clean {
			v := s * 4
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			clipped[i] = v
		}

		cleanScore, err := a.AssessPerceptualQuality(clean, nil)
		require.NoError(t, err)
		clippedScore, err := a.AssessPerceptualQuality(clipped, nil)
		require.NoError(t, err)
		assert.Less(t, clippedScore, cleanScore)
	})
}

func TestDetectArtifacts_Clipping(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	t.Run("five percent clipped is flagged", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 10000, 0.5)
		// Clip 5% of the samples in runs.
		for i := 0; i < len(signal)/20; i++ {
			signal[i*20] = 1.0
			if i*20+1 < len(signal) {
				signal[i*20+1] = 1.0
			}
		}

		var clipping Artifact
		for _, art := range a.DetectArtifacts(signal) {
			if art.Type == ArtifactClipping {
				clipping = art
			}
		}
		assert.True(t, clipping.Detected)
		assert.Greater(t, clipping.Severity, 0.0)
	})

	t.Run("clean sine is not flagged", func(t *testing.T) {
		t.Parallel()
		signal := sine(1000, 44100, 10000, 0.5)
		for _, art := range a.DetectArtifacts(signal) {
			if art.Type == ArtifactClipping {
				assert.False(t, art.Detected)
				assert.Zero(t, art.Severity)
			}
		}
	})
}

func TestDetectArtifacts_Compression(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)

	// A square wave has a 0 dB crest factor.
	square := make([]float32, 8192)
	for i := range square {
		if (i/32)%2 == 0 {
			square[i] = 0.8
		} else {
			square[i] = -0.8
		}
	}

	var compression Artifact
	for _, art := range a.DetectArtifacts(square) {
		if art.Type == ArtifactCompression {
			compression = art
		}
	}
	assert.True(t, compression.Detected)
	assert.Greater(t, compression.Severity, 0.5)

	for _, art := range a.DetectArtifacts(sine(1000, 44100, 8192, 0.5)) {
		if art.Type == ArtifactCompression {
			assert.False(t, art.Detected, "a sine's 3 dB crest is natural")
		}
	}
}

func TestAssess_FullBattery(t *testing.T) {
	t.Parallel()

	a := testAssessor(t)
	signal := sine(1000, 44100, 16384, 0.5)

	metrics, err := a.Assess(signal, nil)
	require.NoError(t, err)

	assert.Greater(t, metrics.SNR, 20.0)
	assert.Less(t, metrics.THDDb, -40.0)
	assert.GreaterOrEqual(t, metrics.PerceptualScore, 1.0)
	assert.LessOrEqual(t, metrics.PerceptualScore, 5.0)
	assert.InDelta(t, 1000, metrics.SpectralCentroid, 500)
	assert.Len(t, metrics.Artifacts, 4, "one record per detector")
	assert.False(t, metrics.Timestamp.IsZero())

	_, err = a.Assess(nil, nil)
	require.Error(t, err)
}
