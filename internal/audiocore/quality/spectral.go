package quality

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hannWindow applies a Hann window in place and returns the window's
// coherent gain for amplitude correction.
func hannWindow(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 1
	}
	var gain float64
	for i := range samples {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		samples[i] *= w
		gain += w
	}
	return gain / float64(n)
}

// magnitudeSpectrum computes the single-sided magnitude spectrum of audio
// using a Hann-windowed FFT of fftSize points. Input shorter than fftSize is
// zero padded, longer input is truncated. The returned slice has
// fftSize/2+1 bins.
func magnitudeSpectrum(audio []float32, fftSize int) []float64 {
	buf := make([]float64, fftSize)
	n := len(audio)
	if n > fftSize {
		n = fftSize
	}
	for i := 0; i < n; i++ {
		buf[i] = float64(audio[i])
	}
	hannWindow(buf[:n])

	fft := fourier.NewFFT(fftSize)
	coeffs := fft.Coefficients(nil, buf)

	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplxAbs(c) / float64(fftSize)
	}
	return mags
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// binFrequency converts an FFT bin index to Hz.
func binFrequency(bin, fftSize, sampleRate int) float64 {
	return float64(bin) * float64(sampleRate) / float64(fftSize)
}

// spectralCentroid is the magnitude-weighted mean frequency in Hz.
func spectralCentroid(mags []float64, fftSize, sampleRate int) float64 {
	var weighted, total float64
	for i, m := range mags {
		weighted += binFrequency(i, fftSize, sampleRate) * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// spectralFlatness is the geometric/arithmetic mean ratio of bin power,
// near 1 for noise and near 0 for tonal content.
func spectralFlatness(mags []float64) float64 {
	var logSum, sum float64
	n := 0
	for _, m := range mags {
		p := m * m
		if p <= 0 {
			continue
		}
		logSum += math.Log(p)
		sum += p
		n++
	}
	if n == 0 || sum == 0 {
		return 0
	}
	geometric := math.Exp(logSum / float64(n))
	arithmetic := sum / float64(n)
	return geometric / arithmetic
}

// spectralBandwidth is the magnitude-weighted RMS spread around the
// centroid, in Hz.
func spectralBandwidth(mags []float64, centroid float64, fftSize, sampleRate int) float64 {
	var weighted, total float64
	for i, m := range mags {
		d := binFrequency(i, fftSize, sampleRate) - centroid
		weighted += d * d * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return math.Sqrt(weighted / total)
}

// spectralRolloff is the frequency below which fraction of the total
// spectral energy lies.
func spectralRolloff(mags []float64, fraction float64, fftSize, sampleRate int) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total == 0 {
		return 0
	}
	target := total * fraction
	var acc float64
	for i, m := range mags {
		acc += m * m
		if acc >= target {
			return binFrequency(i, fftSize, sampleRate)
		}
	}
	return binFrequency(len(mags)-1, fftSize, sampleRate)
}

// bandPower sums bin power between two frequencies.
func bandPower(mags []float64, lowHz, highHz float64, fftSize, sampleRate int) float64 {
	var power float64
	for i, m := range mags {
		f := binFrequency(i, fftSize, sampleRate)
		if f >= lowHz && f <= highHz {
			power += m * m
		}
	}
	return power
}
