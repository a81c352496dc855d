package quality

import (
	"math"
)

// ArtifactType identifies a detector.
type ArtifactType string

const (
	ArtifactClipping          ArtifactType = "clipping"
	ArtifactCompression       ArtifactType = "compression"
	ArtifactAliasing          ArtifactType = "aliasing"
	ArtifactDigitalDistortion ArtifactType = "digital_distortion"
)

// clippingThreshold is the amplitude at which a sample counts as clipped for
// the perceptual heuristic.
const clippingThreshold = 0.95

// clipDetectThreshold is the amplitude the run detector treats as full scale.
const clipDetectThreshold = 0.99

// Artifact is one detector's verdict. Severity is 0 when not detected and
// grows with the share of affected samples.
type Artifact struct {
	Type        ArtifactType
	Detected    bool
	Severity    float64 // 0-1
	Description string
}

// DetectArtifacts runs all detectors and returns one record per detector,
// detected or not.
func (a *Assessor) DetectArtifacts(audio []float32) []Artifact {
	return []Artifact{
		a.detectClipping(audio),
		a.detectCompression(audio),
		a.detectAliasing(audio),
		a.detectDigitalDistortion(audio),
	}
}

// detectClipping looks for runs of near-full-scale samples and tiers the
// severity by the share of clipped samples.
func (a *Assessor) detectClipping(audio []float32) Artifact {
	art := Artifact{Type: ArtifactClipping}
	if len(audio) == 0 {
		return art
	}

	clipped := 0
	run := 0
	longestRun := 0
	for _, s := range audio {
		if math.Abs(float64(s)) >= clipDetectThreshold {
			clipped++
			run++
			if run > longestRun {
				longestRun = run
			}
		} else {
			run = 0
		}
	}

	fraction := float64(clipped) / float64(len(audio))
	if longestRun < 2 && fraction < 0.001 {
		return art
	}

	art.Detected = true
	switch {
	case fraction >= 0.05:
		art.Severity = 1.0
		art.Description = "severe clipping"
	case fraction >= 0.01:
		art.Severity = 0.75
		art.Description = "heavy clipping"
	case fraction >= 0.001:
		art.Severity = 0.5
		art.Description = "moderate clipping"
	default:
		art.Severity = 0.25
		art.Description = "isolated clipping"
	}
	return art
}

// detectCompression flags heavily limited material: a crest factor well
// below natural program levels at a meaningful signal level.
func (a *Assessor) detectCompression(audio []float32) Artifact {
	art := Artifact{Type: ArtifactCompression}

	r := rms(audio)
	p := peak(audio)
	if r < 0.01 || p == 0 {
		return art
	}

	// A pure sine sits at 3 dB crest; only flag material squashed below that.
	crestDb := dbOf(p) - dbOf(r)
	if crestDb >= 2 {
		return art
	}

	art.Detected = true
	art.Severity = clamp01((2 - crestDb) / 2)
	art.Description = "low crest factor suggests heavy compression or limiting"
	return art
}

// detectAliasing flags disproportionate energy in the top tenth of the band,
// where properly filtered material carries little.
func (a *Assessor) detectAliasing(audio []float32) Artifact {
	art := Artifact{Type: ArtifactAliasing}
	if len(audio) == 0 {
		return art
	}

	mags := magnitudeSpectrum(audio, a.config.FFTSize)
	nyquist := float64(a.config.SampleRate) / 2

	topPower := bandPower(mags, 0.9*nyquist, nyquist, a.config.FFTSize, a.config.SampleRate)
	totalPower := bandPower(mags, 0, nyquist, a.config.FFTSize, a.config.SampleRate)
	if totalPower == 0 {
		return art
	}

	ratio := topPower / totalPower
	if ratio < 0.1 {
		return art
	}

	art.Detected = true
	art.Severity = clamp01(ratio)
	art.Description = "excess energy near the band edge"
	return art
}

// detectDigitalDistortion flags frequent large sample-to-sample jumps,
// typical of dropped samples or hard discontinuities.
func (a *Assessor) detectDigitalDistortion(audio []float32) Artifact {
	art := Artifact{Type: ArtifactDigitalDistortion}
	if len(audio) < 2 {
		return art
	}

	jumps := 0
	for i := 1; i < len(audio); i++ {
		if math.Abs(float64(audio[i]-audio[i-1])) > 0.5 {
			jumps++
		}
	}

	fraction := float64(jumps) / float64(len(audio)-1)
	if fraction < 0.001 {
		return art
	}

	art.Detected = true
	art.Severity = clamp01(fraction * 100)
	art.Description = "frequent sample discontinuities"
	return art
}
