package conf

import (
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// Engine-wide parameter bounds. Streams and buffers outside these ranges are
// rejected at configuration time.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 32
	MaxBufferSize = 1 << 20
)

// ValidateSettings checks the loaded settings and reports the first offending
// field by name.
func ValidateSettings(s *Settings) error {
	if s.Audio.SampleRate < MinSampleRate || s.Audio.SampleRate > MaxSampleRate {
		return validationError("audio.samplerate", s.Audio.SampleRate)
	}
	if s.Audio.Channels < 1 || s.Audio.Channels > MaxChannels {
		return validationError("audio.channels", s.Audio.Channels)
	}
	switch s.Audio.BitDepth {
	case 8, 16, 24, 32:
	default:
		return validationError("audio.bitdepth", s.Audio.BitDepth)
	}
	if s.Audio.ChunkSamples <= 0 {
		return validationError("audio.chunksamples", s.Audio.ChunkSamples)
	}

	if s.Streaming.MaxStreams <= 0 {
		return validationError("streaming.maxstreams", s.Streaming.MaxStreams)
	}
	if s.Streaming.BufferSamples <= 0 || s.Streaming.BufferSamples > MaxBufferSize {
		return validationError("streaming.buffersamples", s.Streaming.BufferSamples)
	}
	if s.Streaming.MinBufferSamples <= 0 || s.Streaming.MinBufferSamples > s.Streaming.MaxBufferSamples {
		return validationError("streaming.minbuffersamples", s.Streaming.MinBufferSamples)
	}
	if s.Streaming.MaxBufferSamples > MaxBufferSize {
		return validationError("streaming.maxbuffersamples", s.Streaming.MaxBufferSamples)
	}
	if s.Streaming.TargetLatencyMs <= 0 {
		return validationError("streaming.targetlatencyms", s.Streaming.TargetLatencyMs)
	}
	if s.Streaming.MaxRecoveries < 0 {
		return validationError("streaming.maxrecoveries", s.Streaming.MaxRecoveries)
	}

	if s.Quality.FFTSize <= 0 || s.Quality.FFTSize&(s.Quality.FFTSize-1) != 0 {
		return validationError("quality.fftsize", s.Quality.FFTSize)
	}
	if s.Quality.PeakMax <= 0 || s.Quality.PeakMax > 1 {
		return validationError("quality.peakmax", s.Quality.PeakMax)
	}
	if s.Quality.RMSMin < 0 || s.Quality.RMSMin >= s.Quality.RMSMax {
		return validationError("quality.rmsmin", s.Quality.RMSMin)
	}

	return nil
}

func validationError(field string, value any) error {
	return errors.Newf("invalid configuration value for %s: %v", field, value).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("field", field).
		Context("value", value).
		Build()
}
