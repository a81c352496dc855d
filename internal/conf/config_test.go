package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Audio.SampleRate = 44100
	s.Audio.Channels = 1
	s.Audio.BitDepth = 16
	s.Audio.ChunkSamples = 1024
	s.Streaming.MaxStreams = 16
	s.Streaming.BufferSamples = 8192
	s.Streaming.MinBufferSamples = 1024
	s.Streaming.MaxBufferSamples = 65536
	s.Streaming.TargetLatencyMs = 50
	s.Streaming.MaxRecoveries = 3
	s.Quality.FFTSize = 4096
	s.Quality.PeakMax = 0.95
	s.Quality.RMSMin = 0.001
	s.Quality.RMSMax = 0.7
	return s
}

func TestValidateSettingsAccepts(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"sample rate too low", func(s *Settings) { s.Audio.SampleRate = 4000 }, "audio.samplerate"},
		{"sample rate too high", func(s *Settings) { s.Audio.SampleRate = 400000 }, "audio.samplerate"},
		{"zero channels", func(s *Settings) { s.Audio.Channels = 0 }, "audio.channels"},
		{"too many channels", func(s *Settings) { s.Audio.Channels = MaxChannels + 1 }, "audio.channels"},
		{"odd bit depth", func(s *Settings) { s.Audio.BitDepth = 12 }, "audio.bitdepth"},
		{"zero chunk", func(s *Settings) { s.Audio.ChunkSamples = 0 }, "audio.chunksamples"},
		{"zero max streams", func(s *Settings) { s.Streaming.MaxStreams = 0 }, "streaming.maxstreams"},
		{"oversized buffer", func(s *Settings) { s.Streaming.BufferSamples = MaxBufferSize + 1 }, "streaming.buffersamples"},
		{"min above max", func(s *Settings) { s.Streaming.MinBufferSamples = 1 << 17 }, "streaming.minbuffersamples"},
		{"negative latency", func(s *Settings) { s.Streaming.TargetLatencyMs = -1 }, "streaming.targetlatencyms"},
		{"negative recoveries", func(s *Settings) { s.Streaming.MaxRecoveries = -1 }, "streaming.maxrecoveries"},
		{"non power of two fft", func(s *Settings) { s.Quality.FFTSize = 1000 }, "quality.fftsize"},
		{"peak above one", func(s *Settings) { s.Quality.PeakMax = 1.5 }, "quality.peakmax"},
		{"rms min above max", func(s *Settings) { s.Quality.RMSMin = 0.9 }, "quality.rmsmin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestSetTestSettings(t *testing.T) {
	original := Setting()
	t.Cleanup(func() { SetTestSettings(original) })

	s := validSettings()
	s.Main.Name = "test-instance"
	SetTestSettings(s)

	assert.Same(t, s, Setting())
}

func TestDefaultConfigPaths(t *testing.T) {
	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, "/etc/gamecalls-engine")
}
