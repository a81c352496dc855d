package audiocore

import (
	"time"
)

// SampleFormat identifies the in-memory encoding of PCM samples.
type SampleFormat int

const (
	FormatF32 SampleFormat = iota // 32-bit float, the engine's native format
	FormatS16                     // signed 16-bit integer
	FormatS24                     // signed 24-bit integer, packed
	FormatS32                     // signed 32-bit integer
	FormatU8                      // unsigned 8-bit integer
)

// String returns the format name used in logs and metrics.
func (f SampleFormat) String() string {
	switch f {
	case FormatF32:
		return "f32"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatU8:
		return "u8"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the storage size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatF32, FormatS32:
		return 4
	case FormatS24:
		return 3
	case FormatS16:
		return 2
	case FormatU8:
		return 1
	default:
		return 0
	}
}

// Valid reports whether f is a known sample format.
func (f SampleFormat) Valid() bool {
	return f >= FormatF32 && f <= FormatU8
}

// AudioFormat represents the format of a PCM stream.
type AudioFormat struct {
	SampleRate int          // Sample rate in Hz (e.g. 44100)
	Channels   int          // Number of interleaved channels
	BitDepth   int          // Bits per sample (8, 16, 24, 32)
	Format     SampleFormat // In-memory sample encoding
}

// FrameBytes returns the storage size of one frame (one sample per channel).
func (f AudioFormat) FrameBytes() int {
	return f.Channels * f.Format.BytesPerSample()
}

// ChunkDuration returns the playback duration of frames at this format's rate.
func (f AudioFormat) ChunkDuration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(f.SampleRate) * float64(time.Second))
}

// AudioChunk is a block of interleaved samples with capture metadata.
type AudioChunk struct {
	Samples   []float32     // Interleaved samples, len = frames * channels
	Format    AudioFormat   // Format of the samples
	Timestamp time.Time     // When this audio was captured
	Duration  time.Duration // Playback duration of the chunk
	SourceID  string        // Identifier of the producing source
}

// Frames returns the number of frames in the chunk.
func (c *AudioChunk) Frames() int {
	if c.Format.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}
