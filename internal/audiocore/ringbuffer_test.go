package audiocore

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBufferConfig(capacity, channels int) BufferConfig {
	return BufferConfig{
		SampleRate: 44100,
		Channels:   channels,
		Capacity:   capacity,
		Format:     FormatF32,
	}
}

// rampFrames returns n frames of channel-interleaved samples where frame i
// carries the value i+start on every channel, so ordering is checkable.
func rampFrames(start, n, channels int) []float32 {
	out := make([]float32, n*channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = float32(start + i)
		}
	}
	return out
}

func TestNewCircularBuffer_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*BufferConfig)
	}{
		{"zero capacity", func(c *BufferConfig) { c.Capacity = 0 }},
		{"negative capacity", func(c *BufferConfig) { c.Capacity = -1 }},
		{"zero channels", func(c *BufferConfig) { c.Channels = 0 }},
		{"too many channels", func(c *BufferConfig) { c.Channels = 64 }},
		{"sample rate too low", func(c *BufferConfig) { c.SampleRate = 4000 }},
		{"sample rate too high", func(c *BufferConfig) { c.SampleRate = 400000 }},
		{"bad alignment", func(c *BufferConfig) { c.Alignment = 3 }},
		{"bad format", func(c *BufferConfig) { c.Format = SampleFormat(99) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testBufferConfig(1024, 2)
			tt.mutate(&cfg)
			buf, err := NewCircularBuffer(cfg)
			require.Error(t, err)
			assert.Nil(t, buf, "invalid config must not allocate a buffer")
		})
	}
}

func TestCircularBuffer_WriteReadOrder(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(64, 2))
	require.NoError(t, err)

	in := rampFrames(0, 48, 2)
	n, err := buf.Write(in)
	require.NoError(t, err)
	assert.Equal(t, 48, n)
	assert.Equal(t, 48, buf.Level())

	out, err := buf.Read(48)
	require.NoError(t, err)
	assert.Equal(t, in, out, "read must return samples in write order")
	assert.Equal(t, 0, buf.Level())
}

func TestCircularBuffer_WrapAround(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(16, 1))
	require.NoError(t, err)

	// Advance the pointers past the midpoint, then force a wrapping write.
	_, err = buf.Write(rampFrames(0, 12, 1))
	require.NoError(t, err)
	_, err = buf.Read(12)
	require.NoError(t, err)

	in := rampFrames(100, 10, 1)
	n, err := buf.Write(in)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	out, err := buf.Read(10)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCircularBuffer_LevelInvariant(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	writes := []int{5, 10, 3}
	reads := []int{4, 8}

	total := 0
	for _, w := range writes {
		n, err := buf.Write(rampFrames(0, w, 1))
		require.NoError(t, err)
		total += n
	}
	for _, r := range reads {
		_, err := buf.Read(r)
		require.NoError(t, err)
		total -= r
	}

	assert.Equal(t, total, buf.Level())
	assert.GreaterOrEqual(t, buf.Level(), 0)
	assert.LessOrEqual(t, buf.Level(), buf.Capacity())
}

func TestCircularBuffer_UnderflowSilenceFill(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(64, 2))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(1, 10, 2))
	require.NoError(t, err)

	out, err := buf.Read(25)
	require.NoError(t, err)
	require.Len(t, out, 25*2)

	// Buffered frames first, then silence for the deficit.
	assert.Equal(t, rampFrames(1, 10, 2), out[:10*2])
	for i := 10 * 2; i < len(out); i++ {
		assert.Zero(t, out[i], "deficit must be silence-filled")
	}

	stats := buf.Stats()
	assert.Equal(t, int64(1), stats.UnderflowEvents, "one underflow event per deficient read")
	assert.Equal(t, int64(15), stats.SilenceFrames)
}

func TestCircularBuffer_UnderflowCountsOncePerRead(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(64, 1))
	require.NoError(t, err)

	// Deficit size must not change the event count.
	_, err = buf.Read(1)
	require.NoError(t, err)
	_, err = buf.Read(50)
	require.NoError(t, err)

	assert.Equal(t, int64(2), buf.Stats().UnderflowEvents)
	assert.Equal(t, int64(51), buf.Stats().SilenceFrames)
}

func TestCircularBuffer_OverflowSaturate(t *testing.T) {
	t.Parallel()

	cfg := testBufferConfig(16, 1)
	cfg.Overflow = OverflowSaturate
	buf, err := NewCircularBuffer(cfg)
	require.NoError(t, err)

	var droppedSeen int
	buf.RegisterOverflowCallback(func(dropped int) { droppedSeen = dropped })

	n, err := buf.Write(rampFrames(0, 24, 1))
	require.NoError(t, err)
	assert.Equal(t, 16, n, "saturate keeps what fits")
	assert.Equal(t, 16, buf.Level())

	stats := buf.Stats()
	assert.Equal(t, int64(1), stats.OverflowEvents)
	assert.Equal(t, int64(8), stats.DroppedFrames)
	assert.Equal(t, 8, droppedSeen)

	// The oldest frames survive under saturate.
	out, err := buf.Read(16)
	require.NoError(t, err)
	assert.Equal(t, rampFrames(0, 16, 1), out)
}

func TestCircularBuffer_OverflowReject(t *testing.T) {
	t.Parallel()

	cfg := testBufferConfig(16, 1)
	cfg.Overflow = OverflowReject
	buf, err := NewCircularBuffer(cfg)
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 10, 1))
	require.NoError(t, err)

	n, err := buf.Write(rampFrames(100, 10, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "reject writes nothing when the input does not fit")
	assert.Equal(t, 10, buf.Level())
	assert.Equal(t, int64(1), buf.Stats().OverflowEvents)
	assert.Equal(t, int64(10), buf.Stats().DroppedFrames)
}

func TestCircularBuffer_OverflowOverwriteOldest(t *testing.T) {
	t.Parallel()

	cfg := testBufferConfig(16, 1)
	cfg.Overflow = OverflowOverwrite
	buf, err := NewCircularBuffer(cfg)
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 16, 1))
	require.NoError(t, err)

	n, err := buf.Write(rampFrames(100, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 16, buf.Level())

	out, err := buf.Read(16)
	require.NoError(t, err)
	// Oldest 4 frames were reclaimed, the newest input is at the tail.
	assert.Equal(t, rampFrames(4, 12, 1), out[:12])
	assert.Equal(t, rampFrames(100, 4, 1), out[12:])
}

func TestCircularBuffer_PeekDoesNotAdvance(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	in := rampFrames(0, 20, 1)
	_, err = buf.Write(in)
	require.NoError(t, err)

	peeked, err := buf.Peek(5, 10)
	require.NoError(t, err)
	assert.Equal(t, in[5:15], peeked)
	assert.Equal(t, 20, buf.Level(), "peek must not consume")

	out, err := buf.Read(20)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCircularBuffer_PeekOutOfRange(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 10, 1))
	require.NoError(t, err)

	_, err = buf.Peek(5, 10)
	require.Error(t, err, "offset+count past level must fail, not clamp")
	assert.True(t, errors.Is(err, ErrInvalidRange))

	_, err = buf.Peek(-1, 5)
	require.Error(t, err)
}

func TestCircularBuffer_PeekHoldsReadSlot(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	in := rampFrames(0, 10, 1)
	_, err = buf.Write(in)
	require.NoError(t, err)

	// Simulate an in-flight read-side call holding the slot.
	require.True(t, buf.readerBusy.CompareAndSwap(false, true))
	_, err = buf.Peek(0, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferBusy), "peek must not copy while another reader is active")
	buf.readerBusy.Store(false)

	peeked, err := buf.Peek(0, 5)
	require.NoError(t, err)
	assert.Equal(t, in[:5], peeked)
}

func TestCircularBuffer_Skip(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 20, 1))
	require.NoError(t, err)

	n, err := buf.Skip(8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 12, buf.Level())

	out, err := buf.Read(12)
	require.NoError(t, err)
	assert.Equal(t, rampFrames(8, 12, 1), out)

	_, err = buf.Skip(1)
	require.Error(t, err, "skip past level must fail")
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestCircularBuffer_SkipToLatest(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(64, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 50, 1))
	require.NoError(t, err)

	skipped, err := buf.SkipToLatest(10)
	require.NoError(t, err)
	assert.Equal(t, 40, skipped)
	assert.Equal(t, 10, buf.Level())

	out, err := buf.Read(10)
	require.NoError(t, err)
	assert.Equal(t, rampFrames(40, 10, 1), out)

	// Already at or below keep: no-op.
	skipped, err = buf.SkipToLatest(10)
	require.NoError(t, err)
	assert.Zero(t, skipped)
}

func TestCircularBuffer_ResizePreservesData(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(16, 2))
	require.NoError(t, err)

	in := rampFrames(0, 12, 2)
	_, err = buf.Write(in)
	require.NoError(t, err)

	newCap, err := buf.Resize(64)
	require.NoError(t, err)
	assert.Equal(t, 64, newCap)
	assert.Equal(t, 12, buf.Level())

	out, err := buf.Read(12)
	require.NoError(t, err)
	assert.Equal(t, in, out, "resize must preserve buffered samples in order")
}

func TestCircularBuffer_ResizeShrinkKeepsNewest(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(32, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 20, 1))
	require.NoError(t, err)

	_, err = buf.Resize(8)
	require.NoError(t, err)
	assert.Equal(t, 8, buf.Level())

	out, err := buf.Read(8)
	require.NoError(t, err)
	assert.Equal(t, rampFrames(12, 8, 1), out)
	assert.Equal(t, int64(12), buf.Stats().DroppedFrames)
}

func TestCircularBuffer_ResizeInvalidRestoresState(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(16, 1))
	require.NoError(t, err)

	in := rampFrames(0, 10, 1)
	_, err = buf.Write(in)
	require.NoError(t, err)

	capAfter, err := buf.Resize(0)
	require.Error(t, err)
	assert.Equal(t, 16, capAfter, "failed resize reports the unchanged capacity")
	assert.Equal(t, 10, buf.Level())

	out, err := buf.Read(10)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCircularBuffer_Clear(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(16, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 10, 1))
	require.NoError(t, err)

	buf.Clear()
	assert.Equal(t, 0, buf.Level())
	assert.Equal(t, 16, buf.Capacity())

	stats := buf.Stats()
	assert.Equal(t, 0, stats.WriteIndex)
	assert.Equal(t, 0, stats.ReadIndex)
	assert.Equal(t, int64(1), stats.TotalWrites, "clear keeps lifetime counters")
}

func TestCircularBuffer_Alignment(t *testing.T) {
	t.Parallel()

	cfg := testBufferConfig(100, 1)
	cfg.Alignment = 64
	buf, err := NewCircularBuffer(cfg)
	require.NoError(t, err)
	assert.Equal(t, 128, buf.Capacity(), "capacity rounds up to the alignment")
}

func TestCircularBuffer_UnregisterCallback(t *testing.T) {
	t.Parallel()

	cfg := testBufferConfig(8, 1)
	buf, err := NewCircularBuffer(cfg)
	require.NoError(t, err)

	calls := 0
	handle := buf.RegisterOverflowCallback(func(int) { calls++ })

	_, err = buf.Write(rampFrames(0, 12, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	assert.True(t, buf.UnregisterCallback(handle))
	assert.False(t, buf.UnregisterCallback(handle), "double unregister reports false")

	buf.Clear()
	_, err = buf.Write(rampFrames(0, 12, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "unregistered callback must not fire")
}

func TestCircularBuffer_ConcurrentWriterReader(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(4096, 1))
	require.NoError(t, err)

	const frames = 20000
	const chunk = 128

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		written := 0
		for written < frames {
			n, err := buf.Write(rampFrames(written, chunk, 1))
			if err != nil {
				continue
			}
			written += n
		}
	}()

	received := make([]float32, 0, frames)
	go func() {
		defer wg.Done()
		for len(received) < frames {
			level := buf.Level()
			if level == 0 {
				continue
			}
			out, err := buf.Read(level)
			if err != nil {
				continue
			}
			received = append(received, out...)
		}
	}()

	wg.Wait()

	// With saturate the writer retries dropped tails, so every frame arrives
	// exactly once and in order.
	require.GreaterOrEqual(t, len(received), frames)
	for i := 0; i < frames; i++ {
		require.Equal(t, float32(i), received[i], "frame %d out of order", i)
	}
}

func TestCircularBuffer_DiagnosticsHealth(t *testing.T) {
	t.Parallel()

	buf, err := NewCircularBuffer(testBufferConfig(16, 1))
	require.NoError(t, err)

	_, err = buf.Write(rampFrames(0, 8, 1))
	require.NoError(t, err)
	_, err = buf.Read(8)
	require.NoError(t, err)

	d := buf.Diagnostics()
	assert.InDelta(t, 1.0, d.HealthScore, 1e-9, "clean traffic scores full health")
	assert.Zero(t, d.Utilization)

	// An underflow degrades the score.
	_, err = buf.Read(4)
	require.NoError(t, err)
	d = buf.Diagnostics()
	assert.Less(t, d.HealthScore, 1.0)
	assert.Greater(t, d.HealthScore, 0.0)
}
