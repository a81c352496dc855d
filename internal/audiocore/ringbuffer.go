package audiocore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// OverflowPolicy selects what Write does when the buffer cannot hold the
// whole input.
type OverflowPolicy int

const (
	// OverflowSaturate fills the remaining space, drops the tail and counts
	// one overflow event with the dropped frame count.
	OverflowSaturate OverflowPolicy = iota
	// OverflowReject writes nothing unless the whole input fits.
	OverflowReject
	// OverflowOverwrite advances the read pointer so the newest samples
	// always fit, discarding the oldest buffered frames.
	OverflowOverwrite
)

// String returns the policy name used in logs.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowSaturate:
		return "saturate"
	case OverflowReject:
		return "reject"
	case OverflowOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// BufferConfig configures a CircularBuffer. Capacity is in frames (samples
// per channel); the backing store holds Capacity*Channels float32 samples.
type BufferConfig struct {
	SampleRate int
	Channels   int
	Capacity   int
	Format     SampleFormat
	Alignment  int // frame alignment of the backing store, power of two
	Overflow   OverflowPolicy
}

// Validate checks all fields and names the first offending one.
func (c BufferConfig) Validate() error {
	if c.SampleRate < conf.MinSampleRate || c.SampleRate > conf.MaxSampleRate {
		return bufferConfigError("sampleRate", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > conf.MaxChannels {
		return bufferConfigError("channels", c.Channels)
	}
	if c.Capacity < 1 || c.Capacity > conf.MaxBufferSize {
		return bufferConfigError("capacity", c.Capacity)
	}
	if !c.Format.Valid() {
		return bufferConfigError("sampleFormat", int(c.Format))
	}
	if c.Alignment != 0 && c.Alignment&(c.Alignment-1) != 0 {
		return bufferConfigError("alignment", c.Alignment)
	}
	return nil
}

func bufferConfigError(field string, value int) error {
	return errors.Newf("invalid buffer configuration: %s=%d", field, value).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

// BufferStats is a read-only snapshot of the buffer state and lifetime
// counters.
type BufferStats struct {
	WriteIndex      int
	ReadIndex       int
	Level           int
	Capacity        int
	TotalWrites     int64
	TotalReads      int64
	OverflowEvents  int64
	UnderflowEvents int64
	DroppedFrames   int64
	SilenceFrames   int64
}

// BufferDiagnostics extends BufferStats with derived health information.
type BufferDiagnostics struct {
	Stats          BufferStats
	Utilization    float64 // Level / Capacity
	HealthScore    float64 // 1.0 when no overflow/underflow events occurred
	Uptime         time.Duration
	AvgReadLatency time.Duration // mean delay between a write and the next read
	MaxReadLatency time.Duration
}

const latencyHistoryCap = 1000

// CircularBuffer is a fixed-capacity ring store for interleaved float32
// samples. One writer and one reader may operate concurrently; a second
// concurrent writer (or reader) fails fast with ErrBufferBusy. Resize and
// Clear exclude both.
type CircularBuffer struct {
	config BufferConfig

	// structural guards the backing store layout; write/read/peek/skip hold
	// it shared, resize/clear hold it exclusively.
	structural sync.RWMutex
	data       []float32
	capacity   int // frames

	writeIndex atomic.Int64 // frames, mod capacity
	readIndex  atomic.Int64 // frames, mod capacity
	level      atomic.Int64 // frames in [0, capacity]

	writerBusy atomic.Bool
	readerBusy atomic.Bool

	totalWrites     atomic.Int64
	totalReads      atomic.Int64
	overflowEvents  atomic.Int64
	underflowEvents atomic.Int64
	droppedFrames   atomic.Int64
	silenceFrames   atomic.Int64

	lastWriteNanos atomic.Int64

	callbackMu        sync.Mutex
	nextHandle        int
	overflowCallbacks map[int]func(dropped int)
	underflowHandlers map[int]func(deficit int)

	latencyMu      sync.Mutex
	latencySamples []time.Duration

	startTime time.Time
}

// NewCircularBuffer validates the configuration and allocates the backing
// store. An invalid configuration is rejected atomically: no buffer is
// allocated.
func NewCircularBuffer(config BufferConfig) (*CircularBuffer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	capacity := config.Capacity
	if config.Alignment > 1 {
		capacity = (capacity + config.Alignment - 1) &^ (config.Alignment - 1)
		if capacity > conf.MaxBufferSize {
			capacity = conf.MaxBufferSize &^ (config.Alignment - 1)
		}
	}

	b := &CircularBuffer{
		config:            config,
		data:              make([]float32, capacity*config.Channels),
		capacity:          capacity,
		overflowCallbacks: make(map[int]func(int)),
		underflowHandlers: make(map[int]func(int)),
		latencySamples:    make([]time.Duration, 0, latencyHistoryCap),
		startTime:         time.Now(),
	}
	return b, nil
}

// Config returns the buffer configuration.
func (b *CircularBuffer) Config() BufferConfig {
	return b.config
}

// Capacity returns the frame capacity after alignment.
func (b *CircularBuffer) Capacity() int {
	b.structural.RLock()
	defer b.structural.RUnlock()
	return b.capacity
}

// Level returns the number of buffered frames.
func (b *CircularBuffer) Level() int {
	return int(b.level.Load())
}

// Free returns the number of frames that can be written without overflow.
func (b *CircularBuffer) Free() int {
	b.structural.RLock()
	defer b.structural.RUnlock()
	return b.capacity - int(b.level.Load())
}

// Write appends interleaved samples to the buffer. len(samples) must be a
// multiple of the channel count. The return value is the number of frames
// actually stored; overflow behavior follows the configured policy. A Write
// overlapping another Write fails fast with ErrBufferBusy.
func (b *CircularBuffer) Write(samples []float32) (int, error) {
	if !b.writerBusy.CompareAndSwap(false, true) {
		return 0, errors.Wrap(ErrBufferBusy).
			Context("operation", "write").
			Build()
	}
	defer b.writerBusy.Store(false)

	channels := b.config.Channels
	if len(samples) == 0 || len(samples)%channels != 0 {
		return 0, errors.Newf("write length %d is not a multiple of %d channels", len(samples), channels).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	b.structural.RLock()
	defer b.structural.RUnlock()

	frames := len(samples) / channels
	free := b.capacity - int(b.level.Load())

	toWrite := frames
	dropped := 0

	if frames > free {
		switch b.config.Overflow {
		case OverflowSaturate:
			toWrite = free
			dropped = frames - free
		case OverflowReject:
			toWrite = 0
			dropped = frames
		case OverflowOverwrite:
			// Reclaim space from the oldest frames. If the reader is mid-call
			// the read pointer cannot be moved safely; saturate instead.
			need := frames - free
			if need > int(b.level.Load()) {
				need = int(b.level.Load())
			}
			if b.readerBusy.CompareAndSwap(false, true) {
				b.advanceRead(need)
				b.readerBusy.Store(false)
				dropped = 0
				if frames > b.capacity {
					// Input larger than the whole store: keep the newest
					// capacity frames.
					dropped = frames - b.capacity
					samples = samples[dropped*channels:]
					toWrite = b.capacity
				}
			} else {
				toWrite = free
				dropped = frames - free
			}
		}
	}

	if toWrite > 0 {
		b.copyIn(samples[:toWrite*channels])
		b.writeIndex.Store((b.writeIndex.Load() + int64(toWrite)) % int64(b.capacity))
		b.level.Add(int64(toWrite))
		b.totalWrites.Add(1)
		b.lastWriteNanos.Store(time.Now().UnixNano())
	}

	if dropped > 0 {
		b.overflowEvents.Add(1)
		b.droppedFrames.Add(int64(dropped))
		b.notifyOverflow(dropped)
	}

	return toWrite, nil
}

// Read removes and returns count frames of interleaved samples. When fewer
// frames are buffered the deficit is filled with channel-shaped silence and
// one underflow event is recorded regardless of the deficit size. A Read
// overlapping another Read fails fast with ErrBufferBusy.
func (b *CircularBuffer) Read(count int) ([]float32, error) {
	if count <= 0 {
		return nil, errors.Wrap(ErrInvalidRange).
			Context("operation", "read").
			Context("count", count).
			Build()
	}
	if !b.readerBusy.CompareAndSwap(false, true) {
		return nil, errors.Wrap(ErrBufferBusy).
			Context("operation", "read").
			Build()
	}
	defer b.readerBusy.Store(false)

	b.structural.RLock()
	defer b.structural.RUnlock()

	channels := b.config.Channels
	out := make([]float32, count*channels)

	available := int(b.level.Load())
	toRead := count
	if toRead > available {
		toRead = available
	}

	if toRead > 0 {
		b.copyOut(out[:toRead*channels], 0)
		b.advanceRead(toRead)
	}

	if deficit := count - toRead; deficit > 0 {
		// out is zero-valued past toRead already; just account for it.
		b.underflowEvents.Add(1)
		b.silenceFrames.Add(int64(deficit))
		b.notifyUnderflow(deficit)
	}

	b.totalReads.Add(1)
	b.recordReadLatency()

	return out, nil
}

// Peek returns count frames starting offset frames past the read position
// without consuming them. It fails with a range error when offset+count
// exceeds the buffered level. Peek holds the read-side slot: overlapping
// another Read, Peek, or Skip fails fast with ErrBufferBusy, which also
// keeps the overwrite path from reclaiming frames mid-copy.
func (b *CircularBuffer) Peek(offset, count int) ([]float32, error) {
	if offset < 0 || count <= 0 {
		return nil, errors.Wrap(ErrInvalidRange).
			Context("operation", "peek").
			Context("offset", offset).
			Context("count", count).
			Build()
	}
	if !b.readerBusy.CompareAndSwap(false, true) {
		return nil, errors.Wrap(ErrBufferBusy).
			Context("operation", "peek").
			Build()
	}
	defer b.readerBusy.Store(false)

	b.structural.RLock()
	defer b.structural.RUnlock()

	if offset+count > int(b.level.Load()) {
		return nil, errors.Wrap(ErrInvalidRange).
			Context("operation", "peek").
			Context("offset", offset).
			Context("count", count).
			Context("level", int(b.level.Load())).
			Build()
	}

	out := make([]float32, count*b.config.Channels)
	b.copyOut(out, offset)
	return out, nil
}

// Skip advances the read position by count frames without returning data.
// It fails when count exceeds the buffered level.
func (b *CircularBuffer) Skip(count int) (int, error) {
	if count < 0 {
		return 0, errors.Wrap(ErrInvalidRange).
			Context("operation", "skip").
			Context("count", count).
			Build()
	}
	if !b.readerBusy.CompareAndSwap(false, true) {
		return 0, errors.Wrap(ErrBufferBusy).
			Context("operation", "skip").
			Build()
	}
	defer b.readerBusy.Store(false)

	b.structural.RLock()
	defer b.structural.RUnlock()

	if count > int(b.level.Load()) {
		return 0, errors.Wrap(ErrInvalidRange).
			Context("operation", "skip").
			Context("count", count).
			Context("level", int(b.level.Load())).
			Build()
	}

	b.advanceRead(count)
	b.totalReads.Add(1)
	return count, nil
}

// SkipToLatest drops all but the newest keep frames, returning the number of
// frames skipped. Used during overrun recovery to catch up to real time.
func (b *CircularBuffer) SkipToLatest(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	level := int(b.level.Load())
	if level <= keep {
		return 0, nil
	}
	return b.Skip(level - keep)
}

// Resize reallocates the backing store to newCapacity frames, preserving
// buffered samples in order. When more frames are buffered than the new
// capacity holds, the newest frames are kept and the dropped count is
// reported as a single overflow event. An invalid capacity fails the whole
// operation and leaves the buffer untouched.
func (b *CircularBuffer) Resize(newCapacity int) (int, error) {
	if newCapacity < 1 || newCapacity > conf.MaxBufferSize {
		return b.Capacity(), bufferConfigError("capacity", newCapacity)
	}

	b.structural.Lock()
	defer b.structural.Unlock()

	channels := b.config.Channels
	level := int(b.level.Load())

	kept := level
	droppedOldest := 0
	if kept > newCapacity {
		droppedOldest = kept - newCapacity
		kept = newCapacity
	}

	newData := make([]float32, newCapacity*channels)
	if kept > 0 {
		// Drain in original order, skipping frames that no longer fit.
		b.copyOutLocked(newData[:kept*channels], droppedOldest)
	}

	b.data = newData
	b.capacity = newCapacity
	b.readIndex.Store(0)
	b.writeIndex.Store(int64(kept % newCapacity))
	b.level.Store(int64(kept))

	if droppedOldest > 0 {
		b.overflowEvents.Add(1)
		b.droppedFrames.Add(int64(droppedOldest))
		b.notifyOverflow(droppedOldest)
	}

	return newCapacity, nil
}

// Clear resets pointers and level to zero without deallocating.
func (b *CircularBuffer) Clear() {
	b.structural.Lock()
	defer b.structural.Unlock()

	b.writeIndex.Store(0)
	b.readIndex.Store(0)
	b.level.Store(0)
}

// Stats returns a snapshot of state and lifetime counters without mutating
// them.
func (b *CircularBuffer) Stats() BufferStats {
	b.structural.RLock()
	defer b.structural.RUnlock()

	return BufferStats{
		WriteIndex:      int(b.writeIndex.Load()),
		ReadIndex:       int(b.readIndex.Load()),
		Level:           int(b.level.Load()),
		Capacity:        b.capacity,
		TotalWrites:     b.totalWrites.Load(),
		TotalReads:      b.totalReads.Load(),
		OverflowEvents:  b.overflowEvents.Load(),
		UnderflowEvents: b.underflowEvents.Load(),
		DroppedFrames:   b.droppedFrames.Load(),
		SilenceFrames:   b.silenceFrames.Load(),
	}
}

// Diagnostics returns the stats snapshot plus derived health information.
func (b *CircularBuffer) Diagnostics() BufferDiagnostics {
	stats := b.Stats()

	d := BufferDiagnostics{
		Stats:  stats,
		Uptime: time.Since(b.startTime),
	}
	if stats.Capacity > 0 {
		d.Utilization = float64(stats.Level) / float64(stats.Capacity)
	}

	ops := stats.TotalWrites + stats.TotalReads
	if ops > 0 {
		faults := float64(stats.OverflowEvents + stats.UnderflowEvents)
		score := 1.0 - faults/float64(ops)
		if score < 0 {
			score = 0
		}
		d.HealthScore = score
	} else {
		d.HealthScore = 1.0
	}

	b.latencyMu.Lock()
	var sum, maxLatency time.Duration
	for _, l := range b.latencySamples {
		sum += l
		if l > maxLatency {
			maxLatency = l
		}
	}
	if n := len(b.latencySamples); n > 0 {
		d.AvgReadLatency = sum / time.Duration(n)
	}
	d.MaxReadLatency = maxLatency
	b.latencyMu.Unlock()

	return d
}

// RegisterOverflowCallback registers fn to run after each overflow event with
// the dropped frame count. The returned handle unregisters it.
func (b *CircularBuffer) RegisterOverflowCallback(fn func(dropped int)) int {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()
	b.nextHandle++
	b.overflowCallbacks[b.nextHandle] = fn
	return b.nextHandle
}

// RegisterUnderflowCallback registers fn to run after each underflow event
// with the silence-filled frame count. The returned handle unregisters it.
func (b *CircularBuffer) RegisterUnderflowCallback(fn func(deficit int)) int {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()
	b.nextHandle++
	b.underflowHandlers[b.nextHandle] = fn
	return b.nextHandle
}

// UnregisterCallback removes a callback by handle, returning whether it was
// registered.
func (b *CircularBuffer) UnregisterCallback(handle int) bool {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()
	if _, ok := b.overflowCallbacks[handle]; ok {
		delete(b.overflowCallbacks, handle)
		return true
	}
	if _, ok := b.underflowHandlers[handle]; ok {
		delete(b.underflowHandlers, handle)
		return true
	}
	return false
}

// copyIn copies interleaved samples at the write position, wrapping once at
// the end of the store. Caller holds structural read lock and the writer
// guard.
func (b *CircularBuffer) copyIn(samples []float32) {
	channels := b.config.Channels
	writePos := int(b.writeIndex.Load()) * channels
	storeLen := b.capacity * channels

	first := storeLen - writePos
	if first > len(samples) {
		first = len(samples)
	}
	copy(b.data[writePos:writePos+first], samples[:first])
	if first < len(samples) {
		copy(b.data[:len(samples)-first], samples[first:])
	}
}

// copyOut copies interleaved samples from offset frames past the read
// position into out. Caller holds structural read lock.
func (b *CircularBuffer) copyOut(out []float32, offset int) {
	channels := b.config.Channels
	readPos := ((int(b.readIndex.Load()) + offset) % b.capacity) * channels
	storeLen := b.capacity * channels

	first := storeLen - readPos
	if first > len(out) {
		first = len(out)
	}
	copy(out[:first], b.data[readPos:readPos+first])
	if first < len(out) {
		copy(out[first:], b.data[:len(out)-first])
	}
}

// copyOutLocked is copyOut for callers holding the structural write lock.
func (b *CircularBuffer) copyOutLocked(out []float32, offset int) {
	b.copyOut(out, offset)
}

// advanceRead moves the read pointer forward by frames and lowers the level.
func (b *CircularBuffer) advanceRead(frames int) {
	if frames <= 0 {
		return
	}
	b.readIndex.Store((b.readIndex.Load() + int64(frames)) % int64(b.capacity))
	b.level.Add(-int64(frames))
}

func (b *CircularBuffer) notifyOverflow(dropped int) {
	b.callbackMu.Lock()
	callbacks := make([]func(int), 0, len(b.overflowCallbacks))
	for _, fn := range b.overflowCallbacks {
		callbacks = append(callbacks, fn)
	}
	b.callbackMu.Unlock()
	for _, fn := range callbacks {
		fn(dropped)
	}
}

func (b *CircularBuffer) notifyUnderflow(deficit int) {
	b.callbackMu.Lock()
	callbacks := make([]func(int), 0, len(b.underflowHandlers))
	for _, fn := range b.underflowHandlers {
		callbacks = append(callbacks, fn)
	}
	b.callbackMu.Unlock()
	for _, fn := range callbacks {
		fn(deficit)
	}
}

func (b *CircularBuffer) recordReadLatency() {
	last := b.lastWriteNanos.Load()
	if last == 0 {
		return
	}
	latency := time.Duration(time.Now().UnixNano() - last)
	if latency < 0 {
		return
	}

	b.latencyMu.Lock()
	if len(b.latencySamples) >= latencyHistoryCap {
		// Drop the oldest half rather than shifting on every append.
		copy(b.latencySamples, b.latencySamples[latencyHistoryCap/2:])
		b.latencySamples = b.latencySamples[:latencyHistoryCap/2]
	}
	b.latencySamples = append(b.latencySamples, latency)
	b.latencyMu.Unlock()
}
