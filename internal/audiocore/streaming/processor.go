package streaming

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/convert"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/quality"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/conf"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

// adaptationInterval is how many chunks pass between buffer adaptation
// checks on a stream.
const adaptationInterval = 64

// notificationBuffer bounds the notification channel; slow consumers lose
// the oldest notifications rather than blocking processing.
const notificationBuffer = 64

// Processor orchestrates concurrent streams over shared converter, assessor
// and monitor instances. Each stream owns its ring buffer; the processor
// owns stream registration, deadlines, recovery and resource fairness.
type Processor struct {
	settings   conf.StreamingSettings
	qualityCfg conf.QualitySettings

	converter *convert.Converter
	assessor  *quality.Assessor
	monitor   *quality.Monitor
	pool      *audiocore.ScratchPool
	resources *resourceLedger
	logger    *slog.Logger

	mu      sync.RWMutex
	streams map[string]*streamState

	notifyCh chan StreamNotification
	wg       sync.WaitGroup
	closed   atomic.Bool

	// overrunHook runs between buffer work and the deadline check. Tests
	// inject latency here; production leaves it nil.
	overrunHook func()
}

// NewProcessor builds a processor from settings, arming the quality monitor
// with the configured thresholds.
func NewProcessor(settings *conf.Settings) (*Processor, error) {
	if settings == nil {
		settings = conf.Setting()
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "streaming")

	assessor, err := quality.NewAssessor(quality.AssessorConfig{
		SampleRate:   settings.Audio.SampleRate,
		FFTSize:      settings.Quality.FFTSize,
		NoiseFloorDb: settings.Quality.NoiseFloorDb,
	})
	if err != nil {
		return nil, err
	}

	monitor := quality.NewMonitor(assessor)
	if _, err := monitor.StartRealTimeMonitoring(nil, quality.ThresholdConfig{
		SNRMinDb:          settings.Quality.SNRMinDb,
		THDMaxDb:          settings.Quality.THDMaxDb,
		DynamicRangeMinDb: settings.Quality.DynamicRangeMinDb,
		PeakMax:           settings.Quality.PeakMax,
		RMSMin:            settings.Quality.RMSMin,
		RMSMax:            settings.Quality.RMSMax,
	}); err != nil {
		return nil, err
	}

	return &Processor{
		settings:   settings.Streaming,
		qualityCfg: settings.Quality,
		converter:  convert.NewConverter(),
		assessor:   assessor,
		monitor:    monitor,
		pool:       audiocore.NewScratchPool(audiocore.DefaultScratchPoolConfig),
		resources:  newResourceLedger(logger),
		logger:     logger,
		streams:    make(map[string]*streamState),
		notifyCh:   make(chan StreamNotification, notificationBuffer),
	}, nil
}

// Converter exposes the shared converter for batch (non-streaming) use.
func (p *Processor) Converter() *convert.Converter { return p.converter }

// Assessor exposes the shared assessor for batch (non-streaming) use.
func (p *Processor) Assessor() *quality.Assessor { return p.assessor }

// Monitor exposes the armed real-time monitor.
func (p *Processor) Monitor() *quality.Monitor { return p.monitor }

// Notifications delivers terminal and noteworthy stream transitions. The
// channel is never closed; drain it from one consumer.
func (p *Processor) Notifications() <-chan StreamNotification { return p.notifyCh }

// InitializeStream validates the configuration, allocates the stream's ring
// buffer, reserves its resource share and registers it. Any failure leaves
// no partially registered stream behind.
func (p *Processor) InitializeStream(config StreamConfig) (string, error) {
	if p.closed.Load() {
		return "", stateError("processor is shut down")
	}

	if err := p.validateStreamConfig(&config); err != nil {
		audiocore.GetMetrics().RecordStreamStart(false)
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.streams) >= p.settings.MaxStreams {
		audiocore.GetMetrics().RecordStreamStart(false)
		return "", errors.Newf("stream limit reached: %d", p.settings.MaxStreams).
			Component(componentStreaming).
			Category(errors.CategoryLimit).
			Context("max_streams", p.settings.MaxStreams).
			Build()
	}

	buffer, err := audiocore.NewCircularBuffer(audiocore.BufferConfig{
		SampleRate: config.SampleRate,
		Channels:   config.Channels,
		Capacity:   config.BufferSamples,
		Format:     audiocore.FormatF32,
		Overflow:   audiocore.OverflowSaturate,
	})
	if err != nil {
		audiocore.GetMetrics().RecordStreamStart(false)
		return "", err
	}

	stream := newStreamState(config, buffer)
	buffer.RegisterOverflowCallback(func(int) {
		audiocore.GetMetrics().RecordBufferOverflow(stream.id)
	})
	buffer.RegisterUnderflowCallback(func(int) {
		audiocore.GetMetrics().RecordBufferUnderflow(stream.id)
	})
	if err := p.resources.admit(stream.id, ResourceShare{
		CPUPercent:    config.CPUShare,
		MemoryPercent: config.MemoryShare,
		Priority:      config.Priority,
	}); err != nil {
		audiocore.GetMetrics().RecordStreamStart(false)
		return "", err
	}

	p.streams[stream.id] = stream
	audiocore.GetMetrics().RecordStreamStart(true)
	audiocore.GetMetrics().SetActiveStreams(len(p.streams))

	p.logger.Info("stream initialized",
		"stream_id", stream.id,
		"sample_rate", config.SampleRate,
		"channels", config.Channels,
		"buffer_samples", config.BufferSamples,
		"deadline_ms", stream.deadline().Milliseconds(),
		"priority", config.Priority)

	return stream.id, nil
}

func (p *Processor) validateStreamConfig(config *StreamConfig) error {
	if config.SampleRate < conf.MinSampleRate || config.SampleRate > conf.MaxSampleRate {
		return configFieldError("sampleRate", config.SampleRate)
	}
	if config.Channels < 1 || config.Channels > conf.MaxChannels {
		return configFieldError("channels", config.Channels)
	}
	if config.BufferSamples < p.settings.MinBufferSamples || config.BufferSamples > p.settings.MaxBufferSamples {
		return configFieldError("bufferSamples", config.BufferSamples)
	}
	if config.TargetLatency <= 0 {
		config.TargetLatency = time.Duration(p.settings.TargetLatencyMs) * time.Millisecond
	}
	if config.TargetFormat != "" {
		if err := p.converter.ValidateFormat(config.TargetFormat,
			config.ConvertParams.TargetRate, config.ConvertParams.TargetChannels, config.ConvertParams.TargetBitDepth); err != nil {
			return err
		}
	}
	return nil
}

// ProcessAudioRealTime runs one chunk through the stream's pipeline: buffer
// write, buffer read-back, optional conversion and quality checks. A
// deadline miss degrades the stream and is reported alongside the processed
// chunk; exhausting the recovery budget fails the stream terminally.
func (p *Processor) ProcessAudioRealTime(id string, chunk *audiocore.AudioChunk) (*audiocore.AudioChunk, error) {
	stream, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	if stream.currentStatus() == StatusFailed {
		return nil, errors.Wrap(audiocore.ErrStreamFailed).
			Context("stream_id", id).
			Build()
	}
	if chunk == nil || len(chunk.Samples) == 0 {
		return nil, configFieldError("chunk", 0)
	}

	start := time.Now()
	deadline := stream.deadline()

	frames := len(chunk.Samples) / stream.config.Channels
	if _, err := stream.buffer.Write(chunk.Samples); err != nil {
		audiocore.GetMetrics().RecordProcessingError(id, "buffer_write")
		return nil, err
	}
	samples, err := stream.buffer.Read(frames)
	if err != nil {
		audiocore.GetMetrics().RecordProcessingError(id, "buffer_read")
		return nil, err
	}

	if stream.config.TargetFormat != "" {
		converted, err := p.converter.Convert(samples, "wav", stream.config.TargetFormat, stream.config.ConvertParams)
		if err != nil {
			audiocore.GetMetrics().RecordProcessingError(id, "conversion")
			return nil, err
		}
		samples = converted
	}

	if stream.config.QualityChecks {
		p.runQualityChecks(id, stream, samples)
	}

	if p.overrunHook != nil {
		p.overrunHook()
	}

	elapsed := time.Since(start)
	if elapsed > deadline {
		return p.handleOverrun(stream, chunk, samples, elapsed, deadline)
	}

	p.noteSuccess(stream, frames)
	audiocore.GetMetrics().RecordProcessedChunk(id, elapsed)
	audiocore.GetMetrics().UpdateBufferLevel(id, stream.buffer.Level())

	return p.resultChunk(stream, chunk, samples), nil
}

// runQualityChecks feeds a mono mixdown of the chunk to the real-time
// monitor. The mixdown lives in pool scratch and never escapes the call.
func (p *Processor) runQualityChecks(id string, stream *streamState, samples []float32) {
	channels := stream.config.Channels
	frames := len(samples) / channels

	mono, tier := p.pool.Get(frames)
	defer p.pool.Put(mono, tier)
	mono = mono[:frames]

	if channels == 1 {
		copy(mono, samples)
	} else {
		for f := 0; f < frames; f++ {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += samples[f*channels+ch]
			}
			mono[f] = sum / float32(channels)
		}
	}

	metrics, violations, err := p.monitor.ProcessChunk(mono)
	if err != nil {
		p.logger.Debug("quality check skipped", "stream_id", id, "error", err)
		return
	}
	if len(violations) > 0 {
		p.logger.Warn("quality thresholds violated",
			"stream_id", id,
			"violations", len(violations),
			"peak", metrics.Peak,
			"rms", metrics.RMS)
	}

	// The full perceptual model is too heavy for every chunk; sample it at
	// the adaptation cadence.
	stream.mu.Lock()
	sample := stream.chunksProcessed%adaptationInterval == 0
	stream.mu.Unlock()
	if sample {
		if score, err := p.assessor.AssessPerceptualQuality(mono, nil); err == nil {
			audiocore.GetMetrics().UpdateQualityScore(id, score)
		}
	}
}

// handleOverrun applies graceful degradation after a deadline miss: drop the
// quality tier, skip stale buffered audio toward the latency target, and
// count a recovery attempt. The processed chunk is still returned so the
// caller's pipeline keeps flowing; exhausting the budget fails the stream.
func (p *Processor) handleOverrun(stream *streamState, chunk *audiocore.AudioChunk, samples []float32, elapsed, deadline time.Duration) (*audiocore.AudioChunk, error) {
	audiocore.GetMetrics().RecordDeadlineMiss(stream.id)

	stream.mu.Lock()
	stream.overruns++
	stream.recoveries++
	recoveries := stream.recoveries
	exhausted := recoveries > p.settings.MaxRecoveries
	if exhausted {
		stream.status = StatusFailed
	} else {
		switch stream.status {
		case StatusActive, StatusInitialized:
			stream.status = StatusDegraded
		case StatusDegraded:
			stream.status = StatusRecovering
		}
		if stream.tier > TierLow {
			stream.tier--
		}
	}
	tier := stream.tier
	stream.mu.Unlock()

	if exhausted {
		audiocore.GetMetrics().RecordRecoveryAttempt(stream.id, "exhausted")
		audiocore.GetMetrics().RecordStreamFailure("recovery_exhausted")
		p.notify(StreamNotification{
			StreamID:  stream.id,
			Status:    StatusFailed,
			Reason:    "recovery attempts exhausted after repeated deadline misses",
			Timestamp: time.Now(),
		})
		p.logger.Error("stream failed",
			"stream_id", stream.id,
			"recoveries", recoveries,
			"elapsed_ms", elapsed.Milliseconds(),
			"deadline_ms", deadline.Milliseconds())
		return nil, errors.Wrap(audiocore.ErrStreamFailed).
			Context("stream_id", stream.id).
			Context("recoveries", recoveries).
			Build()
	}

	// Catch up to real time by dropping stale buffered audio.
	keep := framesForLatency(stream.config.TargetLatency, stream.config.SampleRate)
	if skipped, err := stream.buffer.SkipToLatest(keep); err == nil && skipped > 0 {
		p.logger.Debug("skipped stale audio during recovery",
			"stream_id", stream.id, "frames", skipped)
	}

	audiocore.GetMetrics().RecordRecoveryAttempt(stream.id, "degraded")
	p.logger.Warn("processing overrun",
		"stream_id", stream.id,
		"elapsed_ms", elapsed.Milliseconds(),
		"deadline_ms", deadline.Milliseconds(),
		"attempt", recoveries,
		"tier", tier.String())

	return p.resultChunk(stream, chunk, samples), errors.Wrap(audiocore.ErrProcessingOverrun).
		Context("stream_id", stream.id).
		Timing("process_chunk", elapsed).
		Build()
}

// noteSuccess drives the recovery side of the state machine and triggers
// periodic buffer adaptation.
func (p *Processor) noteSuccess(stream *streamState, frames int) {
	stream.mu.Lock()
	switch stream.status {
	case StatusInitialized:
		stream.status = StatusActive
	case StatusDegraded:
		stream.status = StatusRecovering
	case StatusRecovering:
		stream.status = StatusActive
		stream.recoveries = 0
		audiocore.GetMetrics().RecordRecoveryAttempt(stream.id, "success")
	}
	stream.chunksProcessed++
	stream.lastChunkAt = time.Now()
	adapt := stream.chunksProcessed%adaptationInterval == 0
	stream.mu.Unlock()

	if adapt {
		p.adaptBuffer(stream)
	}
}

// adaptBuffer applies one adaptive sizing decision and logs it.
func (p *Processor) adaptBuffer(stream *streamState) {
	plan := planBufferAdaptation(stream.buffer.Stats(), stream.config,
		p.settings.MinBufferSamples, p.settings.MaxBufferSamples)
	if plan == nil {
		return
	}

	if _, err := stream.buffer.Resize(plan.newCapacity); err != nil {
		p.logger.Warn("buffer adaptation failed", "stream_id", stream.id, "error", err)
		return
	}

	stream.mu.Lock()
	stream.config.BufferSamples = plan.newCapacity
	stream.mu.Unlock()

	audiocore.GetMetrics().RecordBufferResize(stream.id, plan.newCapacity > plan.oldCapacity)
	p.logger.Info("buffer adapted",
		"stream_id", stream.id,
		"old_capacity", plan.oldCapacity,
		"new_capacity", plan.newCapacity,
		"reason", plan.reason)
}

// UpdateNetworkConditions folds externally measured transport conditions
// into the stream's quality tier.
func (p *Processor) UpdateNetworkConditions(id string, cond NetworkConditions) (QualityTier, error) {
	stream, err := p.lookup(id)
	if err != nil {
		return TierLow, err
	}

	tier := selectTier(cond)

	stream.mu.Lock()
	old := stream.tier
	stream.tier = tier
	stream.mu.Unlock()

	if tier != old {
		p.logger.Info("quality tier changed",
			"stream_id", id,
			"old_tier", old.String(),
			"new_tier", tier.String(),
			"loss_percent", cond.LossPercent,
			"latency_ms", cond.LatencyMs)
	}
	return tier, nil
}

// DestroyStream tears a stream down: it is unregistered immediately, its
// resource share returns to the budget, and the buffer is cleared after the
// configured grace period so an in-flight chunk can finish. A second call
// reports false instead of erroring.
func (p *Processor) DestroyStream(id string) bool {
	p.mu.Lock()
	stream, ok := p.streams[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.streams, id)
	remaining := len(p.streams)
	p.mu.Unlock()

	stream.mu.Lock()
	stream.status = StatusDestroyed
	stream.mu.Unlock()

	p.resources.release(id)
	audiocore.GetMetrics().SetActiveStreams(remaining)

	grace := time.Duration(p.settings.GraceMs) * time.Millisecond
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if grace > 0 {
			time.Sleep(grace)
		}
		stream.buffer.Clear()
	}()

	p.logger.Info("stream destroyed", "stream_id", id, "grace_ms", grace.Milliseconds())
	return true
}

// RunStream pumps chunks from in through the stream until the context ends
// or in closes, emitting processed chunks on the returned channel. Overruns
// are absorbed (the stream degrades and recovers); terminal failures close
// the output channel.
func (p *Processor) RunStream(ctx context.Context, id string, in <-chan *audiocore.AudioChunk) (<-chan *audiocore.AudioChunk, error) {
	if _, err := p.lookup(id); err != nil {
		return nil, err
	}

	out := make(chan *audiocore.AudioChunk, 4)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				processed, err := p.ProcessAudioRealTime(id, chunk)
				if err != nil {
					if errors.IsCategory(err, errors.CategoryOverrun) && processed != nil {
						// Degraded but still flowing.
					} else {
						p.logger.Error("stream loop terminated", "stream_id", id, "error", err)
						return
					}
				}
				select {
				case out <- processed:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Streams returns snapshots of all registered streams, highest priority
// first. Priority resolves contention for schedulers iterating this list.
func (p *Processor) Streams() []StreamInfo {
	p.mu.RLock()
	out := make([]StreamInfo, 0, len(p.streams))
	for _, stream := range p.streams {
		out = append(out, stream.snapshot())
	}
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Config.Priority > out[j].Config.Priority
	})
	return out
}

// StreamInfo returns one stream's snapshot.
func (p *Processor) StreamInfo(id string) (StreamInfo, error) {
	stream, err := p.lookup(id)
	if err != nil {
		return StreamInfo{}, err
	}
	return stream.snapshot(), nil
}

// ResourceUsage returns the committed share totals in percent.
func (p *Processor) ResourceUsage() (cpuPercent, memPercent float64) {
	return p.resources.usage()
}

// Shutdown destroys all streams, stops the monitor and waits for background
// work within the context's deadline.
func (p *Processor) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, info := range p.Streams() {
		p.DestroyStream(info.ID)
	}
	p.monitor.StopRealTimeMonitoring()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor shut down")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err()).
			Component(componentStreaming).
			Category(errors.CategoryTimeout).
			Context("operation", "shutdown").
			Build()
	}
}

func (p *Processor) lookup(id string) (*streamState, error) {
	p.mu.RLock()
	stream, ok := p.streams[id]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(audiocore.ErrStreamNotFound).
			Context("stream_id", id).
			Build()
	}
	return stream, nil
}

func (p *Processor) resultChunk(stream *streamState, in *audiocore.AudioChunk, samples []float32) *audiocore.AudioChunk {
	format := in.Format
	if stream.config.TargetFormat != "" {
		format = audiocore.AudioFormat{
			SampleRate: stream.config.ConvertParams.TargetRate,
			Channels:   stream.config.ConvertParams.TargetChannels,
			BitDepth:   stream.config.ConvertParams.TargetBitDepth,
			Format:     audiocore.FormatF32,
		}
	}
	frames := 0
	if format.Channels > 0 {
		frames = len(samples) / format.Channels
	}
	return &audiocore.AudioChunk{
		Samples:   samples,
		Format:    format,
		Timestamp: in.Timestamp,
		Duration:  format.ChunkDuration(frames),
		SourceID:  stream.id,
	}
}

// notify delivers without blocking; the oldest pending notification is
// dropped when the consumer lags.
func (p *Processor) notify(n StreamNotification) {
	select {
	case p.notifyCh <- n:
	default:
		select {
		case <-p.notifyCh:
		default:
		}
		select {
		case p.notifyCh <- n:
		default:
		}
	}
}

func configFieldError(field string, value int) error {
	return errors.Newf("invalid stream configuration: %s=%d", field, value).
		Component(componentStreaming).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}

func stateError(msg string) error {
	return errors.New(nil).
		Component(componentStreaming).
		Category(errors.CategoryState).
		Context("error", msg).
		Build()
}
