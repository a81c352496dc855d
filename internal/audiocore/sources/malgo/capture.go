// Package malgo captures PCM from the system soundcard and emits fixed-size
// float32 chunks suitable for the streaming processor.
package malgo

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/logging"
)

const componentCapture = "audiocore.capture"

// ringSeconds sizes the byte ferry between the device callback and the chunk
// assembler.
const ringSeconds = 2

// CaptureConfig configures a capture source. Zero values fall back to
// sensible capture defaults.
type CaptureConfig struct {
	DeviceName   string
	SampleRate   int
	Channels     int
	ChunkSamples int // frames per emitted chunk
	Gain         float64
}

// CaptureSource pulls float32 PCM from a malgo capture device. The device
// callback writes raw bytes into a ring buffer; an assembly goroutine drains
// it into fixed-size AudioChunks so the callback never blocks on a slow
// consumer.
type CaptureSource struct {
	id     string
	config CaptureConfig
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	cancel  context.CancelFunc
	running atomic.Bool
	gain    atomic.Uint64 // float64 bits

	ring    *ringbuffer.RingBuffer
	chunkCh chan *audiocore.AudioChunk
	errCh   chan error
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewCaptureSource creates a source for the named device.
func NewCaptureSource(id string, config CaptureConfig) *CaptureSource {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.ChunkSamples == 0 {
		config.ChunkSamples = 1024
	}
	if config.Gain == 0 {
		config.Gain = 1.0
	}

	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	s := &CaptureSource{
		id:      id,
		config:  config,
		logger:  logger.With("component", "capture", "source_id", id),
		chunkCh: make(chan *audiocore.AudioChunk, 8),
		errCh:   make(chan error, 8),
	}
	s.gain.Store(math.Float64bits(config.Gain))
	return s
}

// ID returns the source identifier.
func (s *CaptureSource) ID() string { return s.id }

// Format returns the emitted chunk format.
func (s *CaptureSource) Format() audiocore.AudioFormat {
	return audiocore.AudioFormat{
		SampleRate: s.config.SampleRate,
		Channels:   s.config.Channels,
		BitDepth:   32,
		Format:     audiocore.FormatF32,
	}
}

// Chunks delivers assembled capture chunks. The channel closes on Stop.
func (s *CaptureSource) Chunks() <-chan *audiocore.AudioChunk { return s.chunkCh }

// Errors delivers capture-side errors. The channel closes on Stop.
func (s *CaptureSource) Errors() <-chan error { return s.errCh }

// IsActive reports whether the device is capturing.
func (s *CaptureSource) IsActive() bool { return s.running.Load() }

// SetGain adjusts the capture gain, 0.0 to 2.0.
func (s *CaptureSource) SetGain(gain float64) error {
	if gain < 0 || gain > 2 {
		return errors.Newf("gain %.2f out of range [0, 2]", gain).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("gain", gain).
			Build()
	}
	s.gain.Store(math.Float64bits(gain))
	return nil
}

// DroppedBytes reports how many callback bytes the ferry had to discard.
func (s *CaptureSource) DroppedBytes() int64 { return s.dropped.Load() }

// Start opens the device and begins emitting chunks.
func (s *CaptureSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(nil).
			Component(componentCapture).
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Context("error", "source already running").
			Build()
	}

	backend, err := backendForPlatform()
	if err != nil {
		return err
	}
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("operation", "init_context").
			Build()
	}

	devices, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_devices").
			Build()
	}
	deviceInfo, err := selectDevice(devices, s.config.DeviceName)
	if err != nil {
		_ = malgoCtx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.config.Channels)
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = uint32(s.config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	frameBytes := s.config.Channels * 4
	s.ring = ringbuffer.New(ringSeconds * s.config.SampleRate * frameBytes)
	s.ring.SetBlocking(true)

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("device_name", s.config.DeviceName).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudio).
			Context("source_id", s.id).
			Context("operation", "start_device").
			Build()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	s.ctx = malgoCtx
	s.device = device
	s.cancel = cancel
	s.running.Store(true)

	s.wg.Add(2)
	go s.assemble()
	go s.watch(captureCtx)

	s.logger.Info("capture started",
		"device", deviceInfo.Name(),
		"sample_rate", s.config.SampleRate,
		"channels", s.config.Channels,
		"chunk_samples", s.config.ChunkSamples)
	return nil
}

// Stop halts capture, closes the output channels and releases the device.
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	if s.cancel != nil {
		s.cancel()
	}
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}

	// Wake the assembler so it can drain and exit.
	s.ring.CloseWriter()
	s.wg.Wait()

	close(s.chunkCh)
	close(s.errCh)
	s.logger.Info("capture stopped", "dropped_bytes", s.dropped.Load())
	return nil
}

// onData runs on the device thread. It must never block: bytes that do not
// fit in the ferry are dropped and counted.
func (s *CaptureSource) onData(_, samples []byte, _ uint32) {
	if !s.running.Load() {
		return
	}
	n, err := s.ring.TryWrite(samples)
	if err != nil || n < len(samples) {
		s.dropped.Add(int64(len(samples) - n))
	}
}

// assemble drains the ferry into fixed-size chunks.
func (s *CaptureSource) assemble() {
	defer s.wg.Done()

	frameBytes := s.config.Channels * 4
	chunkBytes := s.config.ChunkSamples * frameBytes
	raw := make([]byte, chunkBytes)
	gainApplied := false

	for {
		if _, err := io.ReadFull(s.ring, raw); err != nil {
			return
		}

		samples := make([]float32, s.config.ChunkSamples*s.config.Channels)
		gain := math.Float64frombits(s.gain.Load())
		gainApplied = gain != 1.0
		for i := range samples {
			v := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			if gainApplied {
				v = float32(float64(v) * gain)
				if v > 1 {
					v = 1
				} else if v < -1 {
					v = -1
				}
			}
			samples[i] = v
		}

		chunk := &audiocore.AudioChunk{
			Samples:   samples,
			Format:    s.Format(),
			Timestamp: time.Now(),
			Duration:  s.Format().ChunkDuration(s.config.ChunkSamples),
			SourceID:  s.id,
		}

		select {
		case s.chunkCh <- chunk:
		default:
			// Consumer lagging; drop rather than stall the ferry.
			s.dropped.Add(int64(chunkBytes))
		}
	}
}

// watch stops the source when the context ends.
func (s *CaptureSource) watch(ctx context.Context) {
	defer s.wg.Done()
	<-ctx.Done()
	if s.running.Load() {
		go func() { _ = s.Stop() }()
	}
}

// onDeviceStop fires when the device halts outside Stop, e.g. an unplugged
// interface. One restart is attempted after a short pause.
func (s *CaptureSource) onDeviceStop() {
	if !s.running.Load() {
		return
	}
	s.reportError(errors.New(nil).
		Component(componentCapture).
		Category(errors.CategoryAudio).
		Context("source_id", s.id).
		Context("error", "capture device stopped unexpectedly").
		Build())

	go func() {
		time.Sleep(time.Second)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running.Load() && s.device != nil {
			if err := s.device.Start(); err != nil {
				s.reportError(errors.New(err).
					Component(componentCapture).
					Category(errors.CategoryAudio).
					Context("source_id", s.id).
					Context("operation", "restart_device").
					Build())
			}
		}
	}()
}

func (s *CaptureSource) reportError(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}
