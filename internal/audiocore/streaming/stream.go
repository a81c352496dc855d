// Package streaming orchestrates concurrent audio streams: per-stream ring
// buffers, deadline-bound chunk processing with overrun recovery, adaptive
// buffer sizing, network-driven quality tiers, and resource-share fairness.
package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore/convert"
)

const componentStreaming = "audiocore.streaming"

// Status is a stream's position in its lifecycle. Transitions:
// initialized → active ⇄ degraded → recovering → active | failed.
// destroyed is terminal from any state.
type Status int

const (
	StatusInitialized Status = iota
	StatusActive
	StatusDegraded
	StatusRecovering
	StatusFailed
	StatusDestroyed
)

// String returns the status name used in logs and notifications.
func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusActive:
		return "active"
	case StatusDegraded:
		return "degraded"
	case StatusRecovering:
		return "recovering"
	case StatusFailed:
		return "failed"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// StreamConfig describes one stream at initialization.
type StreamConfig struct {
	SampleRate    int
	Channels      int
	BufferSamples int // ring capacity in frames, also sets the deadline
	TargetLatency time.Duration
	Priority      int     // higher wins contention
	CPUShare      float64 // percent of the processor-wide CPU budget
	MemoryShare   float64 // percent of the processor-wide memory budget

	// Optional per-chunk conversion. Empty TargetFormat disables it.
	TargetFormat  string
	ConvertParams convert.ConversionParameters

	// QualityChecks runs the real-time monitor over each processed chunk.
	QualityChecks bool
}

// StreamInfo is a read-only snapshot of one stream.
type StreamInfo struct {
	ID              string
	Status          Status
	Config          StreamConfig
	Tier            QualityTier
	Deadline        time.Duration
	Recoveries      int
	ChunksProcessed int64
	Overruns        int64
	BufferStats     audiocore.BufferStats
	CreatedAt       time.Time
	LastChunkAt     time.Time
}

// StreamNotification reports a terminal or noteworthy stream transition to
// the processor's notification channel.
type StreamNotification struct {
	StreamID  string
	Status    Status
	Reason    string
	Timestamp time.Time
}

// streamState is the processor's per-stream record. The stream exclusively
// owns its ring buffer; destruction releases it.
type streamState struct {
	id     string
	config StreamConfig
	buffer *audiocore.CircularBuffer

	mu              sync.Mutex
	status          Status
	tier            QualityTier
	recoveries      int
	chunksProcessed int64
	overruns        int64
	createdAt       time.Time
	lastChunkAt     time.Time
}

func newStreamState(config StreamConfig, buffer *audiocore.CircularBuffer) *streamState {
	return &streamState{
		id:        uuid.New().String(),
		config:    config,
		buffer:    buffer,
		status:    StatusInitialized,
		tier:      TierHigh,
		createdAt: time.Now(),
	}
}

// deadline derives the per-chunk processing budget from the buffer size.
func (s *streamState) deadline() time.Duration {
	return time.Duration(float64(s.config.BufferSamples) / float64(s.config.SampleRate) * float64(time.Second))
}

func (s *streamState) currentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *streamState) snapshot() StreamInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamInfo{
		ID:              s.id,
		Status:          s.status,
		Config:          s.config,
		Tier:            s.tier,
		Deadline:        s.deadline(),
		Recoveries:      s.recoveries,
		ChunksProcessed: s.chunksProcessed,
		Overruns:        s.overruns,
		BufferStats:     s.buffer.Stats(),
		CreatedAt:       s.createdAt,
		LastChunkAt:     s.lastChunkAt,
	}
}
