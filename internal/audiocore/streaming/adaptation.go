package streaming

import (
	"time"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
)

// QualityTier is an output quality level. Network adaptation moves streams
// between tiers; TierLow is the floor and is never left downward.
type QualityTier int

const (
	TierLow QualityTier = iota // minimum intelligible quality
	TierMedium
	TierHigh
	TierUltra
)

// String returns the tier name used in logs.
func (t QualityTier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	case TierUltra:
		return "ultra"
	default:
		return "unknown"
	}
}

// bitrateKbps returns the tier's nominal target bitrate.
func (t QualityTier) bitrateKbps() float64 {
	switch t {
	case TierLow:
		return 24
	case TierMedium:
		return 64
	case TierHigh:
		return 128
	default:
		return 256
	}
}

// NetworkConditions are externally supplied transport measurements.
type NetworkConditions struct {
	BandwidthKbps float64
	LatencyMs     float64
	JitterMs      float64
	LossPercent   float64
}

// selectTier maps network conditions to a quality tier. The mapping is
// monotonic: worse loss, latency or jitter never yields a higher tier, and
// insufficient bandwidth caps the tier. The result never drops below
// TierLow.
func selectTier(cond NetworkConditions) QualityTier {
	// Degradation score: loss dominates, latency and jitter contribute.
	score := cond.LossPercent*4 + cond.LatencyMs/50 + cond.JitterMs/20

	tier := TierUltra
	switch {
	case score >= 12:
		tier = TierLow
	case score >= 6:
		tier = TierMedium
	case score >= 2:
		tier = TierHigh
	}

	// Bandwidth caps the tier regardless of the score.
	for tier > TierLow && cond.BandwidthKbps > 0 && cond.BandwidthKbps < tier.bitrateKbps() {
		tier--
	}

	return tier
}

// bufferAdaptation is one adaptive sizing decision, returned for logging.
type bufferAdaptation struct {
	oldCapacity int
	newCapacity int
	reason      string
}

// planBufferAdaptation decides a new ring capacity from the stream's fault
// counters and its latency target. Underflows mean the reader starves and
// overflows mean the writer outpaces the reader; both argue for more
// headroom. A clean buffer drifts toward the capacity matching the target
// latency.
func planBufferAdaptation(stats audiocore.BufferStats, config StreamConfig, minFrames, maxFrames int) *bufferAdaptation {
	target := framesForLatency(config.TargetLatency, config.SampleRate)
	target = clampFrames(target, minFrames, maxFrames)

	ops := stats.TotalWrites + stats.TotalReads
	if ops == 0 {
		return nil
	}
	faultRate := float64(stats.OverflowEvents+stats.UnderflowEvents) / float64(ops)

	switch {
	case faultRate > 0.05:
		grown := clampFrames(stats.Capacity*2, minFrames, maxFrames)
		if grown != stats.Capacity {
			return &bufferAdaptation{stats.Capacity, grown, "fault rate above 5%"}
		}
	case faultRate == 0 && stats.Capacity > target*2:
		shrunk := clampFrames(stats.Capacity/2, minFrames, maxFrames)
		if shrunk >= target && shrunk != stats.Capacity {
			return &bufferAdaptation{stats.Capacity, shrunk, "clean run, converging on target latency"}
		}
	}
	return nil
}

func framesForLatency(latency time.Duration, sampleRate int) int {
	if latency <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(float64(sampleRate) * latency.Seconds())
}

func clampFrames(frames, minFrames, maxFrames int) int {
	if frames < minFrames {
		return minFrames
	}
	if frames > maxFrames {
		return maxFrames
	}
	return frames
}
