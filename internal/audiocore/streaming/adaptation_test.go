package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/audiocore"
)

func TestSelectTier_Monotonic(t *testing.T) {
	base := NetworkConditions{BandwidthKbps: 1000}

	// Worsening any single axis must never raise the tier.
	axes := []struct {
		name  string
		steps []NetworkConditions
	}{
		{"loss", []NetworkConditions{
			base,
			{BandwidthKbps: 1000, LossPercent: 1},
			{BandwidthKbps: 1000, LossPercent: 2},
			{BandwidthKbps: 1000, LossPercent: 5},
		}},
		{"latency", []NetworkConditions{
			base,
			{BandwidthKbps: 1000, LatencyMs: 150},
			{BandwidthKbps: 1000, LatencyMs: 400},
			{BandwidthKbps: 1000, LatencyMs: 800},
		}},
		{"jitter", []NetworkConditions{
			base,
			{BandwidthKbps: 1000, JitterMs: 50},
			{BandwidthKbps: 1000, JitterMs: 150},
			{BandwidthKbps: 1000, JitterMs: 300},
		}},
	}

	for _, axis := range axes {
		t.Run(axis.name, func(t *testing.T) {
			prev := selectTier(axis.steps[0])
			for _, cond := range axis.steps[1:] {
				tier := selectTier(cond)
				assert.LessOrEqual(t, tier, prev, "worse %s must not raise the tier", axis.name)
				prev = tier
			}
		})
	}
}

func TestSelectTier_Bounds(t *testing.T) {
	// Pristine conditions reach the top tier.
	assert.Equal(t, TierUltra, selectTier(NetworkConditions{BandwidthKbps: 1000}))

	// Catastrophic conditions bottom out at the floor, never below.
	worst := selectTier(NetworkConditions{
		BandwidthKbps: 8,
		LatencyMs:     2000,
		JitterMs:      500,
		LossPercent:   30,
	})
	assert.Equal(t, TierLow, worst)
}

func TestSelectTier_BandwidthCap(t *testing.T) {
	// Clean link, but too slow for the top tiers.
	tier := selectTier(NetworkConditions{BandwidthKbps: 80})
	assert.Equal(t, TierMedium, tier, "bandwidth caps the tier below its bitrate")
}

func TestPlanBufferAdaptation(t *testing.T) {
	cfg := StreamConfig{
		SampleRate:    44100,
		Channels:      1,
		BufferSamples: 4096,
		TargetLatency: 50 * time.Millisecond,
	}

	t.Run("no traffic no plan", func(t *testing.T) {
		plan := planBufferAdaptation(audiocore.BufferStats{Capacity: 4096}, cfg, 1024, 65536)
		assert.Nil(t, plan)
	})

	t.Run("faults grow the buffer", func(t *testing.T) {
		stats := audiocore.BufferStats{
			Capacity:        4096,
			TotalWrites:     100,
			TotalReads:      100,
			UnderflowEvents: 15,
		}
		plan := planBufferAdaptation(stats, cfg, 1024, 65536)
		if assert.NotNil(t, plan) {
			assert.Equal(t, 8192, plan.newCapacity)
		}
	})

	t.Run("growth respects the ceiling", func(t *testing.T) {
		stats := audiocore.BufferStats{
			Capacity:       65536,
			TotalWrites:    100,
			TotalReads:     100,
			OverflowEvents: 20,
		}
		plan := planBufferAdaptation(stats, cfg, 1024, 65536)
		assert.Nil(t, plan, "already at the ceiling, nothing to do")
	})

	t.Run("clean oversized buffer shrinks toward target", func(t *testing.T) {
		// 50ms at 44.1k is 2205 frames; a clean 16k buffer can halve.
		stats := audiocore.BufferStats{
			Capacity:    16384,
			TotalWrites: 500,
			TotalReads:  500,
		}
		plan := planBufferAdaptation(stats, cfg, 1024, 65536)
		if assert.NotNil(t, plan) {
			assert.Equal(t, 8192, plan.newCapacity)
			assert.GreaterOrEqual(t, plan.newCapacity, 2205, "never shrink below the latency target")
		}
	})

	t.Run("clean right-sized buffer stays", func(t *testing.T) {
		stats := audiocore.BufferStats{
			Capacity:    4096,
			TotalWrites: 500,
			TotalReads:  500,
		}
		plan := planBufferAdaptation(stats, cfg, 1024, 65536)
		assert.Nil(t, plan)
	})
}
