package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScratchPoolTiers(t *testing.T) {
	pool := NewScratchPool(ScratchPoolConfig{
		SmallSize:  64,
		MediumSize: 1024,
		LargeSize:  16384,
	})

	tests := []struct {
		size int
		tier string
	}{
		{16, "small"},
		{64, "small"},
		{65, "medium"},
		{1024, "medium"},
		{2000, "large"},
		{100000, "custom"},
	}

	for _, tt := range tests {
		buf, tier := pool.Get(tt.size)
		assert.Equal(t, tt.tier, tier, "size %d", tt.size)
		assert.Zero(t, len(buf))
		assert.GreaterOrEqual(t, cap(buf), tt.size)
		pool.Put(buf, tier)
	}
}

func TestScratchPoolReuse(t *testing.T) {
	pool := NewScratchPool(DefaultScratchPoolConfig)

	buf, tier := pool.Get(100)
	buf = buf[:100]
	buf[0] = 42
	pool.Put(buf, tier)

	again, tier2 := pool.Get(100)
	assert.Equal(t, tier, tier2)
	assert.GreaterOrEqual(t, cap(again), 100)
	pool.Put(again, tier2)
}

func TestScratchPoolStats(t *testing.T) {
	pool := NewScratchPool(ScratchPoolConfig{SmallSize: 8, MediumSize: 16, LargeSize: 32})

	a, aTier := pool.Get(8)
	b, bTier := pool.Get(1000) // above large tier

	stats := pool.Stats()
	assert.Equal(t, int64(2), stats.TotalGets)
	assert.Equal(t, 2, stats.ActiveBuffers)
	assert.Equal(t, int64(1), stats.CustomAllocs)
	assert.Equal(t, "custom", bTier)

	pool.Put(a, aTier)
	pool.Put(b, bTier)
	assert.Zero(t, pool.Stats().ActiveBuffers)
}
