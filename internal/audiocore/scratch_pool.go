package audiocore

import (
	"sync"
)

// ScratchPoolConfig sizes the pool tiers. Sizes are in float32 samples.
type ScratchPoolConfig struct {
	SmallSize  int // e.g. 4096 samples
	MediumSize int // e.g. 65536 samples
	LargeSize  int // e.g. 1M samples
}

// DefaultScratchPoolConfig covers chunk-sized through full-buffer workspaces.
var DefaultScratchPoolConfig = ScratchPoolConfig{
	SmallSize:  4 * 1024,
	MediumSize: 64 * 1024,
	LargeSize:  1024 * 1024,
}

// ScratchPoolStats contains statistics about pool usage.
type ScratchPoolStats struct {
	TotalGets     int64
	ActiveBuffers int
	CustomAllocs  int64
}

// ScratchPool hands out float32 scratch slices for per-call converter and
// assessor workspaces. The converter and assessor are stateless per call, so
// scratch memory never outlives the call that acquired it.
type ScratchPool struct {
	smallPool  sync.Pool
	mediumPool sync.Pool
	largePool  sync.Pool
	config     ScratchPoolConfig
	stats      ScratchPoolStats
	tierActive map[string]int
	statsMu    sync.Mutex
}

// NewScratchPool creates a pool with the given tier sizes.
func NewScratchPool(config ScratchPoolConfig) *ScratchPool {
	pool := &ScratchPool{config: config, tierActive: make(map[string]int)}

	pool.smallPool.New = func() any {
		buf := make([]float32, config.SmallSize)
		return &buf
	}
	pool.mediumPool.New = func() any {
		buf := make([]float32, config.MediumSize)
		return &buf
	}
	pool.largePool.New = func() any {
		buf := make([]float32, config.LargeSize)
		return &buf
	}

	return pool
}

// Get returns a zero-length slice with capacity of at least size, and the
// tier it came from. Slices above the large tier are allocated directly and
// not pooled on return.
func (p *ScratchPool) Get(size int) ([]float32, string) {
	var tier string
	var buf *[]float32

	switch {
	case size <= p.config.SmallSize:
		tier = "small"
		buf = p.smallPool.Get().(*[]float32)
	case size <= p.config.MediumSize:
		tier = "medium"
		buf = p.mediumPool.Get().(*[]float32)
	case size <= p.config.LargeSize:
		tier = "large"
		buf = p.largePool.Get().(*[]float32)
	default:
		tier = "custom"
	}

	p.statsMu.Lock()
	p.stats.TotalGets++
	p.stats.ActiveBuffers++
	if tier == "custom" {
		p.stats.CustomAllocs++
	}
	p.tierActive[tier]++
	inUse := p.tierActive[tier]
	p.statsMu.Unlock()
	GetMetrics().UpdateBuffersInUse(tier, inUse)

	if tier == "custom" {
		GetMetrics().RecordBufferAllocation(tier, false)
		return make([]float32, 0, size), tier
	}
	GetMetrics().RecordBufferAllocation(tier, true)
	return (*buf)[:0], tier
}

// Put returns a slice to its tier. The slice must originate from Get; custom
// sized slices are dropped for the garbage collector.
func (p *ScratchPool) Put(buf []float32, tier string) {
	p.statsMu.Lock()
	if p.stats.ActiveBuffers > 0 {
		p.stats.ActiveBuffers--
	}
	if p.tierActive[tier] > 0 {
		p.tierActive[tier]--
	}
	inUse := p.tierActive[tier]
	p.statsMu.Unlock()
	GetMetrics().UpdateBuffersInUse(tier, inUse)

	full := buf[:cap(buf)]
	switch tier {
	case "small":
		p.smallPool.Put(&full)
	case "medium":
		p.mediumPool.Put(&full)
	case "large":
		p.largePool.Put(&full)
	}
}

// Stats returns a snapshot of pool statistics.
func (p *ScratchPool) Stats() ScratchPoolStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}
