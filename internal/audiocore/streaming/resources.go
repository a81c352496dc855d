package streaming

import (
	"log/slog"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Hunt-Master-Academy/hma-gamecalls-engine-sub011/internal/errors"
)

// ResourceShare is a stream's isolated slice of the processor-wide budget,
// in percent.
type ResourceShare struct {
	CPUPercent    float64
	MemoryPercent float64
	Priority      int
}

// resourceLedger tracks per-stream shares and enforces that their sums never
// exceed 100% on either axis. Admission is atomic: a rejected stream holds
// nothing.
type resourceLedger struct {
	mu       sync.Mutex
	shares   map[string]ResourceShare
	cpuTotal float64
	memTotal float64

	hostCPUs     int
	hostMemBytes uint64
}

func newResourceLedger(logger *slog.Logger) *resourceLedger {
	ledger := &resourceLedger{shares: make(map[string]ResourceShare)}

	// Host baselines are advisory; admission works on shares alone.
	if n, err := cpu.Counts(true); err == nil {
		ledger.hostCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		ledger.hostMemBytes = vm.Total
	}
	logger.Debug("resource ledger created",
		"host_cpus", ledger.hostCPUs,
		"host_mem_bytes", ledger.hostMemBytes)

	return ledger
}

// admit reserves a share for id. Shares summing past 100% on either axis are
// rejected with a limit error.
func (l *resourceLedger) admit(id string, share ResourceShare) error {
	if share.CPUPercent < 0 || share.MemoryPercent < 0 {
		return errors.Newf("negative resource share cpu=%.1f mem=%.1f", share.CPUPercent, share.MemoryPercent).
			Component(componentStreaming).
			Category(errors.CategoryValidation).
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cpuTotal+share.CPUPercent > 100 {
		return limitError("cpu", l.cpuTotal, share.CPUPercent)
	}
	if l.memTotal+share.MemoryPercent > 100 {
		return limitError("memory", l.memTotal, share.MemoryPercent)
	}

	l.shares[id] = share
	l.cpuTotal += share.CPUPercent
	l.memTotal += share.MemoryPercent
	return nil
}

// release returns id's share to the budget. Unknown ids are a no-op.
func (l *resourceLedger) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	share, ok := l.shares[id]
	if !ok {
		return
	}
	delete(l.shares, id)
	l.cpuTotal -= share.CPUPercent
	l.memTotal -= share.MemoryPercent
}

// usage returns the committed share totals.
func (l *resourceLedger) usage() (cpuPercent, memPercent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cpuTotal, l.memTotal
}

func limitError(resource string, committed, requested float64) error {
	return errors.Newf("%s share exhausted: %.1f%% committed, %.1f%% requested", resource, committed, requested).
		Component(componentStreaming).
		Category(errors.CategoryLimit).
		Context("resource", resource).
		Context("committed_percent", committed).
		Context("requested_percent", requested).
		Build()
}
