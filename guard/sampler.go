// Package guard implements soft admission control: it samples host
// CPU and RAM and exposes boolean gates that degrade features before
// the machine runs out of memory.
package guard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is one observation of host load.
type Snapshot struct {
	CPUPercent float64
	RAMPercent float64
	Taken      time.Time
}

// Sampler reads host telemetry, caching snapshots briefly so the gates
// stay cheap on the hot path.
type Sampler struct {
	mu     sync.Mutex
	last   Snapshot
	maxAge time.Duration

	// read is swapped out in tests.
	read func() (cpuPct, ramPct float64, err error)
}

// NewSampler creates a sampler that refreshes at most every maxAge.
func NewSampler(maxAge time.Duration) *Sampler {
	if maxAge <= 0 {
		maxAge = 2 * time.Second
	}
	return &Sampler{
		maxAge: maxAge,
		read:   readHost,
	}
}

// StaticSampler returns a sampler pinned to fixed readings, for callers
// whose gating must not depend on live telemetry.
func StaticSampler(cpuPct, ramPct float64) *Sampler {
	s := NewSampler(time.Hour)
	s.read = func() (float64, float64, error) { return cpuPct, ramPct, nil }
	return s
}

func readHost() (float64, float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	// Interval 0 returns utilization since the previous call, which is
	// what a periodic sampler wants.
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, vm.UsedPercent, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	return cpuPct, vm.UsedPercent, nil
}

// Sample returns the current load, reusing a recent snapshot when one
// is fresh enough. Telemetry failures log and report zero load, so the
// guard fails open.
func (s *Sampler) Sample() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.last.Taken) < s.maxAge {
		return s.last
	}

	cpuPct, ramPct, err := s.read()
	if err != nil {
		slog.Warn("resource sampling failed", "error", err)
	}
	s.last = Snapshot{CPUPercent: cpuPct, RAMPercent: ramPct, Taken: time.Now()}
	return s.last
}
