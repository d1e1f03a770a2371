package guard

import (
	"fmt"
	"sync"
)

// Thresholds (percent) for the capability gates.
const (
	PreviewRAMMax    = 85.0
	WatchersRAMMax   = 80.0
	PlannerCPUMax    = 90.0
	HeavyAgentCPUMax = 85.0
	HeavyAgentRAMMax = 80.0
)

// Decision is the outcome of a gate check, always with a reason a user
// can be shown.
type Decision struct {
	Allow  bool
	Reason string
}

// Governor turns sampled load into capability gates, and tracks a
// coarse energy budget that drains as expensive work runs.
type Governor struct {
	sampler *Sampler

	mu             sync.Mutex
	energy         int
	energyMax      int
	lowThreshold   int
	criticalThresh int
}

// NewGovernor creates a governor over the given sampler with the
// configured energy budget.
func NewGovernor(sampler *Sampler, energyMax, lowThreshold, criticalThreshold int) *Governor {
	if energyMax <= 0 {
		energyMax = 100
	}
	return &Governor{
		sampler:        sampler,
		energy:         energyMax,
		energyMax:      energyMax,
		lowThreshold:   lowThreshold,
		criticalThresh: criticalThreshold,
	}
}

// AllowPreview gates live preview rendering on RAM.
func (g *Governor) AllowPreview() Decision {
	snap := g.sampler.Sample()
	if snap.RAMPercent > PreviewRAMMax {
		return Decision{false, fmt.Sprintf("RAM %.0f%% >= %.0f%%", snap.RAMPercent, PreviewRAMMax)}
	}
	return okDecision(snap)
}

// AllowWatchers gates file watchers on RAM.
func (g *Governor) AllowWatchers() Decision {
	snap := g.sampler.Sample()
	if snap.RAMPercent > WatchersRAMMax {
		return Decision{false, fmt.Sprintf("RAM %.0f%% >= %.0f%%", snap.RAMPercent, WatchersRAMMax)}
	}
	return okDecision(snap)
}

// AllowPlanner gates multi-step planning on CPU.
func (g *Governor) AllowPlanner() Decision {
	snap := g.sampler.Sample()
	if snap.CPUPercent > PlannerCPUMax {
		return Decision{false, fmt.Sprintf("CPU %.0f%% >= %.0f%%", snap.CPUPercent, PlannerCPUMax)}
	}
	return okDecision(snap)
}

// AllowHeavyAgent gates the expensive agent paths (tool loop, sandbox
// execution) on both CPU and RAM.
func (g *Governor) AllowHeavyAgent() Decision {
	snap := g.sampler.Sample()
	if snap.CPUPercent > HeavyAgentCPUMax || snap.RAMPercent > HeavyAgentRAMMax {
		return Decision{false, fmt.Sprintf("Servidor sob carga (CPU: %.0f%%, RAM: %.0f%%)", snap.CPUPercent, snap.RAMPercent)}
	}
	if g.EnergyCritical() {
		return Decision{false, fmt.Sprintf("energia em nível crítico (%d/%d)", g.Energy(), g.energyMax)}
	}
	return okDecision(snap)
}

func okDecision(snap Snapshot) Decision {
	return Decision{true, fmt.Sprintf("CPU %.0f%%, RAM %.0f%% ok", snap.CPUPercent, snap.RAMPercent)}
}

// Spend drains the energy budget by cost, clamped at zero.
func (g *Governor) Spend(cost int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.energy -= cost
	if g.energy < 0 {
		g.energy = 0
	}
}

// EnergyRecovery is the amount restored after each successful reply.
const EnergyRecovery = 10

// Recover restores amount of energy, clamped at the maximum.
func (g *Governor) Recover(amount int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.energy += amount
	if g.energy > g.energyMax {
		g.energy = g.energyMax
	}
}

// Recharge resets the energy budget to its maximum.
func (g *Governor) Recharge() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.energy = g.energyMax
}

// Energy returns the remaining budget.
func (g *Governor) Energy() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.energy
}

// EnergyLow reports whether the budget crossed the low-water mark.
func (g *Governor) EnergyLow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.energy <= g.lowThreshold
}

// EnergyCritical reports whether the budget crossed the critical mark.
func (g *Governor) EnergyCritical() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.energy <= g.criticalThresh
}
