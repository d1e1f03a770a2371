package guard

import (
	"strings"
	"testing"
	"time"
)

func testSampler(cpuPct, ramPct float64) *Sampler {
	s := NewSampler(time.Millisecond)
	s.read = func() (float64, float64, error) { return cpuPct, ramPct, nil }
	return s
}

func TestGatesUnderLoad(t *testing.T) {
	g := NewGovernor(testSampler(95, 90), 100, 30, 10)

	if d := g.AllowPreview(); d.Allow {
		t.Error("preview allowed at RAM 90%")
	} else if !strings.Contains(d.Reason, "RAM 90%") {
		t.Errorf("preview reason = %q", d.Reason)
	}
	if d := g.AllowWatchers(); d.Allow {
		t.Error("watchers allowed at RAM 90%")
	}
	if d := g.AllowPlanner(); d.Allow {
		t.Error("planner allowed at CPU 95%")
	}
	if d := g.AllowHeavyAgent(); d.Allow {
		t.Error("heavy agent allowed under load")
	} else if !strings.Contains(d.Reason, "Servidor sob carga") {
		t.Errorf("heavy reason = %q", d.Reason)
	}
}

func TestGatesIdle(t *testing.T) {
	g := NewGovernor(testSampler(10, 40), 100, 30, 10)

	for name, d := range map[string]Decision{
		"preview":  g.AllowPreview(),
		"watchers": g.AllowWatchers(),
		"planner":  g.AllowPlanner(),
		"heavy":    g.AllowHeavyAgent(),
	} {
		if !d.Allow {
			t.Errorf("%s denied on idle host: %s", name, d.Reason)
		}
		if !strings.Contains(d.Reason, "ok") {
			t.Errorf("%s reason = %q", name, d.Reason)
		}
	}
}

func TestEnergyBudget(t *testing.T) {
	g := NewGovernor(testSampler(10, 40), 100, 30, 10)

	g.Spend(60)
	if g.EnergyLow() {
		t.Error("low at 40")
	}

	g2 := NewGovernor(testSampler(10, 40), 100, 30, 10)
	g2.Spend(80)
	if !g2.EnergyLow() {
		t.Error("not low at 20")
	}
	if g2.EnergyCritical() {
		t.Error("critical at 20")
	}

	g2.Spend(15)
	if !g2.EnergyCritical() {
		t.Error("not critical at 5")
	}
	if d := g2.AllowHeavyAgent(); d.Allow {
		t.Error("heavy agent allowed at critical energy")
	}

	g2.Recharge()
	if g2.Energy() != 100 {
		t.Errorf("energy after recharge = %d", g2.Energy())
	}

	g2.Spend(1000)
	if g2.Energy() != 0 {
		t.Errorf("energy went negative: %d", g2.Energy())
	}
}

func TestEnergyRecovery(t *testing.T) {
	g := NewGovernor(testSampler(10, 40), 90, 30, 10)

	g.Spend(85)
	if !g.EnergyCritical() {
		t.Fatal("not critical at 5")
	}
	g.Recover(EnergyRecovery)
	if g.EnergyCritical() {
		t.Error("critical after recovery")
	}
	if d := g.AllowHeavyAgent(); !d.Allow {
		t.Errorf("heavy agent denied after recovery: %s", d.Reason)
	}

	g.Recover(1000)
	if g.Energy() != 90 {
		t.Errorf("energy overflowed max: %d", g.Energy())
	}

	// Steady traffic that recovers after every reply holds the budget
	// at the maximum instead of draining it to critical.
	for i := 0; i < 200; i++ {
		g.Spend(1)
		g.Recover(EnergyRecovery)
	}
	if g.Energy() != 90 {
		t.Errorf("energy after sustained turns = %d", g.Energy())
	}
	if d := g.AllowHeavyAgent(); !d.Allow {
		t.Errorf("heavy agent denied after sustained turns: %s", d.Reason)
	}
}

func TestSamplerCaching(t *testing.T) {
	calls := 0
	s := NewSampler(time.Hour)
	s.read = func() (float64, float64, error) {
		calls++
		return 1, 2, nil
	}

	s.Sample()
	s.Sample()
	s.Sample()
	if calls != 1 {
		t.Errorf("read calls = %d, want 1 (cached)", calls)
	}
}
