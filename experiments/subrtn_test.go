package experiments

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

var _ adr.Algorithm = &PGSubrtn{}

func testingPGRollout(steps int, scale float64) *adr.Rollout {
	// Rollouts come in as detached single-precision
	// copies, so build them with a different creator
	// than the subroutine's.
	c := anyvec32.CurrentCreator()
	ro := &adr.Rollout{}
	for t := 0; t <= steps; t++ {
		ro.Observations = append(ro.Observations,
			makeVec(c, 0.1*float64(t), -0.1*float64(t)))
	}
	for t := 0; t < steps; t++ {
		ro.Actions = append(ro.Actions, makeVec(c, scale*0.2))
		ro.Rewards = append(ro.Rewards, scale)
	}
	return ro
}

func TestPGSubrtnUpdate(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(2))}
	subrtn := NewPGSubrtn(c, env.Spec(), 4)

	before := netParams(subrtn.Net)
	batch := []*adr.Rollout{testingPGRollout(3, 1), testingPGRollout(3, -1)}
	if err := subrtn.Update(batch); err != nil {
		t.Fatal(err)
	}
	if subrtn.SampleCount() != 6 {
		t.Errorf("expected sample count 6, got %d", subrtn.SampleCount())
	}
	after := netParams(subrtn.Net)
	changed := false
	for i, x := range after {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("non-finite parameter %f", x)
		}
		if x != before[i] {
			changed = true
		}
	}
	if !changed {
		t.Error("update left the policy unchanged")
	}

	// An empty batch is a no-op.
	if err := subrtn.Update(nil); err != nil {
		t.Fatal(err)
	}
	if subrtn.SampleCount() != 6 {
		t.Error("empty update should not consume samples")
	}
}

func TestPGSubrtnPolicy(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(3))}
	subrtn := NewPGSubrtn(c, env.Spec(), 4)
	action, err := subrtn.Policy().Act(makeVec(c, 0.1, 0.2))
	if err != nil {
		t.Fatal(err)
	}
	if action.Len() != 1 {
		t.Errorf("expected a 1-D action, got %d-D", action.Len())
	}
}

func TestPGSubrtnSnapshots(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(4))}
	subrtn := NewPGSubrtn(c, env.Spec(), 4)
	subrtn.SaveDir = t.TempDir()

	if err := subrtn.MakeSnapshot("best", 1); err != nil {
		t.Fatal(err)
	}
	if err := subrtn.MakeSnapshot("best", 0.5); err != nil {
		t.Fatal(err)
	}
	if !subrtn.haveBest || subrtn.bestMetric != 1 {
		t.Errorf("expected best metric 1, got %f", subrtn.bestMetric)
	}
	if err := subrtn.MakeSnapshot("best", 2); err != nil {
		t.Fatal(err)
	}
	if subrtn.bestMetric != 2 {
		t.Errorf("expected best metric 2, got %f", subrtn.bestMetric)
	}
}

func netParams(net anynet.Net) []float64 {
	var res []float64
	for _, v := range anynet.AllParameters(net) {
		res = append(res, toFloats(v.Vector.Data())...)
	}
	return res
}
