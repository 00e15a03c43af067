package experiments

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

var _ adr.Env = &Pendulum{}

func makeVec(c anyvec.Creator, data ...float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}

func TestPendulumDomainParam(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(1))}
	if _, err := env.Reset(adr.WithDomainParam(map[string]float64{"gravity": 5})); err != nil {
		t.Fatal(err)
	}
	params := env.DomainParam()
	if params["gravity"] != 5 {
		t.Errorf("expected gravity 5, got %f", params["gravity"])
	}
	if params["mass"] != PendulumMass || params["length"] != PendulumLength {
		t.Error("untouched parameters should stay nominal")
	}
	if _, err := env.Reset(adr.WithDomainParam(map[string]float64{"friction": 1})); err == nil {
		t.Error("expected an error for an unknown parameter")
	}
}

func TestPendulumDynamics(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(1))}

	// Balanced upright with no torque, the pendulum
	// stays put.
	if _, err := env.Reset(adr.WithInitState(makeVec(c, 0, 0))); err != nil {
		t.Fatal(err)
	}
	obs, reward, done, err := env.Step(makeVec(c, 0))
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Error("episodes should only end via the step bound")
	}
	vals := toFloats(obs.Data())
	if math.Abs(vals[0]) > 1e-9 || math.Abs(vals[1]) > 1e-9 {
		t.Errorf("expected the upright fixed point, got %v", vals)
	}
	if math.Abs(reward-1) > 1e-9 {
		t.Errorf("expected reward 1, got %f", reward)
	}

	// Horizontal with no torque, gravity pulls the
	// pendulum down.
	if _, err := env.Reset(adr.WithInitState(makeVec(c, math.Pi/2, 0))); err != nil {
		t.Fatal(err)
	}
	obs, reward, _, err = env.Step(makeVec(c, 0))
	if err != nil {
		t.Fatal(err)
	}
	vals = toFloats(obs.Data())
	expectedThdot := -3 * PendulumGravity / 2 * math.Sin(math.Pi/2+math.Pi) * pendulumDt
	expectedTh := math.Pi/2 + expectedThdot*pendulumDt
	if math.Abs(vals[1]-expectedThdot) > 1e-9 {
		t.Errorf("expected angular velocity %f, got %f", expectedThdot, vals[1])
	}
	if math.Abs(vals[0]-expectedTh) > 1e-9 {
		t.Errorf("expected angle %f, got %f", expectedTh, vals[0])
	}
	if math.Abs(reward-math.Cos(expectedTh)) > 1e-9 {
		t.Errorf("expected reward %f, got %f", math.Cos(expectedTh), reward)
	}
}

func TestPendulumBadInitState(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(1))}
	if _, err := env.Reset(adr.WithInitState(makeVec(c, 1, 2, 3))); err == nil {
		t.Error("expected an error for a mis-sized init state")
	}
}

func TestPendulumNominalRoundTrip(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(5))}
	adapter := &adr.SVPGAdapter{
		Creator: c,
		Env:     env,
		Params:  adr.AllDomainParams(env),
	}
	nominal := adapter.NominalDict()
	for name, value := range env.NominalDomainParam() {
		if nominal[name] != value {
			t.Errorf("parameter %s: expected %f, got %f", name, value, nominal[name])
		}
	}
	dict := adapter.ArrayToDict(adapter.Nominal())
	for name, value := range nominal {
		if dict[name] != value {
			t.Errorf("parameter %s: round trip gave %f, want %f",
				name, dict[name], value)
		}
	}
}

func TestPendulumClone(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	env := &Pendulum{Creator: c, Rand: rand.New(rand.NewSource(1))}
	if _, err := env.Reset(adr.WithDomainParam(map[string]float64{"mass": 2}),
		adr.WithInitState(makeVec(c, 0.5, 0))); err != nil {
		t.Fatal(err)
	}

	clone := env.Clone().(*Pendulum)
	if clone.DomainParam()["mass"] != 2 {
		t.Error("clone should inherit the installed physics")
	}

	if _, err := clone.Reset(adr.WithInitState(makeVec(c, -0.5, 0))); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := clone.Step(makeVec(c, 1)); err != nil {
		t.Fatal(err)
	}
	if env.th != 0.5 || env.thdot != 0 {
		t.Error("stepping the clone mutated the original")
	}
}
