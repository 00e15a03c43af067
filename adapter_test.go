package adr

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

// testEnv is a deterministic two-observation environment
// whose reward is the installed mass parameter.
type testEnv struct {
	creator anyvec.Creator
	steps   int
	param   map[string]float64
	t       int
}

func newTestEnv(c anyvec.Creator, steps int) *testEnv {
	return &testEnv{
		creator: c,
		steps:   steps,
		param:   map[string]float64{"mass": 1, "length": 2},
	}
}

func (e *testEnv) Spec() *EnvSpec {
	return &EnvSpec{
		ObsSpace: SymmetricBoxSpace(10, 2),
		ActSpace: SymmetricBoxSpace(1, 1),
	}
}

func (e *testEnv) StateSpace() *BoxSpace {
	return e.Spec().ObsSpace
}

func (e *testEnv) MaxSteps() int {
	return e.steps
}

func (e *testEnv) NominalDomainParam() map[string]float64 {
	return map[string]float64{"mass": 1, "length": 2}
}

func (e *testEnv) DomainParam() map[string]float64 {
	res := map[string]float64{}
	for k, v := range e.param {
		res[k] = v
	}
	return res
}

func (e *testEnv) Reset(opts ...ResetOption) (anyvec.Vector, error) {
	cfg := BuildResetConfig(opts...)
	if cfg.DomainParam != nil {
		for k, v := range cfg.DomainParam {
			e.param[k] = v
		}
	}
	e.t = 0
	return e.obs(), nil
}

func (e *testEnv) Step(action anyvec.Vector) (anyvec.Vector, float64, bool, error) {
	e.t++
	return e.obs(), e.param["mass"], false, nil
}

func (e *testEnv) Clone() Env {
	res := newTestEnv(e.creator, e.steps)
	for k, v := range e.param {
		res.param[k] = v
	}
	return res
}

func (e *testEnv) obs() anyvec.Vector {
	data := []float64{e.param["mass"], float64(e.t)}
	return e.creator.MakeVectorData(e.creator.MakeNumericList(data))
}

// constPolicy always takes the same action.
type constPolicy struct {
	creator anyvec.Creator
	action  []float64
}

func (p *constPolicy) Act(obs anyvec.Vector) (anyvec.Vector, error) {
	return p.creator.MakeVectorData(p.creator.MakeNumericList(p.action)), nil
}

func makeVec(c anyvec.Creator, data ...float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}

func testingAdapter(c anyvec.Creator, env Env, numParticles int) *SVPGAdapter {
	rewardGen := NewRewardGenerator(c, env.Spec(), 4, 1)
	return &SVPGAdapter{
		Env:               env,
		Params:            DomainParamsFromNames([]string{"mass", "length"}),
		InnerPolicy:       &constPolicy{creator: c, action: []float64{0.1}},
		RewardGen:         rewardGen,
		Pool:              NewSamplerPool(0),
		Creator:           c,
		NumParticles:      numParticles,
		Rand:              rand.New(rand.NewSource(1337)),
		StepLength:        0.1,
		Horizon:           100,
		NumTrajsPerConfig: 1,
		MaxSteps:          4,
	}
}

func TestAdapterStepRule(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	if _, err := adapter.ResetParticle(0); err != nil {
		t.Fatal(err)
	}

	gen := rand.New(rand.NewSource(7))
	for step := 0; step < 3; step++ {
		before := adapter.ParticleState(0)
		action := []float64{gen.Float64()*10 - 5, gen.Float64()*10 - 5}
		expected := make([]float64, len(before))
		for i, x := range before {
			a := action[i]
			if a < -1 {
				a = -1
			} else if a > 1 {
				a = 1
			}
			expected[i] = x + a*adapter.StepLength
			if expected[i] < 0 {
				expected[i] = 0
			} else if expected[i] > 1 {
				expected[i] = 1
			}
		}
		state, _, _, info, err := adapter.StepParticle(makeVec(c, action...), 0)
		if err != nil {
			t.Fatal(err)
		}
		actual := vecToFloats(state)
		for i, x := range actual {
			if x < 0 || x > 1 {
				t.Errorf("step %d: component %d out of range: %f", step, i, x)
			}
			if math.Abs(x-expected[i]) > 1e-9 {
				t.Errorf("step %d: component %d: expected %f but got %f",
					step, i, expected[i], x)
			}
		}
		if len(info.Rand) != 1 || len(info.Ref) != 1 {
			t.Errorf("step %d: expected 1 rollout per batch, got %d and %d",
				step, len(info.Rand), len(info.Ref))
		}
	}
}

func TestAdapterHorizonRedraw(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	adapter.Horizon = 2
	adapter.MaxSteps = 8
	if _, err := adapter.ResetParticle(0); err != nil {
		t.Fatal(err)
	}

	action := makeVec(c, 0.5, 0.5)
	for step := 1; step <= 4; step++ {
		before := adapter.ParticleState(0)
		state, _, _, _, err := adapter.StepParticle(action, 0)
		if err != nil {
			t.Fatal(err)
		}
		actual := vecToFloats(state)
		deterministic := smallVec(before).Copy().
			Add(smallVec{0.5 * adapter.StepLength, 0.5 * adapter.StepLength}).
			Clip(0, 1)
		matches := true
		for i, x := range actual {
			if math.Abs(x-deterministic[i]) > 1e-9 {
				matches = false
			}
		}
		if step%2 == 0 && matches {
			t.Errorf("step %d: expected a re-randomized state", step)
		} else if step%2 == 1 && !matches {
			t.Errorf("step %d: expected the deterministic update", step)
		}
	}
}

func TestAdapterDoneBoundary(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	if _, err := adapter.ResetParticle(0); err != nil {
		t.Fatal(err)
	}
	action := makeVec(c, 0, 0)
	for step := 1; step <= adapter.MaxSteps; step++ {
		_, _, done, _, err := adapter.StepParticle(action, 0)
		if err != nil {
			t.Fatal(err)
		}
		if done != (step == adapter.MaxSteps) {
			t.Errorf("step %d: done=%v", step, done)
		}
	}
}

func TestAdapterNominalRoundTrip(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	fromArray := adapter.ArrayToDict(adapter.Nominal())
	nominal := adapter.NominalDict()
	if len(fromArray) != len(nominal) {
		t.Fatal("size mismatch")
	}
	for k, v := range nominal {
		if fromArray[k] != v {
			t.Errorf("parameter %s: expected %f but got %f", k, v, fromArray[k])
		}
	}
}

func TestAdapterStepWithoutIndex(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	if _, _, _, err := adapter.Step(makeVec(c, 0, 0)); err != ErrNotParallelizable {
		t.Errorf("expected ErrNotParallelizable, got %v", err)
	}
}

func TestAdapterResetErrors(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 2)
	_, err := adapter.ResetParticle(0, WithDomainParam(map[string]float64{"mass": 2}))
	if err == nil {
		t.Error("expected an error for direct domain parameters")
	}
	if _, err := adapter.ResetParticle(5); err == nil {
		t.Error("expected an error for an out-of-range index")
	}
}

func TestAdapterResetInitState(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	state, err := adapter.ResetParticle(0, WithInitState(makeVec(c, 0.25, 0.75)))
	if err != nil {
		t.Fatal(err)
	}
	actual := vecToFloats(state)
	if actual[0] != 0.25 || actual[1] != 0.75 {
		t.Errorf("unexpected state: %v", actual)
	}
	if adapter.ParticleSteps(0) != 0 {
		t.Error("step counter not reset")
	}
}

func TestAdapterResetAll(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 3)
	states, err := adapter.ResetAll(WithInitState(makeVec(c, 0.25, 0.75)))
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	for i, state := range states {
		actual := vecToFloats(state)
		if actual[0] != 0.25 || actual[1] != 0.75 {
			t.Errorf("particle %d: unexpected state %v", i, actual)
		}
		if adapter.ParticleSteps(i) != 0 {
			t.Errorf("particle %d: step counter not reset", i)
		}
	}
}

func TestAdapterEvalStates(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	adapter := testingAdapter(c, newTestEnv(c, 3), 1)
	states := [][]float64{{0.5, 0.5}, {0, 1}}
	before := adapter.ParticleState(0)
	rewards, randTrajs, refTrajs, err := adapter.EvalStates(states)
	if err != nil {
		t.Fatal(err)
	}
	if len(rewards) != 2 {
		t.Fatalf("expected 2 rewards, got %d", len(rewards))
	}
	if len(randTrajs) != 2 || len(refTrajs) != 2 {
		t.Errorf("expected 2 rollouts per batch, got %d and %d",
			len(randTrajs), len(refTrajs))
	}
	after := adapter.ParticleState(0)
	for i := range before {
		if before[i] != after[i] {
			t.Error("EvalStates mutated particle state")
		}
	}
}
