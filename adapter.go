package adr

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

const (
	// DefaultStepLength is the default maximum change of
	// a normalized parameter per adapter step.
	DefaultStepLength = 0.01

	// DefaultHorizon is the default number of steps
	// until a particle's parameter vector is re-drawn.
	DefaultHorizon = 50

	// DefaultNumTrajsPerConfig is the default number of
	// trajectories sampled per configuration.
	DefaultNumTrajsPerConfig = 8

	// DefaultAdapterMaxSteps is the default episode
	// length of the parameter search environment.
	DefaultAdapterMaxSteps = 8
)

// StepInfo carries the rollout batches generated by one
// adapter step.
type StepInfo struct {
	// Rand holds rollouts under the perturbed physics
	// parameters chosen by the particle.
	Rand []*Rollout

	// Ref holds the same number of rollouts under the
	// nominal physics parameters.
	Ref []*Rollout
}

// particleState is the search state of one particle: a
// normalized parameter vector in [0, 1]^k and a local
// step counter.
type particleState struct {
	params smallVec
	count  int
}

// An SVPGAdapter exposes domain parameter search as a
// small RL environment. Its state and observation are a
// particle's normalized parameter vector, its action is
// a bounded step in parameter space, and its reward
// comes from the discriminator, not from the wrapped
// environment's native reward.
type SVPGAdapter struct {
	// Env is the wrapped physics environment.
	Env Env

	// Params are the randomized physics parameters, in a
	// fixed order established at construction.
	Params []DomainParam

	// InnerPolicy is the shared control policy rolled
	// out in the wrapped environment.
	InnerPolicy Policy

	// RewardGen scores sampled rollouts.
	RewardGen *RewardGenerator

	// Pool is used for parallel rollout sampling.
	Pool *SamplerPool

	// Creator is the anyvec.Creator behind observation
	// and action vectors.
	Creator anyvec.Creator

	// NumParticles is the ensemble size.
	NumParticles int

	// Rand is the source for parameter re-draws.
	Rand *rand.Rand

	// StepLength is the maximum change of a normalized
	// parameter per step.
	//
	// If 0, DefaultStepLength is used.
	StepLength float64

	// Horizon is the number of steps after which a
	// particle's parameter vector is re-randomized.
	//
	// If 0, DefaultHorizon is used.
	Horizon int

	// NumTrajsPerConfig is the number of trajectories
	// sampled per parameter configuration.
	//
	// If 0, DefaultNumTrajsPerConfig is used.
	NumTrajsPerConfig int

	// MaxSteps is the episode length of the search
	// environment.
	//
	// If 0, DefaultAdapterMaxSteps is used.
	MaxSteps int

	states       []particleState
	warnDegraded bool
}

// ObsSpace is the adapter's observation space.
func (s *SVPGAdapter) ObsSpace() *BoxSpace {
	return SymmetricBoxSpace(1, len(s.Params))
}

// ActSpace is the adapter's action space.
func (s *SVPGAdapter) ActSpace() *BoxSpace {
	return SymmetricBoxSpace(1, len(s.Params))
}

// Spec describes the adapter's spaces.
func (s *SVPGAdapter) Spec() *EnvSpec {
	return &EnvSpec{ObsSpace: s.ObsSpace(), ActSpace: s.ActSpace()}
}

// Step implements plain environment stepping, which the
// adapter does not support: parameter search always
// requires a particle index. Use StepParticle.
func (s *SVPGAdapter) Step(action anyvec.Vector) (anyvec.Vector, float64,
	bool, error) {
	return nil, 0, false, ErrNotParallelizable
}

// ResetParticle re-draws (or, via WithInitState, sets)
// one particle's parameter vector and zeroes its step
// counter. It returns the new state.
//
// Passing WithDomainParam is invalid: the adapter owns
// the mapping from its state to domain parameters.
func (s *SVPGAdapter) ResetParticle(i int, opts ...ResetOption) (anyvec.Vector, error) {
	s.ensureInit()
	cfg := BuildResetConfig(opts...)
	if cfg.DomainParam != nil {
		return nil, fmt.Errorf("reset particle %d: domain parameters cannot be set directly", i)
	}
	if i < 0 || i >= len(s.states) {
		return nil, fmt.Errorf("reset particle %d: index out of range", i)
	}
	s.states[i].count = 0
	if cfg.InitState != nil {
		s.states[i].params = smallVec(vecToFloats(cfg.InitState)).Copy().Clip(0, 1)
	} else {
		s.states[i].params = s.randomParams()
	}
	return s.stateVec(i), nil
}

// ResetAll re-draws (or sets) every particle's parameter
// vector at once and zeroes all step counters. It
// returns the new states.
func (s *SVPGAdapter) ResetAll(opts ...ResetOption) ([]anyvec.Vector, error) {
	s.ensureInit()
	res := make([]anyvec.Vector, s.NumParticles)
	for i := range s.states {
		state, err := s.ResetParticle(i, opts...)
		if err != nil {
			return nil, err
		}
		res[i] = state
	}
	return res, nil
}

// StepParticle performs one parameter search step for
// particle i.
//
// The action is clipped to [-1, 1], scaled by the step
// length, and added to the particle's parameter vector,
// which is then clipped back into [0, 1]. The resulting
// configuration (and an equally sized nominal batch) is
// rolled out with the inner policy, and the mean
// discriminator reward of the randomized rollouts
// becomes the step reward.
func (s *SVPGAdapter) StepParticle(action anyvec.Vector, i int) (state anyvec.Vector,
	reward float64, done bool, info *StepInfo, err error) {
	s.ensureInit()
	if i < 0 || i >= len(s.states) {
		return nil, 0, false, nil, fmt.Errorf("step particle %d: index out of range", i)
	}
	st := &s.states[i]

	delta := smallVec(vecToFloats(action)).Copy().Clip(-1, 1).Scale(s.stepLength())
	st.params.Add(delta).Clip(0, 1)

	// Normalized value 0.5 reproduces the nominal
	// parameters exactly.
	paramNorm := st.params.Copy().AddScalar(0.5)
	randConfig := s.ArrayToDict(paramNorm.Mul(s.Nominal()))

	numTrajs := s.numTrajs()
	randParams := make([]map[string]float64, numTrajs)
	nomParams := make([]map[string]float64, numTrajs)
	for j := range randParams {
		randParams[j] = randConfig
		nomParams[j] = s.NominalDict()
	}

	randTrajs, err := EvalDomainParams(s.Pool, s.Env, s.InnerPolicy, randParams)
	if err != nil {
		return nil, 0, false, nil, essentials.AddCtx("step particle", err)
	}
	refTrajs, err := EvalDomainParams(s.Pool, s.Env, s.InnerPolicy, nomParams)
	if err != nil {
		return nil, 0, false, nil, essentials.AddCtx("step particle", err)
	}

	reward, err = s.meanReward(randTrajs)
	if err != nil {
		return nil, 0, false, nil, essentials.AddCtx("step particle", err)
	}
	info = &StepInfo{Rand: randTrajs, Ref: refTrajs}

	done = st.count >= s.maxSteps()-1
	st.count++
	if st.count%s.horizon() == 0 {
		st.params = s.randomParams()
	}

	return s.stateVec(i), reward, done, info, nil
}

// EvalStates scores a list of normalized parameter
// vectors without mutating any particle state. It
// returns the mean discriminator reward per state along
// with the randomized and reference rollouts.
func (s *SVPGAdapter) EvalStates(states [][]float64) ([]float64, []*Rollout,
	[]*Rollout, error) {
	s.ensureInit()
	numTrajs := s.numTrajs()
	var randParams []map[string]float64
	var nomParams []map[string]float64
	for _, state := range states {
		paramNorm := smallVec(state).Copy().AddScalar(0.5)
		config := s.ArrayToDict(paramNorm.Mul(s.Nominal()))
		for j := 0; j < numTrajs; j++ {
			randParams = append(randParams, config)
			nomParams = append(nomParams, s.NominalDict())
		}
	}
	randTrajs, err := EvalDomainParams(s.Pool, s.Env, s.InnerPolicy, randParams)
	if err != nil {
		return nil, nil, nil, essentials.AddCtx("eval states", err)
	}
	refTrajs, err := EvalDomainParams(s.Pool, s.Env, s.InnerPolicy, nomParams)
	if err != nil {
		return nil, nil, nil, essentials.AddCtx("eval states", err)
	}
	rewards := make([]float64, len(states))
	for i := range states {
		group := randTrajs[i*numTrajs : (i+1)*numTrajs]
		rewards[i], err = s.meanReward(group)
		if err != nil {
			return nil, nil, nil, essentials.AddCtx("eval states", err)
		}
	}
	return rewards, randTrajs, refTrajs, nil
}

// ParamNames returns the randomized parameter names in
// their fixed order.
func (s *SVPGAdapter) ParamNames() []string {
	return paramNames(s.Params)
}

// Nominal returns the nominal values of the randomized
// parameters, ordered like ParamNames.
func (s *SVPGAdapter) Nominal() []float64 {
	nominal := s.Env.NominalDomainParam()
	res := make([]float64, len(s.Params))
	for i, p := range s.Params {
		res[i] = nominal[p.Name]
	}
	return res
}

// NominalDict returns the nominal values of the
// randomized parameters, keyed by name.
func (s *SVPGAdapter) NominalDict() map[string]float64 {
	nominal := s.Env.NominalDomainParam()
	res := make(map[string]float64, len(s.Params))
	for _, p := range s.Params {
		res[p.Name] = nominal[p.Name]
	}
	return res
}

// ArrayToDict zips the fixed parameter name ordering
// with a numeric vector.
func (s *SVPGAdapter) ArrayToDict(arr []float64) map[string]float64 {
	res := make(map[string]float64, len(s.Params))
	for i, p := range s.Params {
		res[p.Name] = arr[i]
	}
	return res
}

// ParticleSteps returns particle i's local step counter.
func (s *SVPGAdapter) ParticleSteps(i int) int {
	s.ensureInit()
	return s.states[i].count
}

// ParticleState returns a copy of particle i's
// normalized parameter vector.
func (s *SVPGAdapter) ParticleState(i int) []float64 {
	s.ensureInit()
	return s.states[i].params.Copy()
}

func (s *SVPGAdapter) stateVec(i int) anyvec.Vector {
	data := s.states[i].params.Copy()
	return s.Creator.MakeVectorData(s.Creator.MakeNumericList(data))
}

func (s *SVPGAdapter) meanReward(rollouts []*Rollout) (float64, error) {
	var sum float64
	for _, traj := range rollouts {
		r, err := s.RewardGen.GetReward(traj)
		if err != nil {
			return 0, err
		}
		sum += r
	}
	return sum / float64(len(rollouts)), nil
}

func (s *SVPGAdapter) randomParams() smallVec {
	res := make(smallVec, len(s.Params))
	for i := range res {
		res[i] = s.rand().Float64()
	}
	return res
}

func (s *SVPGAdapter) ensureInit() {
	if s.states == nil {
		s.states = make([]particleState, s.NumParticles)
		for i := range s.states {
			s.states[i].params = s.randomParams()
		}
	}
	if s.Pool != nil && s.Pool.Degraded() && !s.warnDegraded {
		s.warnDegraded = true
		log.Println("SVPGAdapter: sampler pool is degraded; sampling serially")
	}
}

func (s *SVPGAdapter) rand() *rand.Rand {
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	return s.Rand
}

func (s *SVPGAdapter) stepLength() float64 {
	if s.StepLength == 0 {
		return DefaultStepLength
	}
	return s.StepLength
}

func (s *SVPGAdapter) horizon() int {
	if s.Horizon == 0 {
		return DefaultHorizon
	}
	return s.Horizon
}

func (s *SVPGAdapter) numTrajs() int {
	if s.NumTrajsPerConfig == 0 {
		return DefaultNumTrajsPerConfig
	}
	return s.NumTrajsPerConfig
}

func (s *SVPGAdapter) maxSteps() int {
	if s.MaxSteps == 0 {
		return DefaultAdapterMaxSteps
	}
	return s.MaxSteps
}
