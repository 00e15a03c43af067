// Package adr implements Active Domain Randomization:
// a meta-algorithm that searches over simulator physics
// parameters with an ensemble of particles, scores
// candidate configurations with a learned trajectory
// discriminator, and trains a control policy on the
// collected rollouts.
//
// For details, see:
// https://arxiv.org/abs/1904.04762.
package adr

import (
	"errors"
	"fmt"

	"github.com/unixpickle/anyvec"
)

// ErrNotParallelizable is returned when the parameter
// search adapter is stepped without a particle index.
// Bulk stepping across all particles is unsupported.
var ErrNotParallelizable = errors.New("step adapter: particle index required")

// ErrNotSubroutine is returned when a top-level-only
// snapshot path is invoked as though the algorithm were
// nested under another driver.
var ErrNotSubroutine = errors.New("save snapshot: not supposed to run as a subroutine")

// A TypeError indicates that a collaborator passed to a
// constructor does not satisfy its capability contract.
type TypeError struct {
	// Context identifies the constructor argument.
	Context string

	// Expected describes the expected capability.
	Expected string
}

// Error returns a human-readable message.
func (t *TypeError) Error() string {
	return fmt.Sprintf("%s: expected %s", t.Context, t.Expected)
}

// A BoxSpace is a bounded, axis-aligned region of a real
// vector space.
type BoxSpace struct {
	Low  []float64
	High []float64
}

// UnitBoxSpace creates the space [0, 1]^dim.
func UnitBoxSpace(dim int) *BoxSpace {
	return SymmetricBoxSpace(0.5, dim).shift(0.5)
}

// SymmetricBoxSpace creates the space [-bound, bound]^dim.
func SymmetricBoxSpace(bound float64, dim int) *BoxSpace {
	res := &BoxSpace{
		Low:  make([]float64, dim),
		High: make([]float64, dim),
	}
	for i := range res.Low {
		res.Low[i] = -bound
		res.High[i] = bound
	}
	return res
}

func (b *BoxSpace) shift(offset float64) *BoxSpace {
	for i := range b.Low {
		b.Low[i] += offset
		b.High[i] += offset
	}
	return b
}

// Dim returns the dimensionality of the space.
func (b *BoxSpace) Dim() int {
	return len(b.Low)
}

// Clip clips the vector componentwise into the space.
// It modifies vec and returns it.
func (b *BoxSpace) Clip(vec []float64) []float64 {
	for i, x := range vec {
		if x < b.Low[i] {
			vec[i] = b.Low[i]
		} else if x > b.High[i] {
			vec[i] = b.High[i]
		}
	}
	return vec
}

// Contains checks that the vector lies inside the space.
func (b *BoxSpace) Contains(vec []float64) bool {
	if len(vec) != b.Dim() {
		return false
	}
	for i, x := range vec {
		if x < b.Low[i] || x > b.High[i] {
			return false
		}
	}
	return true
}

// An EnvSpec describes the observation and action spaces
// of an environment.
type EnvSpec struct {
	ObsSpace *BoxSpace
	ActSpace *BoxSpace
}

// A ResetOption configures a call to Env.Reset.
type ResetOption func(*ResetConfig)

// A ResetConfig is the combined set of options for one
// reset.
type ResetConfig struct {
	InitState   anyvec.Vector
	DomainParam map[string]float64
}

// WithInitState makes a reset start from a fixed state
// rather than a random draw.
func WithInitState(state anyvec.Vector) ResetOption {
	return func(c *ResetConfig) {
		c.InitState = state
	}
}

// WithDomainParam makes a reset install the given physics
// parameters before the episode starts.
func WithDomainParam(params map[string]float64) ResetOption {
	return func(c *ResetConfig) {
		c.DomainParam = params
	}
}

// BuildResetConfig collects reset options into a config.
func BuildResetConfig(opts ...ResetOption) *ResetConfig {
	res := &ResetConfig{}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// An Env is a simulated environment with adjustable
// domain parameters.
type Env interface {
	// Spec describes the observation and action spaces.
	Spec() *EnvSpec

	// StateSpace describes the internal state space.
	StateSpace() *BoxSpace

	// MaxSteps is the per-episode step bound.
	MaxSteps() int

	// NominalDomainParam returns the simulator's default
	// physics values.
	NominalDomainParam() map[string]float64

	// DomainParam returns the currently installed physics
	// values.
	DomainParam() map[string]float64

	// Reset starts a new episode and returns the first
	// observation.
	Reset(opts ...ResetOption) (anyvec.Vector, error)

	// Step advances the episode by one action.
	Step(action anyvec.Vector) (obs anyvec.Vector, reward float64,
		done bool, err error)

	// Clone creates an independent copy of the
	// environment for parallel sampling.
	Clone() Env
}

// A Policy maps observations to actions, optionally
// stochastically.
type Policy interface {
	Act(obs anyvec.Vector) (anyvec.Vector, error)
}

// An Algorithm is a policy-optimization subroutine.
type Algorithm interface {
	// Update trains on a batch of rollouts.
	Update(rollouts []*Rollout) error

	// Policy is the policy being optimized.
	Policy() Policy

	// SampleCount is a monotonic counter of environment
	// interactions.
	SampleCount() int

	// MakeSnapshot saves a snapshot according to the
	// mode, using metric as the comparison value for
	// "best" snapshots.
	MakeSnapshot(mode string, metric float64) error

	// SaveSnapshot unconditionally persists the
	// algorithm's state. A nil meta indicates a
	// top-level invocation.
	SaveSnapshot(meta map[string]string) error
}

// A Particle is one member of a search ensemble.
type Particle interface {
	// ExplorationPolicy proposes steps in normalized
	// parameter space.
	ExplorationPolicy() Policy
}

// A Swarm coordinates an ensemble of particles.
type Swarm interface {
	// Particles returns the ensemble members in a fixed
	// order.
	Particles() []Particle

	// Update adjusts the ensemble given one group of
	// meta-rollouts per particle.
	Update(groups [][]*Rollout) error
}

// ValidateEnv checks the environment capability contract.
func ValidateEnv(env Env) error {
	if env == nil {
		return &TypeError{Context: "env", Expected: "an environment"}
	}
	spec := env.Spec()
	if spec == nil || spec.ObsSpace == nil || spec.ActSpace == nil {
		return &TypeError{Context: "env", Expected: "an environment with observation and action spaces"}
	}
	if len(env.NominalDomainParam()) == 0 {
		return &TypeError{Context: "env", Expected: "an environment with nominal domain parameters"}
	}
	return nil
}

// ValidateAlgorithm checks the subroutine capability
// contract, including that the subroutine carries a
// policy.
func ValidateAlgorithm(subrtn Algorithm) error {
	if subrtn == nil {
		return &TypeError{Context: "subrtn", Expected: "an algorithm"}
	}
	if subrtn.Policy() == nil {
		return &TypeError{Context: "subrtn.policy", Expected: "a policy"}
	}
	return nil
}
