// Package svpg implements a Stein Variational Policy
// Gradient particle ensemble for domain parameter
// search.
//
// Each particle owns a small Gaussian policy network.
// Updates combine per-particle policy gradients through
// an RBF kernel, so that particles attract each other
// toward high-reward regions while a temperature-scaled
// repulsion term keeps them spread out.
package svpg

import (
	"fmt"
	"math"
	"sort"

	"github.com/unixpickle/adr"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyrl"
	"github.com/unixpickle/anyvec"
)

const (
	// DefaultHiddenSize is the default hidden layer size
	// of a particle's policy network.
	DefaultHiddenSize = 64

	// DefaultStepSize is the default learning rate for
	// particle updates.
	DefaultStepSize = 1e-3
)

// A Particle is one ensemble member. Its policy network
// maps a normalized parameter vector to the mean and
// log-stddev of a Gaussian step proposal.
type Particle struct {
	Creator anyvec.Creator
	Net     anynet.Net

	adam *anysgd.Adam
}

// ExplorationPolicy returns the particle's stochastic
// step-proposal policy.
func (p *Particle) ExplorationPolicy() adr.Policy {
	return &gaussianPolicy{creator: p.Creator, net: p.Net}
}

type gaussianPolicy struct {
	creator anyvec.Creator
	net     anynet.Net
}

func (g *gaussianPolicy) Act(obs anyvec.Vector) (anyvec.Vector, error) {
	params := g.net.Apply(anydiff.NewConst(obs), 1).Output()
	return anyrl.Gaussian{}.Sample(params, 1), nil
}

// A Swarm coordinates the particles. It implements
// adr.Swarm.
type Swarm struct {
	// Creator is the anyvec.Creator behind the policy
	// networks.
	Creator anyvec.Creator

	// StepSize is the update learning rate.
	//
	// If 0, DefaultStepSize is used.
	StepSize float64

	// Temperature scales the kernel repulsion term.
	// At 0 the particles collapse into independent
	// policy-gradient learners.
	Temperature float64

	// Discount is the reward discount for the
	// rewards-to-go estimate.
	//
	// If 0, rewards are undiscounted.
	Discount float64

	particles []*Particle
}

// Particles returns the ensemble members.
func (s *Swarm) Particles() []adr.Particle {
	res := make([]adr.Particle, len(s.particles))
	for i, p := range s.particles {
		res[i] = p
	}
	return res
}

// Update performs one Stein variational gradient step
// given one group of meta-rollouts per particle.
func (s *Swarm) Update(groups [][]*adr.Rollout) error {
	if len(groups) != len(s.particles) {
		return fmt.Errorf("update swarm: got %d rollout groups for %d particles",
			len(groups), len(s.particles))
	}
	n := len(s.particles)
	grads := make([]anydiff.Grad, n)
	flatGrads := make([][]float64, n)
	flatParams := make([][]float64, n)
	for i, p := range s.particles {
		grads[i] = p.policyGradient(groups[i], s.discount())
		vars := anynet.AllParameters(p.Net)
		flatParams[i] = flattenVars(vars)
		flatGrads[i] = flattenGrad(grads[i], vars)
	}

	h := bandwidth(flatParams)
	for i, p := range s.particles {
		phi := make([]float64, len(flatGrads[i]))
		for j := range s.particles {
			k := rbf(flatParams[j], flatParams[i], h)
			for d := range phi {
				repulse := -2 / h * (flatParams[j][d] - flatParams[i][d]) * k
				phi[d] += k*flatGrads[j][d] + s.Temperature*repulse
			}
		}
		for d := range phi {
			phi[d] /= float64(n)
		}

		vars := anynet.AllParameters(p.Net)
		unflattenInto(grads[i], vars, phi, s.Creator)
		if p.adam == nil {
			p.adam = &anysgd.Adam{}
		}
		step := p.adam.Transform(grads[i])
		// Gradient ascent on the expected return.
		step.Scale(s.Creator.MakeNumeric(s.stepSize()))
		step.AddToVars()
	}
	return nil
}

func (s *Swarm) stepSize() float64 {
	if s.StepSize == 0 {
		return DefaultStepSize
	}
	return s.StepSize
}

func (s *Swarm) discount() float64 {
	if s.Discount == 0 {
		return 1
	}
	return s.Discount
}

// policyGradient accumulates the REINFORCE gradient of
// the particle's expected return over its rollouts.
func (p *Particle) policyGradient(rollouts []*adr.Rollout,
	discount float64) anydiff.Grad {
	vars := anynet.AllParameters(p.Net)
	grad := anydiff.NewGrad(vars...)
	c := p.Creator
	for _, ro := range rollouts {
		numSteps := ro.Len()
		toGo := make([]float64, numSteps)
		var acc float64
		for t := numSteps - 1; t >= 0; t-- {
			acc = ro.Rewards[t] + discount*acc
			toGo[t] = acc
		}
		for t := 0; t < numSteps; t++ {
			out := p.Net.Apply(anydiff.NewConst(ro.Observations[t]), 1)
			logProb := anyrl.Gaussian{}.LogProb(out, ro.Actions[t], 1)
			obj := anydiff.Scale(logProb, c.MakeNumeric(toGo[t]))
			obj.Propagate(anyvec.Ones(c, 1), grad)
		}
	}
	return grad
}

// A Builder constructs a Swarm for a parameter search
// adapter, in the shape the adr package expects.
type Builder struct {
	// Creator is the anyvec.Creator behind the policy
	// networks. If nil, the adapter's creator is used.
	Creator anyvec.Creator

	// NumParticles overrides the adapter's particle
	// count when non-zero.
	NumParticles int

	// HiddenSize is the policy hidden layer size.
	//
	// If 0, DefaultHiddenSize is used.
	HiddenSize int

	// StepSize, Temperature, and Discount configure the
	// resulting Swarm.
	StepSize    float64
	Temperature float64
	Discount    float64
}

// Build creates the ensemble.
func (b *Builder) Build(adapter *adr.SVPGAdapter) (adr.Swarm, error) {
	c := b.Creator
	if c == nil {
		c = adapter.Creator
	}
	num := b.NumParticles
	if num == 0 {
		num = adapter.NumParticles
	}
	if num == 0 {
		return nil, fmt.Errorf("build swarm: no particles configured")
	}
	hidden := b.HiddenSize
	if hidden == 0 {
		hidden = DefaultHiddenSize
	}
	dim := adapter.ObsSpace().Dim()
	particles := make([]*Particle, num)
	for i := range particles {
		particles[i] = &Particle{
			Creator: c,
			Net: anynet.Net{
				anynet.NewFC(c, dim, hidden),
				anynet.Tanh,
				// Zero-initialized output keeps the
				// initial proposal centered with unit
				// stddev.
				anynet.NewFCZero(c, hidden, dim*2),
			},
		}
	}
	return &Swarm{
		Creator:     c,
		StepSize:    b.StepSize,
		Temperature: b.Temperature,
		Discount:    b.Discount,
		particles:   particles,
	}, nil
}

func flattenVars(vars []*anydiff.Var) []float64 {
	var res []float64
	for _, v := range vars {
		res = append(res, vecToFloats(v.Vector)...)
	}
	return res
}

func flattenGrad(grad anydiff.Grad, vars []*anydiff.Var) []float64 {
	var res []float64
	for _, v := range vars {
		res = append(res, vecToFloats(grad[v])...)
	}
	return res
}

func unflattenInto(grad anydiff.Grad, vars []*anydiff.Var, flat []float64,
	c anyvec.Creator) {
	idx := 0
	for _, v := range vars {
		size := v.Vector.Len()
		chunk := flat[idx : idx+size]
		grad[v] = c.MakeVectorData(c.MakeNumericList(chunk))
		idx += size
	}
}

// bandwidth picks an RBF kernel bandwidth with the
// median heuristic.
func bandwidth(points [][]float64) float64 {
	var dists []float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			dists = append(dists, sqDist(points[i], points[j]))
		}
	}
	if len(dists) == 0 {
		return 1
	}
	med := median(dists)
	h := med / math.Log(float64(len(points))+1)
	if h <= 0 {
		return 1
	}
	return h
}

func rbf(a, b []float64, h float64) float64 {
	return math.Exp(-sqDist(a, b) / h)
}

func sqDist(a, b []float64) float64 {
	var res float64
	for i, x := range a {
		diff := x - b[i]
		res += diff * diff
	}
	return res
}

func median(xs []float64) float64 {
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)
	if len(sorted)%2 == 1 {
		return sorted[len(sorted)/2]
	}
	return (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
}

func vecToFloats(vec anyvec.Vector) []float64 {
	var res []float64
	switch data := vec.Data().(type) {
	case []float64:
		res = data
	case []float32:
		for _, x := range data {
			res = append(res, float64(x))
		}
	default:
		panic("unsupported numeric type")
	}
	return res
}
